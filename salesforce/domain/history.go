package domain

import (
	"context"
	"time"
)

// JobRecord é a linha do histórico local de jobs disparados por este cliente.
type JobRecord struct {
	ID          string
	Operation   Operation
	Object      string
	SOQL        string
	State       JobState
	Processed   int64
	Failed      int64
	InstanceURL string
	Error       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobHistory guarda jobs por id (upsert) e lista os mais recentes primeiro.
type JobHistory interface {
	Save(ctx context.Context, rec JobRecord) error
	List(ctx context.Context, limit int) ([]JobRecord, error)
}
