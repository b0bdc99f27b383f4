package domain

import (
	"context"
	"time"
)

// CallEvent descreve o que o throttle fez com uma chamada à API.
//
// Path é o caminho HTTP cru; quem persiste deve normalizar ids de registro/job
// para não explodir cardinalidade (Redis, Prometheus, etc).
type CallEvent struct {
	Key     Key
	Allowed bool

	Method string
	Path   string

	// Waited é o tempo que a chamada ficou retida pelo throttle.
	Waited time.Duration

	At time.Time
}

// StatsStore persiste estatísticas de chamadas.
//
// Erros são best-effort: quem grava não deve derrubar a chamada por causa disso.
type StatsStore interface {
	Record(ctx context.Context, ev CallEvent) error
}
