package infra

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"salesforce-bulk/salesforce/domain"

	_ "modernc.org/sqlite"
)

const historySchema = `
CREATE TABLE IF NOT EXISTS bulk_jobs (
	id                TEXT PRIMARY KEY,
	operation         TEXT NOT NULL,
	object            TEXT NOT NULL DEFAULT '',
	soql              TEXT NOT NULL DEFAULT '',
	state             TEXT NOT NULL,
	records_processed INTEGER NOT NULL DEFAULT 0,
	records_failed    INTEGER NOT NULL DEFAULT 0,
	instance_url      TEXT NOT NULL DEFAULT '',
	error_message     TEXT NOT NULL DEFAULT '',
	created_at        INTEGER NOT NULL,
	updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_bulk_jobs_updated ON bulk_jobs(updated_at);
`

// SQLiteHistory implementa domain.JobHistory num arquivo SQLite local.
// Datas ficam em milissegundos Unix.
type SQLiteHistory struct {
	db   *sql.DB
	path string
}

var _ domain.JobHistory = (*SQLiteHistory)(nil)

// OpenSQLiteHistory abre (ou cria) o banco em path. ":memory:" também funciona.
func OpenSQLiteHistory(path string) (*SQLiteHistory, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	// um writer só; evita SQLITE_BUSY entre goroutines do mesmo processo
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(historySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history schema: %w", err)
	}
	return &SQLiteHistory{db: db, path: path}, nil
}

func (h *SQLiteHistory) Path() string { return h.path }

func (h *SQLiteHistory) Close() error { return h.db.Close() }

// Save insere o job ou atualiza estado/contadores de um job já conhecido.
// object/soql/instance só são sobrescritos quando o novo valor não é vazio.
func (h *SQLiteHistory) Save(ctx context.Context, rec domain.JobRecord) error {
	if rec.ID == "" {
		return errors.New("job record without id")
	}
	now := time.Now()
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO bulk_jobs (id, operation, object, soql, state, records_processed, records_failed,
			instance_url, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state             = excluded.state,
			records_processed = excluded.records_processed,
			records_failed    = excluded.records_failed,
			error_message     = excluded.error_message,
			object            = COALESCE(NULLIF(excluded.object, ''), bulk_jobs.object),
			soql              = COALESCE(NULLIF(excluded.soql, ''), bulk_jobs.soql),
			instance_url      = COALESCE(NULLIF(excluded.instance_url, ''), bulk_jobs.instance_url),
			updated_at        = excluded.updated_at`,
		rec.ID, string(rec.Operation), rec.Object, rec.SOQL, string(rec.State),
		rec.Processed, rec.Failed, rec.InstanceURL, rec.Error,
		rec.CreatedAt.UnixMilli(), rec.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", rec.ID, err)
	}
	return nil
}

const historyColumns = `id, operation, object, soql, state, records_processed, records_failed,
	instance_url, error_message, created_at, updated_at`

// List retorna os jobs mais recentes primeiro. limit <= 0 usa 50.
func (h *SQLiteHistory) List(ctx context.Context, limit int) ([]domain.JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := h.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM bulk_jobs ORDER BY updated_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.JobRecord
	for rows.Next() {
		rec, err := scanJobRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Get busca um job pelo id. ok=false quando não existe.
func (h *SQLiteHistory) Get(ctx context.Context, id string) (domain.JobRecord, bool, error) {
	row := h.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM bulk_jobs WHERE id = ?`, id)
	rec, err := scanJobRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.JobRecord{}, false, nil
	}
	if err != nil {
		return domain.JobRecord{}, false, err
	}
	return rec, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobRecord(r rowScanner) (domain.JobRecord, error) {
	var (
		rec                  domain.JobRecord
		op, state            string
		createdAt, updatedAt int64
	)
	err := r.Scan(&rec.ID, &op, &rec.Object, &rec.SOQL, &state, &rec.Processed, &rec.Failed,
		&rec.InstanceURL, &rec.Error, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan job record: %w", err)
	}
	rec.Operation = domain.Operation(op)
	rec.State = domain.JobState(state)
	rec.CreatedAt = time.UnixMilli(createdAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return rec, nil
}
