package event

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relayops/relay/model"
)

const eventColumns = `id, process_id, name, status, stage, thread_stage, thread_id, payload, timeout_seconds, created_at`

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL event store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Append persists a new event.
func (s *PgStore) Append(ctx context.Context, e model.ProcessEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO process_events (`+eventColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.ProcessID, e.Name, e.Status, e.Stage,
		e.ThreadStage, e.ThreadID, e.Payload, e.TimeoutSeconds, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListByProcess returns the process's events in creation order.
func (s *PgStore) ListByProcess(ctx context.Context, processID string) ([]model.ProcessEvent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+eventColumns+` FROM process_events
		WHERE process_id = $1
		ORDER BY created_at ASC`, processID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var result []model.ProcessEvent
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// DeleteByProcess removes all events bound to a process.
func (s *PgStore) DeleteByProcess(ctx context.Context, processID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM process_events WHERE process_id = $1`, processID)
	if err != nil {
		return fmt.Errorf("delete events: %w", err)
	}
	return nil
}

func scanEvent(row pgx.Row) (model.ProcessEvent, error) {
	var e model.ProcessEvent
	err := row.Scan(
		&e.ID, &e.ProcessID, &e.Name, &e.Status, &e.Stage,
		&e.ThreadStage, &e.ThreadID, &e.Payload, &e.TimeoutSeconds, &e.CreatedAt,
	)
	return e, err
}
