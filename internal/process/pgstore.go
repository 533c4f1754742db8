package process

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relayops/relay/model"
)

const processColumns = `id, user_id, status, progress, stage, start_time, end_time, created_at, updated_at`

// activeFilter is the SQL predicate matching MemoryStore's notion of an
// active process: any status outside the terminal set. Built from the
// model so a new terminal status cannot silently diverge the two stores.
var activeFilter = func() string {
	var quoted []string
	for _, s := range model.Statuses() {
		if s.Terminal() {
			quoted = append(quoted, "'"+string(s)+"'")
		}
	}
	return "status NOT IN (" + strings.Join(quoted, ", ") + ")"
}()

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL process store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Healthy reports whether the database is reachable.
func (s *PgStore) Healthy() bool {
	return s.pool.Ping(context.Background()) == nil
}

// Create inserts a new process.
func (s *PgStore) Create(ctx context.Context, p model.Process) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processes (`+processColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.UserID, p.Status, p.Progress, p.Stage,
		p.StartTime, p.EndTime, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert process: %w", err)
	}
	return nil
}

// Get retrieves a process by ID.
func (s *PgStore) Get(ctx context.Context, id string) (model.Process, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+processColumns+` FROM processes WHERE id = $1`, id)
	p, err := scanProcess(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Process{}, model.NewNotFoundError(fmt.Sprintf("process %q not found", id))
	}
	if err != nil {
		return model.Process{}, fmt.Errorf("query process: %w", err)
	}
	return p, nil
}

// Update persists a mutated process.
func (s *PgStore) Update(ctx context.Context, p model.Process) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE processes SET
			status = $1, progress = $2, stage = $3,
			end_time = $4, updated_at = $5
		WHERE id = $6`,
		p.Status, p.Progress, p.Stage, p.EndTime, p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update process: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("process %q not found", p.ID))
	}
	return nil
}

// FindByStatus returns all processes in the given status.
func (s *PgStore) FindByStatus(ctx context.Context, status model.ProcessStatus) ([]model.Process, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+processColumns+` FROM processes
		WHERE status = $1
		ORDER BY start_time DESC`, status)
	if err != nil {
		return nil, fmt.Errorf("query processes by status: %w", err)
	}
	defer rows.Close()
	return collectProcesses(rows)
}

// ActiveForUser returns the user's most recently started active process.
func (s *PgStore) ActiveForUser(ctx context.Context, userID string) (model.Process, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+processColumns+` FROM processes
		WHERE user_id = $1 AND `+activeFilter+`
		ORDER BY start_time DESC
		LIMIT 1`, userID)
	p, err := scanProcess(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Process{}, model.NewNotFoundError("no active process")
	}
	if err != nil {
		return model.Process{}, fmt.Errorf("query active process: %w", err)
	}
	return p, nil
}

// MostRecentActive returns the most recently started active process.
func (s *PgStore) MostRecentActive(ctx context.Context) (model.Process, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+processColumns+` FROM processes
		WHERE `+activeFilter+`
		ORDER BY start_time DESC
		LIMIT 1`)
	p, err := scanProcess(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Process{}, model.NewNotFoundError("no active process")
	}
	if err != nil {
		return model.Process{}, fmt.Errorf("query active process: %w", err)
	}
	return p, nil
}

// Delete removes a process record.
func (s *PgStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM processes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete process: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("process %q not found", id))
	}
	return nil
}

func scanProcess(row pgx.Row) (model.Process, error) {
	var p model.Process
	err := row.Scan(
		&p.ID, &p.UserID, &p.Status, &p.Progress, &p.Stage,
		&p.StartTime, &p.EndTime, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func collectProcesses(rows pgx.Rows) ([]model.Process, error) {
	var result []model.Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
