package stream

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relayops/relay/model"
)

const notificationColumns = `id, user_id, process_id, message, type, read, created_at`

// PgNotificationStore is a PostgreSQL-backed NotificationStore using pgx/v5.
type PgNotificationStore struct {
	pool *pgxpool.Pool
}

// NewPgNotificationStore creates a new PostgreSQL notification store.
func NewPgNotificationStore(pool *pgxpool.Pool) *PgNotificationStore {
	return &PgNotificationStore{pool: pool}
}

// Create persists a new notification.
func (s *PgNotificationStore) Create(ctx context.Context, n model.Notification) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.UserID, n.ProcessID, n.Message, n.Type, n.Read, n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// Get retrieves a notification by ID.
func (s *PgNotificationStore) Get(ctx context.Context, id string) (model.Notification, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	n, err := scanNotification(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Notification{}, model.NewNotFoundError(fmt.Sprintf("notification %q not found", id))
	}
	if err != nil {
		return model.Notification{}, fmt.Errorf("query notification: %w", err)
	}
	return n, nil
}

// ListByUser returns the user's notifications, newest first.
func (s *PgNotificationStore) ListByUser(ctx context.Context, userID string) ([]model.Notification, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var result []model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

// MarkRead flags a notification as read.
func (s *PgNotificationStore) MarkRead(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("notification %q not found", id))
	}
	return nil
}

// Delete removes a notification.
func (s *PgNotificationStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError(fmt.Sprintf("notification %q not found", id))
	}
	return nil
}

// DeleteByProcess removes all notifications bound to a process.
func (s *PgNotificationStore) DeleteByProcess(ctx context.Context, processID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM notifications WHERE process_id = $1`, processID)
	if err != nil {
		return fmt.Errorf("delete notifications: %w", err)
	}
	return nil
}

func scanNotification(row pgx.Row) (model.Notification, error) {
	var n model.Notification
	err := row.Scan(&n.ID, &n.UserID, &n.ProcessID, &n.Message, &n.Type, &n.Read, &n.CreatedAt)
	return n, err
}
