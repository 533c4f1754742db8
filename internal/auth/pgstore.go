package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/relayops/relay/model"
)

// PgTokenStore is a PostgreSQL-backed TokenStore using pgx/v5.
type PgTokenStore struct {
	pool *pgxpool.Pool
}

// NewPgTokenStore creates a new PostgreSQL token store.
func NewPgTokenStore(pool *pgxpool.Pool) *PgTokenStore {
	return &PgTokenStore{pool: pool}
}

// Create inserts a new token.
func (s *PgTokenStore) Create(ctx context.Context, token model.ProcessToken) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO process_tokens (token, process_id, user_id, expires_at, completed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		token.Token, token.ProcessID, token.UserID,
		token.ExpiresAt, token.Completed, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert process token: %w", err)
	}
	return nil
}

// Get retrieves a token by value.
func (s *PgTokenStore) Get(ctx context.Context, token string) (model.ProcessToken, error) {
	var t model.ProcessToken
	err := s.pool.QueryRow(ctx, `
		SELECT token, process_id, user_id, expires_at, completed, created_at
		FROM process_tokens
		WHERE token = $1`,
		token,
	).Scan(&t.Token, &t.ProcessID, &t.UserID, &t.ExpiresAt, &t.Completed, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ProcessToken{}, model.NewNotFoundError("token not found")
	}
	if err != nil {
		return model.ProcessToken{}, fmt.Errorf("query process token: %w", err)
	}
	return t, nil
}

// MarkCompleted sets the completion flag. Idempotent.
func (s *PgTokenStore) MarkCompleted(ctx context.Context, token string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE process_tokens SET completed = TRUE WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("complete process token: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError("token not found")
	}
	return nil
}

// DeleteByProcess removes all tokens bound to a process.
func (s *PgTokenStore) DeleteByProcess(ctx context.Context, processID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM process_tokens WHERE process_id = $1`,
		processID,
	)
	if err != nil {
		return fmt.Errorf("delete process tokens: %w", err)
	}
	return nil
}

// PgAPIKeyStore is a PostgreSQL-backed APIKeyStore.
type PgAPIKeyStore struct {
	pool *pgxpool.Pool
}

// NewPgAPIKeyStore creates a new PostgreSQL API key store.
func NewPgAPIKeyStore(pool *pgxpool.Pool) *PgAPIKeyStore {
	return &PgAPIKeyStore{pool: pool}
}

// Create inserts a new key.
func (s *PgAPIKeyStore) Create(ctx context.Context, key model.WorkerAPIKey) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO worker_api_keys (key, name, permissions, revoked, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		key.Key, key.Name, key.Permissions, key.Revoked, key.ExpiresAt, key.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// Get retrieves a key by value.
func (s *PgAPIKeyStore) Get(ctx context.Context, key string) (model.WorkerAPIKey, error) {
	var k model.WorkerAPIKey
	err := s.pool.QueryRow(ctx, `
		SELECT key, name, permissions, revoked, expires_at, created_at
		FROM worker_api_keys
		WHERE key = $1`,
		key,
	).Scan(&k.Key, &k.Name, &k.Permissions, &k.Revoked, &k.ExpiresAt, &k.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.WorkerAPIKey{}, model.NewNotFoundError("api key not found")
	}
	if err != nil {
		return model.WorkerAPIKey{}, fmt.Errorf("query api key: %w", err)
	}
	return k, nil
}

// Revoke marks a key revoked. Idempotent.
func (s *PgAPIKeyStore) Revoke(ctx context.Context, key string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE worker_api_keys SET revoked = TRUE WHERE key = $1`,
		key,
	)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewNotFoundError("api key not found")
	}
	return nil
}
