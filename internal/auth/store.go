package auth

import (
	"context"

	"github.com/relayops/relay/model"
)

// TokenStore persists per-process single-use tokens.
type TokenStore interface {
	// Create persists a new token.
	Create(ctx context.Context, token model.ProcessToken) error

	// Get retrieves a token by its string value. Returns NOT_FOUND for
	// unknown tokens.
	Get(ctx context.Context, token string) (model.ProcessToken, error)

	// MarkCompleted sets the completion flag. It is idempotent: marking an
	// already-completed token succeeds without effect.
	MarkCompleted(ctx context.Context, token string) error

	// DeleteByProcess removes all tokens bound to a process. Used by the
	// irreversible cleanup cascade of deleted failed processes.
	DeleteByProcess(ctx context.Context, processID string) error
}

// APIKeyStore persists capability-scoped worker API keys.
type APIKeyStore interface {
	// Create persists a new key.
	Create(ctx context.Context, key model.WorkerAPIKey) error

	// Get retrieves a key by its string value. Returns NOT_FOUND for
	// unknown keys.
	Get(ctx context.Context, key string) (model.WorkerAPIKey, error)

	// Revoke marks a key revoked. Idempotent.
	Revoke(ctx context.Context, key string) error
}
