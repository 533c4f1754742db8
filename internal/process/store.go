// Package process owns the process lifecycle: the status state machine,
// its transition guards, and process persistence.
package process

import (
	"context"

	"github.com/relayops/relay/model"
)

// Store persists process records.
type Store interface {
	// Create persists a new process.
	Create(ctx context.Context, p model.Process) error

	// Get retrieves a process by ID. Returns NOT_FOUND if absent.
	Get(ctx context.Context, id string) (model.Process, error)

	// Update persists a mutated process.
	Update(ctx context.Context, p model.Process) error

	// FindByStatus returns all processes currently in the given status.
	FindByStatus(ctx context.Context, status model.ProcessStatus) ([]model.Process, error)

	// ActiveForUser returns the user's most recently started non-terminal
	// process. Returns NOT_FOUND if the user has none.
	ActiveForUser(ctx context.Context, userID string) (model.Process, error)

	// MostRecentActive returns the most recently started non-terminal
	// process system-wide. Returns NOT_FOUND if none exists.
	MostRecentActive(ctx context.Context) (model.Process, error)

	// Delete removes a process record.
	Delete(ctx context.Context, id string) error
}

// Cascade removes records bound to a process when the process itself is
// deleted. Token, event, and notification stores implement it.
type Cascade interface {
	DeleteByProcess(ctx context.Context, processID string) error
}
