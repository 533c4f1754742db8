// Package event ingests worker-reported process events and serves the
// interactive forms derived from them.
package event

import (
	"context"

	"github.com/relayops/relay/model"
)

// Store persists process events. Events are append-only; creation order is
// preserved per process.
type Store interface {
	// Append persists a new event.
	Append(ctx context.Context, e model.ProcessEvent) error

	// ListByProcess returns the process's events in creation order.
	ListByProcess(ctx context.Context, processID string) ([]model.ProcessEvent, error)

	// DeleteByProcess removes all events bound to a process.
	DeleteByProcess(ctx context.Context, processID string) error
}
