package stream

import (
	"context"

	"github.com/relayops/relay/model"
)

// NotificationStore persists notifications.
type NotificationStore interface {
	// Create persists a new notification.
	Create(ctx context.Context, n model.Notification) error

	// Get retrieves a notification by ID. Returns NOT_FOUND if absent.
	Get(ctx context.Context, id string) (model.Notification, error)

	// ListByUser returns the user's notifications, newest first.
	ListByUser(ctx context.Context, userID string) ([]model.Notification, error)

	// MarkRead flags a notification as read.
	MarkRead(ctx context.Context, id string) error

	// Delete removes a notification.
	Delete(ctx context.Context, id string) error

	// DeleteByProcess removes all notifications bound to a process.
	DeleteByProcess(ctx context.Context, processID string) error
}
