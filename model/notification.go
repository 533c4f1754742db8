package model

import "time"

// NotificationType classifies a notification for client rendering.
type NotificationType string

// Notification types.
const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

// Valid reports whether t is a known notification type.
func (t NotificationType) Valid() bool {
	switch t {
	case NotifyInfo, NotifySuccess, NotifyWarning, NotifyError:
		return true
	}
	return false
}

// Notification is a persisted user-facing message. Rows are append-only
// except for the read flag; owners and admins may delete them.
type Notification struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	// ProcessID links process-scoped notifications so they are removed
	// together with the process. Empty for standalone notifications.
	ProcessID string           `json:"process_id,omitempty"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
