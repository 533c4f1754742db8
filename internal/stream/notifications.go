package stream

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/relayops/relay/internal/observability"
	"github.com/relayops/relay/model"
)

// NotificationService persists notifications and pushes them to the
// owner's live sinks. Persistence is the source of truth; the live push
// is best-effort.
type NotificationService struct {
	store    NotificationStore
	registry *Registry
	metrics  *observability.Metrics
	now      func() time.Time
}

// NotificationOption configures a NotificationService.
type NotificationOption func(*NotificationService)

// WithNotificationClock overrides the service clock. For testing.
func WithNotificationClock(now func() time.Time) NotificationOption {
	return func(s *NotificationService) { s.now = now }
}

// WithNotificationMetrics attaches publish metrics.
func WithNotificationMetrics(m *observability.Metrics) NotificationOption {
	return func(s *NotificationService) { s.metrics = m }
}

// NewNotificationService creates a notification service.
func NewNotificationService(store NotificationStore, registry *Registry, opts ...NotificationOption) *NotificationService {
	s := &NotificationService{store: store, registry: registry, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notify records a notification for the user and publishes it to their
// live sinks. processID links the notification to a run; it may be empty.
func (s *NotificationService) Notify(ctx context.Context, userID, processID, message string, ntype model.NotificationType) (model.Notification, error) {
	if !ntype.Valid() {
		ntype = model.NotifyInfo
	}
	n := model.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		ProcessID: processID,
		Message:   message,
		Type:      ntype,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Create(ctx, n); err != nil {
		return model.Notification{}, err
	}

	if s.registry != nil {
		s.registry.Publish(userID, "notification", n)
	}
	if s.metrics != nil {
		s.metrics.RecordNotificationPublished(string(ntype))
	}
	return n, nil
}

// List returns the actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor model.Actor) ([]model.Notification, error) {
	return s.store.ListByUser(ctx, actor.ID)
}

// MarkRead flags a notification as read. Owners and admins only.
func (s *NotificationService) MarkRead(ctx context.Context, actor model.Actor, id string) error {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanAct(n.UserID) {
		return model.NewForbiddenError("notification belongs to another user")
	}
	return s.store.MarkRead(ctx, id)
}

// Delete removes a notification. Owners and admins only.
func (s *NotificationService) Delete(ctx context.Context, actor model.Actor, id string) error {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanAct(n.UserID) {
		return model.NewForbiddenError("notification belongs to another user")
	}
	return s.store.Delete(ctx, id)
}

// DeleteByProcess removes all notifications bound to a process. Used by
// the process delete cascade.
func (s *NotificationService) DeleteByProcess(ctx context.Context, processID string) error {
	return s.store.DeleteByProcess(ctx, processID)
}
