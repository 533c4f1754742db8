package stream

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/relayops/relay/model"
)

// MemoryNotificationStore is an in-memory NotificationStore for testing
// and the memory driver.
type MemoryNotificationStore struct {
	mu            sync.RWMutex
	notifications map[string]model.Notification
}

// NewMemoryNotificationStore creates a new in-memory notification store.
func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{notifications: make(map[string]model.Notification)}
}

// Create persists a new notification.
func (s *MemoryNotificationStore) Create(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[n.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("notification %q already exists", n.ID))
	}
	s.notifications[n.ID] = n
	return nil
}

// Get retrieves a notification by ID.
func (s *MemoryNotificationStore) Get(_ context.Context, id string) (model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, exists := s.notifications[id]
	if !exists {
		return model.Notification{}, model.NewNotFoundError(fmt.Sprintf("notification %q not found", id))
	}
	return n, nil
}

// ListByUser returns the user's notifications, newest first.
func (s *MemoryNotificationStore) ListByUser(_ context.Context, userID string) ([]model.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			result = append(result, n)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// MarkRead flags a notification as read.
func (s *MemoryNotificationStore) MarkRead(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, exists := s.notifications[id]
	if !exists {
		return model.NewNotFoundError(fmt.Sprintf("notification %q not found", id))
	}
	n.Read = true
	s.notifications[id] = n
	return nil
}

// Delete removes a notification.
func (s *MemoryNotificationStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.notifications[id]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("notification %q not found", id))
	}
	delete(s.notifications, id)
	return nil
}

// DeleteByProcess removes all notifications bound to a process.
func (s *MemoryNotificationStore) DeleteByProcess(_ context.Context, processID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, n := range s.notifications {
		if n.ProcessID == processID {
			delete(s.notifications, id)
		}
	}
	return nil
}

// Len returns the number of stored notifications. For testing.
func (s *MemoryNotificationStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notifications)
}
