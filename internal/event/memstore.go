package event

import (
	"context"
	"sort"
	"sync"

	"github.com/relayops/relay/model"
)

// MemoryStore is an in-memory Store for testing and the memory driver.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]model.ProcessEvent
}

// NewMemoryStore creates a new in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]model.ProcessEvent)}
}

// Append persists a new event.
func (s *MemoryStore) Append(_ context.Context, e model.ProcessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ProcessID] = append(s.events[e.ProcessID], e)
	return nil
}

// ListByProcess returns the process's events in creation order.
func (s *MemoryStore) ListByProcess(_ context.Context, processID string) ([]model.ProcessEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[processID]
	result := make([]model.ProcessEvent, len(events))
	copy(result, events)
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteByProcess removes all events bound to a process.
func (s *MemoryStore) DeleteByProcess(_ context.Context, processID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.events, processID)
	return nil
}

// Len returns the total number of stored events. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, events := range s.events {
		n += len(events)
	}
	return n
}
