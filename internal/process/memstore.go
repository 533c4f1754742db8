package process

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/relayops/relay/model"
)

// MemoryStore is an in-memory Store for testing and the memory driver.
type MemoryStore struct {
	mu        sync.RWMutex
	processes map[string]model.Process
}

// NewMemoryStore creates a new in-memory process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{processes: make(map[string]model.Process)}
}

// Create persists a new process.
func (s *MemoryStore) Create(_ context.Context, p model.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.processes[p.ID]; exists {
		return model.NewConflictError(fmt.Sprintf("process %q already exists", p.ID))
	}
	s.processes[p.ID] = p
	return nil
}

// Get retrieves a process by ID.
func (s *MemoryStore) Get(_ context.Context, id string) (model.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, exists := s.processes[id]
	if !exists {
		return model.Process{}, model.NewNotFoundError(fmt.Sprintf("process %q not found", id))
	}
	return p, nil
}

// Update persists a mutated process.
func (s *MemoryStore) Update(_ context.Context, p model.Process) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.processes[p.ID]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("process %q not found", p.ID))
	}
	s.processes[p.ID] = p
	return nil
}

// FindByStatus returns all processes in the given status.
func (s *MemoryStore) FindByStatus(_ context.Context, status model.ProcessStatus) ([]model.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Process
	for _, p := range s.processes {
		if p.Status == status {
			result = append(result, p)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.After(result[j].StartTime)
	})
	return result, nil
}

// ActiveForUser returns the user's most recently started active process.
func (s *MemoryStore) ActiveForUser(_ context.Context, userID string) (model.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *model.Process
	for _, p := range s.processes {
		if p.UserID != userID || !p.Active() {
			continue
		}
		p := p
		if best == nil || p.StartTime.After(best.StartTime) {
			best = &p
		}
	}
	if best == nil {
		return model.Process{}, model.NewNotFoundError("no active process")
	}
	return *best, nil
}

// MostRecentActive returns the most recently started active process.
func (s *MemoryStore) MostRecentActive(_ context.Context) (model.Process, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *model.Process
	for _, p := range s.processes {
		if !p.Active() {
			continue
		}
		p := p
		if best == nil || p.StartTime.After(best.StartTime) {
			best = &p
		}
	}
	if best == nil {
		return model.Process{}, model.NewNotFoundError("no active process")
	}
	return *best, nil
}

// Delete removes a process record.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.processes[id]; !exists {
		return model.NewNotFoundError(fmt.Sprintf("process %q not found", id))
	}
	delete(s.processes, id)
	return nil
}

// Len returns the number of stored processes. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.processes)
}
