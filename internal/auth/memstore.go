package auth

import (
	"context"
	"fmt"
	"sync"

	"github.com/relayops/relay/model"
)

// MemoryTokenStore is an in-memory TokenStore for testing and the memory
// store driver.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]model.ProcessToken
}

// NewMemoryTokenStore creates a new in-memory token store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]model.ProcessToken)}
}

// Create persists a new token.
func (s *MemoryTokenStore) Create(_ context.Context, token model.ProcessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tokens[token.Token]; exists {
		return model.NewConflictError(fmt.Sprintf("token %q already exists", token.Token))
	}
	s.tokens[token.Token] = token
	return nil
}

// Get retrieves a token by value.
func (s *MemoryTokenStore) Get(_ context.Context, token string) (model.ProcessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.tokens[token]
	if !exists {
		return model.ProcessToken{}, model.NewNotFoundError("token not found")
	}
	return t, nil
}

// MarkCompleted sets the completion flag. Idempotent.
func (s *MemoryTokenStore) MarkCompleted(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.tokens[token]
	if !exists {
		return model.NewNotFoundError("token not found")
	}
	t.Completed = true
	s.tokens[token] = t
	return nil
}

// DeleteByProcess removes all tokens bound to a process.
func (s *MemoryTokenStore) DeleteByProcess(_ context.Context, processID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, t := range s.tokens {
		if t.ProcessID == processID {
			delete(s.tokens, k)
		}
	}
	return nil
}

// Len returns the number of stored tokens. For testing.
func (s *MemoryTokenStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// MemoryAPIKeyStore is an in-memory APIKeyStore.
type MemoryAPIKeyStore struct {
	mu   sync.RWMutex
	keys map[string]model.WorkerAPIKey
}

// NewMemoryAPIKeyStore creates a new in-memory API key store.
func NewMemoryAPIKeyStore() *MemoryAPIKeyStore {
	return &MemoryAPIKeyStore{keys: make(map[string]model.WorkerAPIKey)}
}

// Create persists a new key.
func (s *MemoryAPIKeyStore) Create(_ context.Context, key model.WorkerAPIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key.Key]; exists {
		return model.NewConflictError("api key already exists")
	}
	s.keys[key.Key] = key
	return nil
}

// Get retrieves a key by value.
func (s *MemoryAPIKeyStore) Get(_ context.Context, key string) (model.WorkerAPIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	k, exists := s.keys[key]
	if !exists {
		return model.WorkerAPIKey{}, model.NewNotFoundError("api key not found")
	}
	return k, nil
}

// Revoke marks a key revoked. Idempotent.
func (s *MemoryAPIKeyStore) Revoke(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k, exists := s.keys[key]
	if !exists {
		return model.NewNotFoundError("api key not found")
	}
	k.Revoked = true
	s.keys[key] = k
	return nil
}
