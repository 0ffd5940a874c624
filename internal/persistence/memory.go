package persistence

import (
	"context"
	"sync"

	json "github.com/goccy/go-json"
)

// MemoryStore keeps tracking states in process memory. It is the default
// when no Postgres DSN is configured; state does not survive a restart.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]json.RawMessage
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]json.RawMessage)}
}

// SaveTrackingState implements Store.
func (s *MemoryStore) SaveTrackingState(_ context.Context, clientOrderID string, state json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make(json.RawMessage, len(state))
	copy(cp, state)
	s.states[clientOrderID] = cp
	return nil
}

// RemoveTrackingState implements Store.
func (s *MemoryStore) RemoveTrackingState(_ context.Context, clientOrderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, clientOrderID)
	return nil
}

// LoadTrackingStates implements Store.
func (s *MemoryStore) LoadTrackingStates(context.Context) (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(s.states))
	for id, state := range s.states {
		cp := make(json.RawMessage, len(state))
		copy(cp, state)
		out[id] = cp
	}
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() {}
