package rules

import (
	"context"
	"sync"
)

// MemoryStore provides thread-safe in-memory storage for rules
type MemoryStore struct {
	rules sync.Map // map[string]Rule
}

// Ensure MemoryStore implements Store interface
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory rule store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get retrieves the rule for a client. Returns (nil, nil) when absent.
// The returned rule is a copy; mutating it does not affect the store.
func (s *MemoryStore) Get(ctx context.Context, clientID string) (*Rule, error) {
	val, ok := s.rules.Load(clientID)
	if !ok {
		return nil, nil
	}
	rule := val.(Rule)
	return &rule, nil
}

// Set stores the rule for a client after validating it
func (s *MemoryStore) Set(ctx context.Context, clientID string, rule Rule) error {
	if clientID == "" {
		return ErrInvalidClientID
	}
	if err := rule.Validate(); err != nil {
		return err
	}
	s.rules.Store(clientID, rule)
	return nil
}

// Delete removes the rule for a client
func (s *MemoryStore) Delete(ctx context.Context, clientID string) error {
	s.rules.Delete(clientID)
	return nil
}

// Clear removes all rules
func (s *MemoryStore) Clear() {
	s.rules.Range(func(key, value interface{}) bool {
		s.rules.Delete(key)
		return true
	})
}

// Close is a no-op for the in-memory store
func (s *MemoryStore) Close() error {
	return nil
}
