package scope

import (
	"context"
	"sync"
)

// InMemoryScopeStore keeps the scope registry in memory for tests/dev.
type InMemoryScopeStore struct {
	mu     sync.RWMutex
	scopes map[string]Scope
}

// NewStore constructs a store seeded with the given scopes.
func NewStore(scopes ...Scope) *InMemoryScopeStore {
	s := &InMemoryScopeStore{scopes: make(map[string]Scope, len(scopes))}
	for _, sc := range scopes {
		s.scopes[sc.Name] = sc
	}
	return s
}

// SearchByNames returns the registered scopes among names. Unknown names are
// silently dropped; callers deal with the narrowing.
func (s *InMemoryScopeStore) SearchByNames(_ context.Context, names []string) ([]Scope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Scope, 0, len(names))
	for _, name := range names {
		if sc, ok := s.scopes[name]; ok {
			out = append(out, sc)
		}
	}
	return out, nil
}
