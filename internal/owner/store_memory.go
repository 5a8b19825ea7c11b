package owner

import (
	"context"
	"fmt"
	"sync"

	"signet/pkg/platform/sentinel"
)

// InMemoryOwnerStore keeps resource owners in memory for tests/dev.
type InMemoryOwnerStore struct {
	mu      sync.RWMutex
	byLogin map[string]*ResourceOwner
}

// NewStore constructs an empty in-memory owner store.
func NewStore() *InMemoryOwnerStore {
	return &InMemoryOwnerStore{byLogin: make(map[string]*ResourceOwner)}
}

func (s *InMemoryOwnerStore) GetByLogin(_ context.Context, login string) (*ResourceOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ro, ok := s.byLogin[login]; ok {
		copied := *ro
		return &copied, nil
	}
	return nil, fmt.Errorf("resource owner %q: %w", login, sentinel.ErrNotFound)
}

func (s *InMemoryOwnerStore) Insert(_ context.Context, ro *ResourceOwner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byLogin[ro.Login]; ok {
		return fmt.Errorf("resource owner %q: %w", ro.Login, sentinel.ErrConflict)
	}
	copied := *ro
	s.byLogin[ro.Login] = &copied
	return nil
}
