package device

import (
	"context"
	"fmt"
	"sync"

	"signet/pkg/platform/sentinel"
)

// InMemoryStore keeps device authorizations in memory for tests/dev.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*AuthorizationData
}

// NewStore constructs an empty in-memory device store.
func NewStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]*AuthorizationData)}
}

func key(clientID, deviceCode string) string {
	return clientID + ":" + deviceCode
}

func (s *InMemoryStore) Get(_ context.Context, clientID, deviceCode string) (*AuthorizationData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.records[key(clientID, deviceCode)]; ok {
		copied := *rec
		return &copied, nil
	}
	return nil, fmt.Errorf("device authorization: %w", sentinel.ErrNotFound)
}

// GetByUserCode resolves the record a resource owner is approving.
func (s *InMemoryStore) GetByUserCode(_ context.Context, userCode string) (*AuthorizationData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rec := range s.records {
		if rec.UserCode == userCode {
			copied := *rec
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("device authorization: %w", sentinel.ErrNotFound)
}

func (s *InMemoryStore) Save(_ context.Context, rec *AuthorizationData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	s.records[key(rec.ClientID, rec.DeviceCode)] = &copied
	return nil
}

func (s *InMemoryStore) Remove(_ context.Context, rec *AuthorizationData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(rec.ClientID, rec.DeviceCode)
	if _, ok := s.records[k]; !ok {
		return fmt.Errorf("device authorization: %w", sentinel.ErrNotFound)
	}
	delete(s.records, k)
	return nil
}
