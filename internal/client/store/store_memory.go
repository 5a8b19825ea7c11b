package store

import (
	"context"
	"fmt"
	"sync"

	"signet/internal/client/models"
	"signet/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return ErrNotFound (wrapped) when the requested client does not exist
// - Return ErrConflict (wrapped) when an insert collides
// - Return nil for successful operations
// Persistence failures are returned to the caller; nothing is swallowed into
// a boolean result.

// InMemoryClientStore keeps client registrations in memory for tests/dev.
type InMemoryClientStore struct {
	mu      sync.RWMutex
	clients map[string]*models.Client
}

// New constructs an empty in-memory client store.
func New() *InMemoryClientStore {
	return &InMemoryClientStore{clients: make(map[string]*models.Client)}
}

func (s *InMemoryClientStore) GetByID(_ context.Context, id string) (*models.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if client, ok := s.clients[id]; ok {
		copied := *client
		return &copied, nil
	}
	return nil, fmt.Errorf("client %q: %w", id, sentinel.ErrNotFound)
}

func (s *InMemoryClientStore) Insert(_ context.Context, client *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client.ID]; ok {
		return fmt.Errorf("client %q: %w", client.ID, sentinel.ErrConflict)
	}
	copied := *client
	s.clients[client.ID] = &copied
	return nil
}

func (s *InMemoryClientStore) Update(_ context.Context, client *models.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[client.ID]; !ok {
		return fmt.Errorf("client %q: %w", client.ID, sentinel.ErrNotFound)
	}
	copied := *client
	s.clients[client.ID] = &copied
	return nil
}
