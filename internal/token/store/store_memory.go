package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signet/internal/jws"
	"signet/internal/token/models"
	"signet/pkg/platform/sentinel"
)

// Error Contract:
// All store methods follow this pattern:
// - Return ErrNotFound (wrapped) when the requested token does not exist
// - Return nil for successful operations
// GetValidGrantedToken is the one lookup allowed to mutate: tokens it finds
// expired are removed on the spot so the reuse check never resurrects them.

// InMemoryTokenStore keeps granted tokens in memory for tests/dev. The
// mutex makes the reuse check safe under concurrent issuance for the same
// client; distributed deployments swap in a store with its own atomicity.
type InMemoryTokenStore struct {
	mu       sync.Mutex
	byAccess map[string]*models.GrantedToken
	clock    func() time.Time
}

// Option configures the store.
type Option func(*InMemoryTokenStore)

// WithClock sets the time source for expiry checks.
func WithClock(clock func() time.Time) Option {
	return func(s *InMemoryTokenStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// New constructs an empty in-memory token store.
func New(opts ...Option) *InMemoryTokenStore {
	s := &InMemoryTokenStore{
		byAccess: make(map[string]*models.GrantedToken),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemoryTokenStore) AddToken(_ context.Context, token *models.GrantedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAccess[token.AccessToken]; ok {
		return fmt.Errorf("granted token: %w", sentinel.ErrConflict)
	}
	copied := *token
	s.byAccess[token.AccessToken] = &copied
	return nil
}

// GetValidGrantedToken returns a live token matching the exact
// (scope, client, payload) triple, or nil when none exists. Expired
// candidates encountered during the scan are deleted.
func (s *InMemoryTokenStore) GetValidGrantedToken(_ context.Context, scope, clientID string, idPayload, userInfoPayload jws.Payload) (*models.GrantedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock()
	for key, token := range s.byAccess {
		if !token.MatchesRequest(scope, clientID, idPayload, userInfoPayload) {
			continue
		}
		if !token.IsActive(now) {
			delete(s.byAccess, key)
			continue
		}
		copied := *token
		return &copied, nil
	}
	return nil, nil
}

func (s *InMemoryTokenStore) GetAccessToken(_ context.Context, value string) (*models.GrantedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token, ok := s.byAccess[value]; ok {
		copied := *token
		return &copied, nil
	}
	return nil, fmt.Errorf("access token: %w", sentinel.ErrNotFound)
}

func (s *InMemoryTokenStore) GetRefreshToken(_ context.Context, value string) (*models.GrantedToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, token := range s.byAccess {
		if token.RefreshToken != "" && token.RefreshToken == value {
			copied := *token
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("refresh token: %w", sentinel.ErrNotFound)
}

func (s *InMemoryTokenStore) RemoveAccessToken(_ context.Context, token *models.GrantedToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byAccess[token.AccessToken]; !ok {
		return fmt.Errorf("access token: %w", sentinel.ErrNotFound)
	}
	delete(s.byAccess, token.AccessToken)
	return nil
}
