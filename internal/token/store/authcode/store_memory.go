package authcode

import (
	"context"
	"fmt"
	"sync"
	"time"

	"signet/internal/token/models"
	"signet/pkg/platform/sentinel"
)

// InMemoryCodeStore keeps authorization codes in memory for tests/dev.
// Codes are single-use: Consume removes the record whether or not the
// exchange ultimately succeeds.
type InMemoryCodeStore struct {
	mu       sync.Mutex
	codes    map[string]*models.AuthorizationCode
	consumed map[string]struct{}
}

// New constructs an empty in-memory code store.
func New() *InMemoryCodeStore {
	return &InMemoryCodeStore{
		codes:    make(map[string]*models.AuthorizationCode),
		consumed: make(map[string]struct{}),
	}
}

func (s *InMemoryCodeStore) Add(_ context.Context, code *models.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[code.Code]; ok {
		return fmt.Errorf("authorization code: %w", sentinel.ErrConflict)
	}
	copied := *code
	s.codes[code.Code] = &copied
	return nil
}

// Consume removes and returns the code. A second consumption of the same
// value reports ErrAlreadyUsed so replay can be distinguished from an
// unknown code.
func (s *InMemoryCodeStore) Consume(_ context.Context, value string, now time.Time) (*models.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	code, ok := s.codes[value]
	if !ok {
		if _, used := s.consumed[value]; used {
			return nil, fmt.Errorf("authorization code: %w", sentinel.ErrAlreadyUsed)
		}
		return nil, fmt.Errorf("authorization code: %w", sentinel.ErrNotFound)
	}
	delete(s.codes, value)
	s.consumed[value] = struct{}{}
	if code.IsExpired(now) {
		return nil, fmt.Errorf("authorization code: %w", sentinel.ErrExpired)
	}
	copied := *code
	return &copied, nil
}
