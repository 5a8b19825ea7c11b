package store

import (
	"context"
	"fmt"
	"sync"

	"signet/internal/consent/models"
	"signet/pkg/platform/sentinel"
)

// InMemoryConsentStore keeps consents in memory for tests/dev.
type InMemoryConsentStore struct {
	mu        sync.RWMutex
	bySubject map[string][]*models.Consent
}

// New constructs an empty in-memory consent store.
func New() *InMemoryConsentStore {
	return &InMemoryConsentStore{bySubject: make(map[string][]*models.Consent)}
}

func (s *InMemoryConsentStore) GetConsentsForGivenUser(_ context.Context, subject string) ([]*models.Consent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	consents := s.bySubject[subject]
	out := make([]*models.Consent, len(consents))
	for i, c := range consents {
		copied := *c
		out[i] = &copied
	}
	return out, nil
}

func (s *InMemoryConsentStore) Insert(_ context.Context, consent *models.Consent) error {
	if consent == nil {
		return fmt.Errorf("nil consent: %w", sentinel.ErrInvalidState)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *consent
	s.bySubject[consent.Subject] = append(s.bySubject[consent.Subject], &copied)
	return nil
}
