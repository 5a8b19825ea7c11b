package owner

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"signet/pkg/platform/sentinel"
)

// AMRPassword is the authentication-method reference of this service.
const AMRPassword = "pwd"

// Store resolves resource owners by login.
type Store interface {
	GetByLogin(ctx context.Context, login string) (*ResourceOwner, error)
}

// PasswordService authenticates resource owners with a login/password pair
// against bcrypt hashes.
type PasswordService struct {
	store Store
}

// NewPasswordService constructs the password authenticator.
func NewPasswordService(store Store) (*PasswordService, error) {
	if store == nil {
		return nil, fmt.Errorf("owner store is required")
	}
	return &PasswordService{store: store}, nil
}

// AMR identifies the method this service implements.
func (s *PasswordService) AMR() string {
	return AMRPassword
}

// AuthenticateResourceOwner returns the owner when the credentials check
// out, nil otherwise. Store lookup misses and password mismatches are
// indistinguishable to the caller.
func (s *PasswordService) AuthenticateResourceOwner(ctx context.Context, login, password string) (*ResourceOwner, error) {
	ro, err := s.store.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve resource owner: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(ro.PasswordHash), []byte(password)) != nil {
		return nil, nil
	}
	return ro, nil
}

// HashPassword produces a bcrypt hash for seeding owner records.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
