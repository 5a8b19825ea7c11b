package service

import (
	"context"
	"errors"

	"signet/pkg/platform/sentinel"

	"signet/internal/clientauth"
	"signet/internal/event"
	"signet/internal/token/models"
)

// Introspection is the RFC 7662 response body. For inactive tokens only
// Active is populated; nothing about the token leaks.
type Introspection struct {
	Active    bool   `json:"active"`
	Scope     string `json:"scope,omitempty"`
	ClientID  string `json:"client_id,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	Sub       string `json:"sub,omitempty"`
	Iat       int64  `json:"iat,omitempty"`
	Exp       int64  `json:"exp,omitempty"`
}

// Introspect reports whether the access token is live. A token is active
// iff now is strictly before its expiry instant; a token found expired is
// removed from the store rather than left to linger.
func (s *Service) Introspect(ctx context.Context, instruction *clientauth.Instruction, value string) (*Introspection, error) {
	ctx, span := s.startSpan(ctx, "token.introspect", instruction.CandidateClientID())
	defer span.End()

	if _, err := s.authenticator.Authenticate(ctx, instruction, s.issuer); err != nil {
		return nil, err
	}

	token, err := s.tokens.GetAccessToken(ctx, value)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &Introspection{Active: false}, nil
		}
		return nil, err
	}
	if !token.IsActive(s.clock()) {
		if err := s.tokens.RemoveAccessToken(ctx, token); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, err
		}
		return &Introspection{Active: false}, nil
	}

	sub, _ := token.IDTokenPayload["sub"].(string)
	return &Introspection{
		Active:    true,
		Scope:     token.Scope,
		ClientID:  token.ClientID,
		TokenType: token.TokenType,
		Sub:       sub,
		Iat:       token.CreateDateTime.Unix(),
		Exp:       token.ExpiryInstant().Unix(),
	}, nil
}

// Revoke invalidates an access or refresh token. Per RFC 7009 an unknown
// token is a success: the desired state already holds.
func (s *Service) Revoke(ctx context.Context, instruction *clientauth.Instruction, value string) error {
	ctx, span := s.startSpan(ctx, "token.revoke", instruction.CandidateClientID())
	defer span.End()

	client, err := s.authenticator.Authenticate(ctx, instruction, s.issuer)
	if err != nil {
		return err
	}

	token, err := s.tokens.GetAccessToken(ctx, value)
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}
		token, err = s.tokens.GetRefreshToken(ctx, value)
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
	}
	if token.ClientID != client.ID {
		// A client may only revoke its own tokens; pretend not found.
		return nil
	}
	if err := s.tokens.RemoveAccessToken(ctx, token); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
		return err
	}
	s.emitRevoked(ctx, token)
	return nil
}

func (s *Service) emitRevoked(ctx context.Context, token *models.GrantedToken) {
	sub, _ := token.IDTokenPayload["sub"].(string)
	s.events.Emit(ctx, event.Event{
		Type:      event.TypeTokenRevoked,
		Subject:   sub,
		ClientID:  token.ClientID,
		Timestamp: s.clock(),
	})
}
