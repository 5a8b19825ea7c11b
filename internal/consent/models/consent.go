package models

import (
	"time"

	dErrors "signet/pkg/domain-errors"
)

// Consent is the durable record of a resource owner approving a client's
// access. A consent covers either a set of scopes or a set of claim names,
// never both; matching is exact set equality on whichever side it carries.
type Consent struct {
	ID            string
	Subject       string
	ClientID      string
	GrantedScopes []string
	GrantedClaims []string
	GrantedAt     time.Time
}

// NewScopesConsent builds a scope-bearing consent.
func NewScopesConsent(id, subject, clientID string, scopes []string, now time.Time) (*Consent, error) {
	if subject == "" || clientID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consent requires subject and client id")
	}
	if len(scopes) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "scope consent requires at least one scope")
	}
	return &Consent{
		ID:            id,
		Subject:       subject,
		ClientID:      clientID,
		GrantedScopes: scopes,
		GrantedAt:     now,
	}, nil
}

// NewClaimsConsent builds a claim-bearing consent.
func NewClaimsConsent(id, subject, clientID string, claims []string, now time.Time) (*Consent, error) {
	if subject == "" || clientID == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "consent requires subject and client id")
	}
	if len(claims) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "claims consent requires at least one claim")
	}
	return &Consent{
		ID:            id,
		Subject:       subject,
		ClientID:      clientID,
		GrantedClaims: claims,
		GrantedAt:     now,
	}, nil
}

// IsClaimsConsent reports whether this consent covers claim names rather
// than scopes.
func (c *Consent) IsClaimsConsent() bool {
	return len(c.GrantedClaims) > 0
}
