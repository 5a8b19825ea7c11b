package models

import "time"

// AuthorizationCode is the single-use artifact minted by the authorization
// endpoint and exchanged at the token endpoint. It is bound to the client
// and the exact redirect URI it was issued for.
type AuthorizationCode struct {
	Code        string
	ClientID    string
	RedirectURI string
	Subject     string
	Scopes      []string
	Nonce       string
	Claims      []string
	CreatedAt   time.Time
	TTL         time.Duration
}

// IsExpired reports whether the code is past its lifetime.
func (c *AuthorizationCode) IsExpired(now time.Time) bool {
	return !now.Before(c.CreatedAt.Add(c.TTL))
}
