package models

import (
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"

	"signet/internal/domain"
	dErrors "signet/pkg/domain-errors"
	pstrings "signet/pkg/platform/strings"
)

// SecretType distinguishes the credential kinds a client may register.
type SecretType string

const (
	SecretShared         SecretType = "shared_secret"
	SecretX509Thumbprint SecretType = "x509_thumbprint"
	SecretX509Name       SecretType = "x509_name"
)

// Secret is a typed client credential. Shared secrets back the
// client_secret_* methods; the X509 variants back tls_client_auth.
type Secret struct {
	Type  SecretType
	Value string
}

// Client is the aggregate root for a registered application.
//
// Invariants:
//   - ID is non-empty (the public client_id)
//   - RedirectURIs contains only absolute URIs
//   - AllowedGrants and AllowedResponseTypes are non-empty
//   - TokenEndpointAuthMethod is fixed at registration; authentication never
//     falls back to another method
//
// A Client is immutable for the duration of a request; only the external
// client-management surface mutates registrations.
type Client struct {
	ID                      string
	Name                    string
	Secrets                 []Secret
	TokenEndpointAuthMethod domain.TokenEndpointAuthMethod
	AllowedGrants           []domain.GrantType
	AllowedResponseTypes    []domain.ResponseType
	AllowedScopes           []string
	RedirectURIs            []string
	TokenLifetime           time.Duration
	IDTokenSignAlg          string
	// ClaimsToInclude filters which resource-owner claims may enter token
	// payloads minted for this client. Empty means no claims are embedded.
	ClaimsToInclude []string
	// JSONWebKeys is the client's published key set, used to verify
	// private_key_jwt assertions.
	JSONWebKeys jose.JSONWebKeySet
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// New validates registration invariants and returns the client.
func New(id, name string, method domain.TokenEndpointAuthMethod,
	grants []domain.GrantType, responseTypes []domain.ResponseType,
	scopes, redirectURIs []string, now time.Time) (*Client, error) {

	if id == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "client_id cannot be empty")
	}
	if len(grants) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "allowed_grants cannot be empty")
	}
	for _, g := range grants {
		if !g.IsValid() {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid allowed_grant")
		}
	}
	if len(responseTypes) == 0 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "allowed_response_types cannot be empty")
	}
	for _, uri := range redirectURIs {
		if !strings.Contains(uri, "://") {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "redirect URIs must be absolute")
		}
	}
	return &Client{
		ID:                      id,
		Name:                    name,
		TokenEndpointAuthMethod: method,
		AllowedGrants:           grants,
		AllowedResponseTypes:    responseTypes,
		AllowedScopes:           scopes,
		RedirectURIs:            redirectURIs,
		CreatedAt:               now,
		UpdatedAt:               now,
	}, nil
}

// SharedSecrets returns the values of all shared-secret credentials.
func (c *Client) SharedSecrets() []string {
	var out []string
	for _, s := range c.Secrets {
		if s.Type == SecretShared {
			out = append(out, s.Value)
		}
	}
	return out
}

// MatchSharedSecret reports whether supplied case-insensitively equals one of
// the client's shared secrets. First match wins; clients with zero shared
// secrets never match.
func (c *Client) MatchSharedSecret(supplied string) bool {
	for _, secret := range c.SharedSecrets() {
		if strings.EqualFold(secret, supplied) {
			return true
		}
	}
	return false
}

// X509Secret returns the registered value of the given X509 secret type.
func (c *Client) X509Secret(t SecretType) (string, bool) {
	for _, s := range c.Secrets {
		if s.Type == t {
			return s.Value, true
		}
	}
	return "", false
}

// HasGrant reports whether the client may exercise the grant type.
func (c *Client) HasGrant(g domain.GrantType) bool {
	for _, allowed := range c.AllowedGrants {
		if allowed == g {
			return true
		}
	}
	return false
}

// HasResponseTypes reports whether every requested response type is allowed.
func (c *Client) HasResponseTypes(types []domain.ResponseType) bool {
	allowed := make([]string, 0, len(c.AllowedResponseTypes))
	for _, t := range c.AllowedResponseTypes {
		allowed = append(allowed, string(t))
	}
	requested := make([]string, 0, len(types))
	for _, t := range types {
		requested = append(requested, string(t))
	}
	return pstrings.Subset(requested, allowed)
}

// AllowsScopes reports whether the requested scopes are a subset of the
// client's allowance.
func (c *Client) AllowsScopes(scopes []string) bool {
	return pstrings.Subset(scopes, c.AllowedScopes)
}

// HasRedirectURI reports whether uri is one of the registered redirect URIs.
// Comparison is exact; no prefix or wildcard matching.
func (c *Client) HasRedirectURI(uri string) bool {
	return pstrings.Contains(c.RedirectURIs, uri)
}

// IncludesClaim reports whether the named resource-owner claim may be
// embedded in token payloads for this client.
func (c *Client) IncludesClaim(name string) bool {
	return pstrings.Contains(c.ClaimsToInclude, name)
}

// Lifetime returns the token lifetime, defaulting when unset at registration.
func (c *Client) Lifetime() time.Duration {
	if c.TokenLifetime <= 0 {
		return time.Hour
	}
	return c.TokenLifetime
}
