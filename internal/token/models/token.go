package models

import (
	"reflect"
	"time"

	"signet/internal/jws"
)

// GrantedToken is an issued access/refresh token pair with its payloads.
//
// Invariant: CreateDateTime + ExpiresIn is the sole expiry authority. No
// other field may be consulted to decide validity, and a token found expired
// is removed from its store, never mutated.
type GrantedToken struct {
	AccessToken    string
	RefreshToken   string
	Scope          string
	ClientID       string
	TokenType      string
	CreateDateTime time.Time
	ExpiresIn      time.Duration

	// Optional embedded payloads; set for grants that carry an identity.
	IDTokenPayload  jws.Payload
	UserInfoPayload jws.Payload
	// IDToken is the signed compact encoding of IDTokenPayload.
	IDToken string
}

// ExpiryInstant is the single point in time after which the token is dead.
func (t *GrantedToken) ExpiryInstant() time.Time {
	return t.CreateDateTime.Add(t.ExpiresIn)
}

// IsActive reports liveness at now. The boundary instant is not active:
// a token checked exactly at its expiry is already dead.
func (t *GrantedToken) IsActive(now time.Time) bool {
	return now.Before(t.ExpiryInstant())
}

// MatchesRequest reports whether this token satisfies an issuance request
// for the same (scope, client, payload) triple. Payload comparison is deep
// equality; two requests differing in any claim mint distinct tokens.
func (t *GrantedToken) MatchesRequest(scope, clientID string, idPayload, userInfoPayload jws.Payload) bool {
	return t.Scope == scope &&
		t.ClientID == clientID &&
		payloadEqual(t.IDTokenPayload, idPayload) &&
		payloadEqual(t.UserInfoPayload, userInfoPayload)
}

func payloadEqual(a, b jws.Payload) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
