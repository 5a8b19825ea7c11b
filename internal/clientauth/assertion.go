package clientauth

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"signet/internal/jws"
)

// AssertionType is the only client_assertion_type this server accepts.
const AssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// IsJwsToken classifies an assertion as a compact JWS by structural shape:
// exactly three dot-separated segments, none of the first two empty.
func IsJwsToken(raw string) bool {
	parts := strings.Split(raw, ".")
	return len(parts) == 3 && parts[0] != "" && parts[1] != ""
}

// IsJweToken classifies an assertion as a compact JWE: five segments with a
// non-empty header.
func IsJweToken(raw string) bool {
	parts := strings.Split(raw, ".")
	return len(parts) == 5 && parts[0] != ""
}

// assertionIssuer extracts the iss claim of a JWS assertion without
// verifying it. Used only to pick the candidate client id; every claim is
// re-validated once the client's keys are known.
func assertionIssuer(raw string) string {
	if !IsJwsToken(raw) {
		return ""
	}
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser().ParseUnverified(raw, &claims)
	if err != nil {
		return ""
	}
	return claims.Issuer
}

// validateSignedAssertion verifies a JWS assertion against the validation
// parameters produced by the key store: signature over the client's JWKS,
// issuer equal to the client id, audience containing the expected issuer,
// and expiry enforced with zero leeway beyond the token's own exp.
func validateSignedAssertion(raw string, params jws.AssertionParams) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.NewParser(
		jwt.WithIssuer(params.ExpectedIssuer),
		jwt.WithAudience(params.ExpectedAudience),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
	).ParseWithClaims(raw, claims, params.Keyfunc)
	if err != nil {
		return nil, fmt.Errorf("validate client assertion: %w", err)
	}
	return claims, nil
}
