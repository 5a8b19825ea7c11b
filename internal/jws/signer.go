// Package jws implements the compact JWT signing layer used for ID tokens,
// access tokens, and client assertions. Only the RSA family (RS256/RS384/
// RS512) and the explicit "none" case are supported; anything else signs to
// an empty result and verifies to false rather than erroring.
package jws

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var signLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "signet_jws_sign_seconds",
	Help:    "Latency of compact token generation.",
	Buckets: prometheus.DefBuckets,
}, []string{"alg"})

// AlgNone marks an unsigned token, used only when no key is configured.
const AlgNone = "none"

var rsaMethods = map[string]*jwt.SigningMethodRSA{
	"RS256": jwt.SigningMethodRS256,
	"RS384": jwt.SigningMethodRS384,
	"RS512": jwt.SigningMethodRS512,
}

// Payload is the claim set of a token. Claims marshal with deterministic
// (sorted) key order.
type Payload map[string]any

// ProtectedHeader is the JOSE header of a signed token. Kid is present for
// every algorithm except "none".
type ProtectedHeader struct {
	Alg string `json:"alg"`
	Typ string `json:"typ,omitempty"`
	Kid string `json:"kid,omitempty"`
}

// Signer signs and verifies compact signing inputs. It is stateless; key
// material is passed per call.
type Signer struct{}

// Sign produces the base64url signature segment for signingInput. Unknown or
// unsupported algorithms, nil keys, and signing failures all yield an empty
// string; "none" yields an empty string by definition.
func (Signer) Sign(alg string, key *rsa.PrivateKey, signingInput string) string {
	if alg == AlgNone {
		return ""
	}
	method, ok := rsaMethods[alg]
	if !ok || key == nil {
		return ""
	}
	sig, err := method.Sign(signingInput, key)
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(sig)
}

// Verify reports whether signature is a valid signature over signingInput.
// "none" verifies only an empty signature; unknown algorithms always fail.
func (Signer) Verify(alg string, key *rsa.PublicKey, signingInput, signature string) bool {
	if alg == AlgNone {
		return signature == ""
	}
	method, ok := rsaMethods[alg]
	if !ok || key == nil {
		return false
	}
	sig, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	return method.Verify(signingInput, sig, key) == nil
}

// SigningKey is a private key with its published key id.
type SigningKey struct {
	ID  string
	Alg string
	Key *rsa.PrivateKey
}

// Generate builds a compact token from payload. For "none" the kid is
// omitted and the signature segment is empty. A signing failure for any
// other algorithm is an error; an unsigned token must never be produced by
// accident.
func Generate(payload Payload, alg string, key SigningKey) (string, error) {
	start := time.Now()
	defer func() { signLatency.WithLabelValues(alg).Observe(time.Since(start).Seconds()) }()

	header := ProtectedHeader{Alg: alg, Typ: "JWT"}
	if alg != AlgNone {
		header.Kid = key.ID
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("encode header: %w", err)
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	signingInput := base64.RawURLEncoding.EncodeToString(headerJSON) +
		"." + base64.RawURLEncoding.EncodeToString(payloadJSON)

	if alg == AlgNone {
		return signingInput + ".", nil
	}

	sig := (Signer{}).Sign(alg, key.Key, signingInput)
	if sig == "" {
		return "", fmt.Errorf("unsupported signing algorithm %q", alg)
	}
	return signingInput + "." + sig, nil
}

// DecodePayload extracts the claim set of a compact token without verifying
// it. Callers that need authenticity must verify first.
func DecodePayload(token string) (Payload, error) {
	parts, err := splitCompact(token, 3)
	if err != nil {
		return nil, err
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload segment: %w", err)
	}
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	return payload, nil
}

func splitCompact(token string, segments int) ([]string, error) {
	parts := make([]string, 0, segments)
	start := 0
	for i := 0; i < len(token); i++ {
		if token[i] == '.' {
			parts = append(parts, token[start:i])
			start = i + 1
		}
	}
	parts = append(parts, token[start:])
	if len(parts) != segments {
		return nil, fmt.Errorf("expected %d segments, got %d", segments, len(parts))
	}
	return parts, nil
}
