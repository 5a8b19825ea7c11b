package jws

import (
	"crypto/sha256"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

// Accepted JWE algorithms for client_secret_jwt assertions. The key is always
// derived from the client's shared secret, so only symmetric wrapping applies.
var (
	acceptedKeyAlgs = []jose.KeyAlgorithm{jose.A256KW, jose.DIRECT}
	acceptedEncs    = []jose.ContentEncryption{jose.A128CBC_HS256, jose.A256GCM}
)

// DeriveSharedKey folds a client shared secret into a 256-bit symmetric key
// for JWE unwrapping.
func DeriveSharedKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// DecryptAssertion decrypts a five-segment JWE client assertion using the key
// derived from sharedSecret and returns the plaintext, which is expected to
// be a compact JWS for further validation.
func DecryptAssertion(raw, sharedSecret string) (string, error) {
	encrypted, err := jose.ParseEncrypted(raw, acceptedKeyAlgs, acceptedEncs)
	if err != nil {
		return "", fmt.Errorf("parse encrypted assertion: %w", err)
	}
	plaintext, err := encrypted.Decrypt(DeriveSharedKey(sharedSecret))
	if err != nil {
		return "", fmt.Errorf("decrypt assertion: %w", err)
	}
	return string(plaintext), nil
}
