package jws

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// KeyStore holds the server's signing keys and resolves client key material
// into validation parameters. It is read-only after construction; key
// rotation builds a new store.
type KeyStore struct {
	keys []SigningKey
}

// NewKeyStore builds a store over the given signing keys. An empty store is
// valid: tokens then fall back to the unsigned "none" algorithm.
func NewKeyStore(keys ...SigningKey) *KeyStore {
	return &KeyStore{keys: keys}
}

// GenerateKeyStore creates a store with a single fresh RSA key. Used for
// dev wiring and tests; production deployments load persisted keys.
func GenerateKeyStore(bits int) (*KeyStore, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa key: %w", err)
	}
	return NewKeyStore(SigningKey{ID: uuid.NewString(), Alg: "RS256", Key: key}), nil
}

// CurrentKey returns the active signing key. ok is false when no key is
// configured, in which case callers must sign with "none".
func (ks *KeyStore) CurrentKey() (SigningKey, bool) {
	if len(ks.keys) == 0 {
		return SigningKey{}, false
	}
	return ks.keys[0], true
}

// SigningAlg returns the algorithm tokens will be signed with.
func (ks *KeyStore) SigningAlg() string {
	key, ok := ks.CurrentKey()
	if !ok {
		return AlgNone
	}
	return key.Alg
}

// PublicJWKS returns the published key set for the discovery document.
func (ks *KeyStore) PublicJWKS() jose.JSONWebKeySet {
	set := jose.JSONWebKeySet{}
	for _, k := range ks.keys {
		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       &k.Key.PublicKey,
			KeyID:     k.ID,
			Algorithm: k.Alg,
			Use:       "sig",
		})
	}
	return set
}

// ServerKeyfunc resolves kids against the server's own keys. Used to read
// back tokens this server issued (id_token_hint checks).
func (ks *KeyStore) ServerKeyfunc() jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		kid, _ := token.Header["kid"].(string)
		for _, k := range ks.keys {
			if k.ID == kid || kid == "" {
				return &k.Key.PublicKey, nil
			}
		}
		return nil, fmt.Errorf("no server key for kid %q", kid)
	}
}

// AssertionParams are the validation parameters for a client assertion,
// bound to the expected issuer and audience. Produced here so callers never
// hard-code them.
type AssertionParams struct {
	ExpectedIssuer   string
	ExpectedAudience string
	Keyfunc          jwt.Keyfunc
}

// ClientAssertionParams builds validation parameters for a private_key_jwt
// assertion: the issuer must be the client itself, the audience the given
// server issuer, and signatures resolve against the client's published JWKS.
func (ks *KeyStore) ClientAssertionParams(clientID string, clientJWKS jose.JSONWebKeySet, serverIssuer string) AssertionParams {
	return AssertionParams{
		ExpectedIssuer:   clientID,
		ExpectedAudience: serverIssuer,
		Keyfunc: func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, jwt.ErrTokenUnverifiable
			}
			kid, _ := token.Header["kid"].(string)
			var candidates []jose.JSONWebKey
			if kid != "" {
				candidates = clientJWKS.Key(kid)
			} else {
				candidates = clientJWKS.Keys
			}
			for _, k := range candidates {
				if pub, ok := publicRSA(k); ok {
					return pub, nil
				}
			}
			return nil, fmt.Errorf("no client key for kid %q", kid)
		},
	}
}

func publicRSA(k jose.JSONWebKey) (*rsa.PublicKey, bool) {
	switch key := k.Key.(type) {
	case *rsa.PublicKey:
		return key, true
	case *rsa.PrivateKey:
		return &key.PublicKey, true
	}
	return nil, false
}
