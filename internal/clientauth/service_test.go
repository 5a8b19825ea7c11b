package clientauth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	clientModels "signet/internal/client/models"
	clientStore "signet/internal/client/store"
	"signet/internal/domain"
	"signet/internal/jws"
	dErrors "signet/pkg/domain-errors"
)

const issuer = "https://signet.example.com"

type AuthenticatorSuite struct {
	suite.Suite
	clients   *clientStore.InMemoryClientStore
	keys      *jws.KeyStore
	service   *Service
	clientKey *rsa.PrivateKey
}

func TestAuthenticatorSuite(t *testing.T) {
	suite.Run(t, new(AuthenticatorSuite))
}

func (s *AuthenticatorSuite) SetupTest() {
	var err error
	s.clients = clientStore.New()
	s.keys, err = jws.GenerateKeyStore(2048)
	s.Require().NoError(err)
	s.clientKey, err = rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)

	s.service, err = New(s.clients, s.keys)
	s.Require().NoError(err)
}

func (s *AuthenticatorSuite) registerClient(id string, method domain.TokenEndpointAuthMethod, secrets ...clientModels.Secret) *clientModels.Client {
	client := &clientModels.Client{
		ID:                      id,
		TokenEndpointAuthMethod: method,
		AllowedGrants:           []domain.GrantType{domain.GrantAuthorizationCode},
		AllowedResponseTypes:    []domain.ResponseType{domain.ResponseTypeCode},
		Secrets:                 secrets,
		JSONWebKeys: jose.JSONWebKeySet{Keys: []jose.JSONWebKey{{
			Key:       &s.clientKey.PublicKey,
			KeyID:     "client-key-1",
			Algorithm: "RS256",
			Use:       "sig",
		}}},
	}
	s.Require().NoError(s.clients.Insert(context.Background(), client))
	return client
}

// signedAssertion builds a private_key_jwt style assertion signed with the
// test client key.
func (s *AuthenticatorSuite) signedAssertion(iss, aud string, exp time.Time) string {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
		Issuer:    iss,
		Subject:   iss,
		Audience:  []string{aud},
		ExpiresAt: jwt.NewNumericDate(exp),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})
	token.Header["kid"] = "client-key-1"
	raw, err := token.SignedString(s.clientKey)
	s.Require().NoError(err)
	return raw
}

func (s *AuthenticatorSuite) TestSecretBasic() {
	s.registerClient("web", domain.AuthMethodClientSecretBasic,
		clientModels.Secret{Type: clientModels.SecretShared, Value: "S3cret"})

	s.Run("matching secret succeeds", func() {
		client, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientIDFromHeader:     "web",
			ClientSecretFromHeader: "S3cret",
		}, issuer)
		s.NoError(err)
		s.Equal("web", client.ID)
	})

	s.Run("comparison is case-insensitive", func() {
		client, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientIDFromHeader:     "web",
			ClientSecretFromHeader: "s3CRET",
		}, issuer)
		s.NoError(err)
		s.NotNil(client)
	})

	s.Run("wrong secret fails", func() {
		_, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientIDFromHeader:     "web",
			ClientSecretFromHeader: "nope",
		}, issuer)
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInvalidClient))
		s.Contains(err.Error(), "authorization header")
	})

	s.Run("client with zero shared secrets never matches", func() {
		s.registerClient("bare", domain.AuthMethodClientSecretBasic)
		_, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientIDFromHeader:     "bare",
			ClientSecretFromHeader: "",
		}, issuer)
		s.Error(err)
	})

	s.Run("body secret is not consulted for basic", func() {
		_, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientIDFromHeader:   "web",
			ClientSecretFromBody: "S3cret",
		}, issuer)
		s.Error(err)
	})
}

func (s *AuthenticatorSuite) TestSecretPost() {
	s.registerClient("app", domain.AuthMethodClientSecretPost,
		clientModels.Secret{Type: clientModels.SecretShared, Value: "body-secret"})

	client, err := s.service.Authenticate(context.Background(), &Instruction{
		ClientIDFromBody:     "app",
		ClientSecretFromBody: "BODY-SECRET",
	}, issuer)
	s.NoError(err)
	s.Equal("app", client.ID)

	_, err = s.service.Authenticate(context.Background(), &Instruction{
		ClientIDFromBody:     "app",
		ClientSecretFromBody: "wrong",
	}, issuer)
	s.Error(err)
	s.Contains(err.Error(), "request body")
}

func (s *AuthenticatorSuite) TestClientDoesNotExist() {
	_, err := s.service.Authenticate(context.Background(), &Instruction{
		ClientIDFromHeader: "ghost",
	}, issuer)
	s.Error(err)
	s.True(dErrors.Is(err, dErrors.CodeInvalidClient))
	s.Contains(err.Error(), "client does not exist")
}

func (s *AuthenticatorSuite) TestNoClientIdentifier() {
	_, err := s.service.Authenticate(context.Background(), &Instruction{}, issuer)
	s.Error(err)
	s.Contains(err.Error(), "no client identifier")
}

func (s *AuthenticatorSuite) TestPrivateKeyJWT() {
	s.registerClient("jwt-client", domain.AuthMethodPrivateKeyJWT)

	s.Run("valid assertion succeeds and issuer wins id precedence", func() {
		assertion := s.signedAssertion("jwt-client", issuer, time.Now().Add(5*time.Minute))
		client, err := s.service.Authenticate(context.Background(), &Instruction{
			// Deliberately different body id: the assertion issuer takes precedence.
			ClientIDFromBody:    "other",
			ClientAssertion:     assertion,
			ClientAssertionType: AssertionType,
		}, issuer)
		s.NoError(err)
		s.Equal("jwt-client", client.ID)
	})

	s.Run("expired assertion fails", func() {
		assertion := s.signedAssertion("jwt-client", issuer, time.Now().Add(-time.Minute))
		_, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientAssertion: assertion,
		}, issuer)
		s.Error(err)
		s.True(dErrors.Is(err, dErrors.CodeInvalidClient))
	})

	s.Run("wrong audience fails", func() {
		assertion := s.signedAssertion("jwt-client", "https://elsewhere", time.Now().Add(5*time.Minute))
		_, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientAssertion: assertion,
		}, issuer)
		s.Error(err)
	})

	s.Run("assertion signed by an unknown key fails", func() {
		rogue, err := rsa.GenerateKey(rand.Reader, 2048)
		s.Require().NoError(err)
		token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.RegisteredClaims{
			Issuer:    "jwt-client",
			Audience:  []string{issuer},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
		})
		raw, err := token.SignedString(rogue)
		s.Require().NoError(err)

		_, err = s.service.Authenticate(context.Background(), &Instruction{ClientAssertion: raw}, issuer)
		s.Error(err)
	})

	s.Run("an encrypted assertion is rejected for this method", func() {
		_, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientIDFromBody: "jwt-client",
			ClientAssertion:  "a.b.c.d.e",
		}, issuer)
		s.Error(err)
		s.Contains(err.Error(), "not a signed token")
	})
}

func (s *AuthenticatorSuite) TestSecretJWT() {
	const secret = "jwe-shared-secret"
	s.registerClient("jwe-client", domain.AuthMethodClientSecretJWT,
		clientModels.Secret{Type: clientModels.SecretShared, Value: secret})

	encrypt := func(plaintext string) string {
		encrypter, err := jose.NewEncrypter(
			jose.A128CBC_HS256,
			jose.Recipient{Algorithm: jose.A256KW, Key: jws.DeriveSharedKey(secret)},
			nil,
		)
		s.Require().NoError(err)
		obj, err := encrypter.Encrypt([]byte(plaintext))
		s.Require().NoError(err)
		raw, err := obj.CompactSerialize()
		s.Require().NoError(err)
		return raw
	}

	s.Run("encrypted signed assertion succeeds", func() {
		inner := s.signedAssertion("jwe-client", issuer, time.Now().Add(5*time.Minute))
		client, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientIDFromBody: "jwe-client",
			ClientAssertion:  encrypt(inner),
		}, issuer)
		s.NoError(err)
		s.Equal("jwe-client", client.ID)
	})

	s.Run("a plain signed assertion is rejected for this method", func() {
		inner := s.signedAssertion("jwe-client", issuer, time.Now().Add(5*time.Minute))
		_, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientIDFromBody: "jwe-client",
			ClientAssertion:  inner,
		}, issuer)
		s.Error(err)
		s.Contains(err.Error(), "not an encrypted token")
	})

	s.Run("client without shared secret fails", func() {
		s.registerClient("jwe-bare", domain.AuthMethodClientSecretJWT)
		inner := s.signedAssertion("jwe-bare", issuer, time.Now().Add(5*time.Minute))
		_, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientIDFromBody: "jwe-bare",
			ClientAssertion:  encrypt(inner),
		}, issuer)
		s.Error(err)
		s.Contains(err.Error(), "no shared secret")
	})
}

func (s *AuthenticatorSuite) TestTLSClientAuth() {
	cert := s.selfSignedCert("mtls-client")

	s.registerClient("mtls", domain.AuthMethodTLSClientAuth,
		clientModels.Secret{Type: clientModels.SecretX509Thumbprint, Value: certThumbprint(cert)},
		clientModels.Secret{Type: clientModels.SecretX509Name, Value: cert.Subject.String()},
	)

	s.Run("matching thumbprint and subject succeeds", func() {
		client, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientIDFromBody: "mtls",
			Certificate:      cert,
		}, issuer)
		s.NoError(err)
		s.Equal("mtls", client.ID)
	})

	s.Run("missing certificate fails", func() {
		_, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientIDFromBody: "mtls",
		}, issuer)
		s.Error(err)
		s.Contains(err.Error(), "no client certificate")
	})

	s.Run("different certificate fails on thumbprint", func() {
		other := s.selfSignedCert("mtls-client")
		_, err := s.service.Authenticate(context.Background(), &Instruction{
			ClientIDFromBody: "mtls",
			Certificate:      other,
		}, issuer)
		s.Error(err)
		s.Contains(err.Error(), "thumbprint")
	})
}

func (s *AuthenticatorSuite) selfSignedCert(commonName string) *x509.Certificate {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	s.Require().NoError(err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	s.Require().NoError(err)
	cert, err := x509.ParseCertificate(der)
	s.Require().NoError(err)
	return cert
}

func TestTokenShapeClassifiers(t *testing.T) {
	suite.Run(t, new(shapeSuite))
}

type shapeSuite struct{ suite.Suite }

func (s *shapeSuite) TestIsJwsToken() {
	s.True(IsJwsToken("a.b.c"))
	s.True(IsJwsToken("a.b."))
	s.False(IsJwsToken("a.b"))
	s.False(IsJwsToken("a.b.c.d.e"))
	s.False(IsJwsToken(".b.c"))
}

func (s *shapeSuite) TestIsJweToken() {
	s.True(IsJweToken("a.b.c.d.e"))
	s.False(IsJweToken("a.b.c"))
	s.False(IsJweToken(".b.c.d.e"))
}
