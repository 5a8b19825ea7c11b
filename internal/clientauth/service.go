// Package clientauth decides whether a claimed client identity is proven.
// Exactly one authentication method is attempted per request: the one
// configured on the client record. Method failures carry distinct messages
// so the transport layer can render meaningful invalid_client errors.
package clientauth

import (
	"context"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	clientModels "signet/internal/client/models"
	"signet/internal/domain"
	"signet/internal/jws"
	dErrors "signet/pkg/domain-errors"
)

var authFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "signet_client_auth_failures_total",
	Help: "Client authentication failures by configured method",
}, []string{"method"})

// ClientStore looks up client registrations.
type ClientStore interface {
	GetByID(ctx context.Context, id string) (*clientModels.Client, error)
}

// Service authenticates clients against their configured token-endpoint
// authentication method.
type Service struct {
	clients ClientStore
	keys    *jws.KeyStore
	logger  *slog.Logger

	// methods is the closed strategy table keyed by the configured method.
	// Each arm is pure: (instruction, client) in, error out.
	methods map[domain.TokenEndpointAuthMethod]func(*Instruction, *clientModels.Client, string) error
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets a logger for authentication failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// New constructs the authenticator. Both collaborators are required.
func New(clients ClientStore, keys *jws.KeyStore, opts ...Option) (*Service, error) {
	if clients == nil {
		return nil, fmt.Errorf("client store is required")
	}
	if keys == nil {
		return nil, fmt.Errorf("key store is required")
	}

	s := &Service{
		clients: clients,
		keys:    keys,
		logger:  slog.Default(),
	}
	s.methods = map[domain.TokenEndpointAuthMethod]func(*Instruction, *clientModels.Client, string) error{
		domain.AuthMethodClientSecretBasic: s.authenticateSecretBasic,
		domain.AuthMethodClientSecretPost:  s.authenticateSecretPost,
		domain.AuthMethodClientSecretJWT:   s.authenticateSecretJWT,
		domain.AuthMethodPrivateKeyJWT:     s.authenticatePrivateKeyJWT,
		domain.AuthMethodTLSClientAuth:     s.authenticateTLSClient,
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authenticate resolves the candidate client id from the instruction, loads
// the client, and runs the single configured authentication method.
func (s *Service) Authenticate(ctx context.Context, instruction *Instruction, expectedIssuer string) (*clientModels.Client, error) {
	if instruction == nil {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "authenticate instruction is required")
	}

	clientID := instruction.CandidateClientID()
	if clientID == "" {
		return nil, dErrors.New(dErrors.CodeInvalidClient, "no client identifier supplied")
	}

	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil || client == nil {
		return nil, dErrors.New(dErrors.CodeInvalidClient, "client does not exist")
	}

	method, ok := s.methods[client.TokenEndpointAuthMethod]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidClient,
			fmt.Sprintf("unsupported authentication method %q", client.TokenEndpointAuthMethod))
	}

	if err := method(instruction, client, expectedIssuer); err != nil {
		authFailures.WithLabelValues(string(client.TokenEndpointAuthMethod)).Inc()
		s.logger.Info("client authentication failed",
			"client_id", clientID,
			"method", string(client.TokenEndpointAuthMethod),
		)
		return nil, err
	}
	return client, nil
}

func (s *Service) authenticateSecretBasic(instruction *Instruction, client *clientModels.Client, _ string) error {
	if !client.MatchSharedSecret(instruction.ClientSecretFromHeader) {
		return dErrors.New(dErrors.CodeInvalidClient, "the client secret from the authorization header is not valid")
	}
	return nil
}

func (s *Service) authenticateSecretPost(instruction *Instruction, client *clientModels.Client, _ string) error {
	if !client.MatchSharedSecret(instruction.ClientSecretFromBody) {
		return dErrors.New(dErrors.CodeInvalidClient, "the client secret from the request body is not valid")
	}
	return nil
}

// authenticateSecretJWT expects an encrypted assertion (JWE) unwrapped with a
// key derived from the client's shared secret; the decrypted payload is a JWS
// validated like a private_key_jwt assertion.
func (s *Service) authenticateSecretJWT(instruction *Instruction, client *clientModels.Client, expectedIssuer string) error {
	if !IsJweToken(instruction.ClientAssertion) || IsJwsToken(instruction.ClientAssertion) {
		return dErrors.New(dErrors.CodeInvalidClient, "the client assertion is not an encrypted token")
	}
	secrets := client.SharedSecrets()
	if len(secrets) == 0 {
		return dErrors.New(dErrors.CodeInvalidClient, "the client has no shared secret configured")
	}

	inner, err := jws.DecryptAssertion(instruction.ClientAssertion, secrets[0])
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidClient, "the client assertion cannot be decrypted")
	}
	if !IsJwsToken(inner) {
		return dErrors.New(dErrors.CodeInvalidClient, "the decrypted client assertion is not a signed token")
	}

	params := s.keys.ClientAssertionParams(client.ID, client.JSONWebKeys, expectedIssuer)
	if _, err := validateSignedAssertion(inner, params); err != nil {
		return dErrors.New(dErrors.CodeInvalidClient, "the client assertion claims are not valid")
	}
	return nil
}

// authenticatePrivateKeyJWT expects a signed assertion (JWS) whose issuer is
// the client itself, verified against the client's published JWKS.
func (s *Service) authenticatePrivateKeyJWT(instruction *Instruction, client *clientModels.Client, expectedIssuer string) error {
	if !IsJwsToken(instruction.ClientAssertion) || IsJweToken(instruction.ClientAssertion) {
		return dErrors.New(dErrors.CodeInvalidClient, "the client assertion is not a signed token")
	}

	params := s.keys.ClientAssertionParams(client.ID, client.JSONWebKeys, expectedIssuer)
	claims, err := validateSignedAssertion(instruction.ClientAssertion, params)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidClient, "the client assertion signature or claims are not valid")
	}
	if claims.Issuer != client.ID {
		return dErrors.New(dErrors.CodeInvalidClient, "the client assertion issuer does not match the client")
	}
	return nil
}

// authenticateTLSClient compares the presented certificate's thumbprint AND
// subject name against the registered X509 secrets; both must match.
func (s *Service) authenticateTLSClient(instruction *Instruction, client *clientModels.Client, _ string) error {
	if instruction.Certificate == nil {
		return dErrors.New(dErrors.CodeInvalidClient, "no client certificate was presented")
	}

	thumbprint, hasThumbprint := client.X509Secret(clientModels.SecretX509Thumbprint)
	name, hasName := client.X509Secret(clientModels.SecretX509Name)
	if !hasThumbprint || !hasName {
		return dErrors.New(dErrors.CodeInvalidClient, "the client has no X509 credentials configured")
	}

	if !strings.EqualFold(certThumbprint(instruction.Certificate), thumbprint) {
		return dErrors.New(dErrors.CodeInvalidClient, "the client certificate thumbprint does not match")
	}
	if !strings.EqualFold(instruction.Certificate.Subject.String(), name) {
		return dErrors.New(dErrors.CodeInvalidClient, "the client certificate subject does not match")
	}
	return nil
}

// certThumbprint is the hex SHA-1 digest of the DER certificate, the x5t
// convention used for registered thumbprints.
func certThumbprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	return hex.EncodeToString(sum[:])
}
