// Package service implements grant-type token issuance, introspection, and
// revocation. Every grant runs the same precondition pipeline: authenticate
// the client, check the grant allowance, then reuse or mint.
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	dErrors "signet/pkg/domain-errors"

	"signet/internal/authorize"
	clientModels "signet/internal/client/models"
	"signet/internal/clientauth"
	"signet/internal/device"
	"signet/internal/domain"
	"signet/internal/event"
	"signet/internal/jws"
	"signet/internal/owner"
	"signet/internal/token/models"
)

var tokensGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "signet_tokens_granted_total",
	Help: "Tokens issued, by grant type and whether an existing token was reused.",
}, []string{"grant_type", "reused"})

var tracer = otel.Tracer("signet/token")

// ClientAuthenticator proves the calling client's identity using its one
// configured method.
type ClientAuthenticator interface {
	Authenticate(ctx context.Context, instruction *clientauth.Instruction, expectedIssuer string) (*clientModels.Client, error)
}

// TokenStore persists granted tokens. GetValidGrantedToken must be atomic
// with respect to concurrent issuance for the same triple.
type TokenStore interface {
	AddToken(ctx context.Context, token *models.GrantedToken) error
	GetValidGrantedToken(ctx context.Context, scope, clientID string, idPayload, userInfoPayload jws.Payload) (*models.GrantedToken, error)
	GetAccessToken(ctx context.Context, value string) (*models.GrantedToken, error)
	GetRefreshToken(ctx context.Context, value string) (*models.GrantedToken, error)
	RemoveAccessToken(ctx context.Context, token *models.GrantedToken) error
}

// CodeStore consumes authorization codes minted by the authorization endpoint.
type CodeStore interface {
	Consume(ctx context.Context, value string, now time.Time) (*models.AuthorizationCode, error)
}

// DeviceStore persists device-authorization poll state.
type DeviceStore interface {
	Get(ctx context.Context, clientID, deviceCode string) (*device.AuthorizationData, error)
	GetByUserCode(ctx context.Context, userCode string) (*device.AuthorizationData, error)
	Save(ctx context.Context, rec *device.AuthorizationData) error
	Remove(ctx context.Context, rec *device.AuthorizationData) error
}

// OwnerAuthenticator verifies resource-owner credentials for one amr.
// A nil owner with a nil error means the credentials did not check out.
type OwnerAuthenticator interface {
	AuthenticateResourceOwner(ctx context.Context, login, password string) (*owner.ResourceOwner, error)
}

// EventPublisher is the fire-and-forget domain event sink.
type EventPublisher interface {
	Emit(ctx context.Context, evt event.Event)
}

// Service issues, introspects, and revokes tokens.
type Service struct {
	authenticator ClientAuthenticator
	tokens        TokenStore
	codes         CodeStore
	devices       DeviceStore
	owners        map[string]OwnerAuthenticator
	keys          *jws.KeyStore
	events        EventPublisher
	processor     *authorize.Processor
	generator     *authorize.Generator
	issuer        string
	logger        *slog.Logger
	clock         func() time.Time

	deviceCodeTTL  time.Duration
	devicePollGap  time.Duration
	deviceUserCode func() string
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock sets the time source.
func WithClock(clock func() time.Time) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithOwnerAuthenticator registers a resource-owner authenticator under its
// amr value.
func WithOwnerAuthenticator(amr string, authn OwnerAuthenticator) Option {
	return func(s *Service) {
		if amr != "" && authn != nil {
			s.owners[amr] = authn
		}
	}
}

// WithDeviceCodeTTL overrides the device-authorization lifetime.
func WithDeviceCodeTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.deviceCodeTTL = ttl
		}
	}
}

// WithDevicePollInterval overrides the minimum poll interval.
func WithDevicePollInterval(gap time.Duration) Option {
	return func(s *Service) {
		if gap > 0 {
			s.devicePollGap = gap
		}
	}
}

// New constructs the token service. The processor handles hybrid-flow
// validation; the generator is attached afterwards because it needs this
// service as its minter.
func New(authenticator ClientAuthenticator, tokens TokenStore, codes CodeStore,
	devices DeviceStore, keys *jws.KeyStore, events EventPublisher,
	processor *authorize.Processor, issuer string, opts ...Option) (*Service, error) {

	if authenticator == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "client authenticator is required")
	}
	if tokens == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "token store is required")
	}
	if codes == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "code store is required")
	}
	if devices == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "device store is required")
	}
	if keys == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "key store is required")
	}
	if events == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "event publisher is required")
	}
	if processor == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "authorization processor is required")
	}
	if issuer == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "issuer is required")
	}
	s := &Service{
		authenticator:  authenticator,
		tokens:         tokens,
		codes:          codes,
		devices:        devices,
		owners:         make(map[string]OwnerAuthenticator),
		keys:           keys,
		events:         events,
		processor:      processor,
		issuer:         issuer,
		logger:         slog.Default(),
		clock:          time.Now,
		deviceCodeTTL:  10 * time.Minute,
		devicePollGap:  5 * time.Second,
		deviceUserCode: newUserCode,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AttachGenerator wires the authorization response generator. Must be called
// once at startup before the hybrid grant is served.
func (s *Service) AttachGenerator(gen *authorize.Generator) {
	s.generator = gen
}

// requireGrant maps a missing allowance to unauthorized_client.
func requireGrant(client *clientModels.Client, grant domain.GrantType) error {
	if !client.HasGrant(grant) {
		return dErrors.New(dErrors.CodeUnauthorizedClient, "grant type is not allowed for this client")
	}
	return nil
}

// reuseOrMint returns an existing live token for the exact triple, or mints,
// signs, persists, and announces a fresh one.
func (s *Service) reuseOrMint(ctx context.Context, client *clientModels.Client, grant domain.GrantType,
	scope, subject string, idPayload, userInfoPayload jws.Payload, withRefresh bool) (*models.GrantedToken, error) {

	existing, err := s.tokens.GetValidGrantedToken(ctx, scope, client.ID, idPayload, userInfoPayload)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		tokensGranted.WithLabelValues(string(grant), "true").Inc()
		return existing, nil
	}

	now := s.clock()
	token := &models.GrantedToken{
		AccessToken:     uuid.NewString(),
		Scope:           scope,
		ClientID:        client.ID,
		TokenType:       "Bearer",
		CreateDateTime:  now,
		ExpiresIn:       client.Lifetime(),
		IDTokenPayload:  idPayload,
		UserInfoPayload: userInfoPayload,
	}
	if withRefresh {
		token.RefreshToken = uuid.NewString()
	}
	if len(idPayload) > 0 {
		idToken, err := s.signIDToken(idPayload, client, now)
		if err != nil {
			return nil, err
		}
		token.IDToken = idToken
	}
	if err := s.tokens.AddToken(ctx, token); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist granted token")
	}

	tokensGranted.WithLabelValues(string(grant), "false").Inc()
	s.events.Emit(ctx, event.Event{
		Type:      event.TypeTokenGranted,
		Subject:   subject,
		ClientID:  client.ID,
		Timestamp: now,
		Details:   map[string]string{"grant_type": string(grant), "scope": scope},
	})
	return token, nil
}

// signIDToken signs a copy of the stable identity payload with the time
// claims added. The stored payload stays time-free so the reuse check keys
// on identity, not on when the token happened to be minted.
func (s *Service) signIDToken(idPayload jws.Payload, client *clientModels.Client, now time.Time) (string, error) {
	claims := make(jws.Payload, len(idPayload)+2)
	for k, v := range idPayload {
		claims[k] = v
	}
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(client.Lifetime()).Unix()

	alg := s.keys.SigningAlg()
	if client.IDTokenSignAlg != "" {
		alg = client.IDTokenSignAlg
	}
	key, _ := s.keys.CurrentKey()
	idToken, err := jws.Generate(claims, alg, key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign id token")
	}
	return idToken, nil
}

// MintForAuthorization implements authorize.TokenMinter for the implicit and
// hybrid flows. The payload carries the subject so tokens are never shared
// across resource owners.
func (s *Service) MintForAuthorization(ctx context.Context, client *clientModels.Client, scopes []string, principal domain.Principal) (*models.GrantedToken, error) {
	idPayload := jws.Payload{
		"iss": s.issuer,
		"sub": principal.Subject,
		"aud": client.ID,
	}
	return s.reuseOrMint(ctx, client, domain.GrantImplicit, joinScopes(scopes), principal.Subject, idPayload, nil, false)
}

func (s *Service) startSpan(ctx context.Context, name, clientID string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("client_id", clientID)))
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
