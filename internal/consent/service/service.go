// Package service implements consent matching and the display/confirm
// actions behind the consent screen. Matching is exact set equality on
// whichever side a consent carries; a claims consent never satisfies a
// scope request and vice versa.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "signet/pkg/domain-errors"
	pstrings "signet/pkg/platform/strings"

	"signet/internal/authorize"
	clientModels "signet/internal/client/models"
	"signet/internal/consent/models"
	"signet/internal/domain"
	"signet/internal/event"
	"signet/internal/scope"
)

var consentDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "signet_consent_decisions_total",
	Help: "Consent screen outcomes by kind.",
}, []string{"outcome"})

// ConsentStore persists and loads consents.
type ConsentStore interface {
	GetConsentsForGivenUser(ctx context.Context, subject string) ([]*models.Consent, error)
	Insert(ctx context.Context, consent *models.Consent) error
}

// ScopeStore resolves scope names against the registry.
type ScopeStore interface {
	SearchByNames(ctx context.Context, names []string) ([]scope.Scope, error)
}

// ResponseGenerator produces the callback payload once consent is settled.
type ResponseGenerator interface {
	Generate(ctx context.Context, param *authorize.Parameter, principal domain.Principal, client *clientModels.Client) (*authorize.CallbackPayload, error)
}

// EventPublisher is the fire-and-forget domain event sink.
type EventPublisher interface {
	Emit(ctx context.Context, evt event.Event)
}

// Service is the consent matcher plus the display and confirm actions.
type Service struct {
	consents  ConsentStore
	scopes    ScopeStore
	generator ResponseGenerator
	events    EventPublisher
	logger    *slog.Logger
	clock     func() time.Time
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

// New constructs the consent service.
func New(consents ConsentStore, scopes ScopeStore, generator ResponseGenerator, events EventPublisher, opts ...Option) (*Service, error) {
	if consents == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "consent store is required")
	}
	if scopes == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "scope store is required")
	}
	if generator == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "response generator is required")
	}
	if events == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "event publisher is required")
	}
	s := &Service{
		consents:  consents,
		scopes:    scopes,
		generator: generator,
		events:    events,
		logger:    slog.Default(),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Find returns the consent matching the request exactly, or nil. Claims
// requests match only claim-bearing consents on claim-name-set equality;
// scope requests match only scope-bearing consents on scope-set equality.
func (s *Service) Find(ctx context.Context, subject string, param *authorize.Parameter) (*models.Consent, error) {
	consents, err := s.consents.GetConsentsForGivenUser(ctx, subject)
	if err != nil {
		return nil, err
	}
	wantsClaims := len(param.Claims) > 0
	for _, consent := range consents {
		if consent.ClientID != param.ClientID {
			continue
		}
		if wantsClaims != consent.IsClaimsConsent() {
			continue
		}
		if wantsClaims {
			if pstrings.SetEqual(consent.GrantedClaims, param.Claims) {
				return consent, nil
			}
			continue
		}
		if pstrings.SetEqual(consent.GrantedScopes, param.Scopes()) {
			return consent, nil
		}
	}
	return nil, nil
}

// HasMatchingConsent implements authorize.ConsentFinder.
func (s *Service) HasMatchingConsent(ctx context.Context, subject, clientID string, scopes, claims []string) (bool, error) {
	param := &authorize.Parameter{ClientID: clientID, Claims: claims}
	param.Scope = joinNames(scopes)
	consent, err := s.Find(ctx, subject, param)
	if err != nil {
		return false, err
	}
	return consent != nil, nil
}

// Display is what the consent screen renders: either the human-visible
// scopes or the raw claim names the client is asking for. Response is set
// instead when an existing consent lets the flow skip the screen.
type Display struct {
	ClientName string
	Scopes     []scope.Scope
	ClaimNames []string
	Response   *authorize.CallbackPayload
}

// DisplayConsent prepares the consent screen. An existing matching consent
// short-circuits straight to response generation.
func (s *Service) DisplayConsent(ctx context.Context, param *authorize.Parameter, principal domain.Principal, client *clientModels.Client) (*Display, error) {
	existing, err := s.Find(ctx, principal.Subject, param)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		payload, err := s.generator.Generate(ctx, param, principal, client)
		if err != nil {
			return nil, err
		}
		consentDecisions.WithLabelValues("skipped").Inc()
		return &Display{ClientName: client.Name, Response: payload}, nil
	}

	if len(param.Claims) > 0 {
		return &Display{ClientName: client.Name, ClaimNames: param.Claims}, nil
	}
	visible, err := s.scopes.SearchByNames(ctx, param.Scopes())
	if err != nil {
		return nil, err
	}
	display := &Display{ClientName: client.Name}
	for _, sc := range visible {
		if sc.IsDisplayedInConsent {
			display.Scopes = append(display.Scopes, sc)
		}
	}
	return display, nil
}

// ConfirmConsent records the resource owner's approval (unless an equal
// consent already exists) and always proceeds to response generation.
func (s *Service) ConfirmConsent(ctx context.Context, param *authorize.Parameter, principal domain.Principal, client *clientModels.Client) (*authorize.CallbackPayload, error) {
	existing, err := s.Find(ctx, principal.Subject, param)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		consent, err := s.buildConsent(ctx, param, principal, client)
		if err != nil {
			return nil, err
		}
		if err := s.consents.Insert(ctx, consent); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist consent")
		}
		consentDecisions.WithLabelValues("accepted").Inc()
		s.events.Emit(ctx, event.Event{
			Type:      event.TypeConsentAccepted,
			Subject:   principal.Subject,
			ClientID:  client.ID,
			Timestamp: s.clock(),
			Details:   map[string]string{"scope": param.Scope},
		})
	}
	return s.generator.Generate(ctx, param, principal, client)
}

// buildConsent constructs the claims- or scopes-variant. Scope names are
// resolved through the registry so a consent never records unknown scopes.
func (s *Service) buildConsent(ctx context.Context, param *authorize.Parameter, principal domain.Principal, client *clientModels.Client) (*models.Consent, error) {
	now := s.clock()
	if len(param.Claims) > 0 {
		return models.NewClaimsConsent(uuid.NewString(), principal.Subject, client.ID, param.Claims, now)
	}
	resolved, err := s.scopes.SearchByNames(ctx, param.Scopes())
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resolved))
	for _, sc := range resolved {
		names = append(names, sc.Name)
	}
	return models.NewScopesConsent(uuid.NewString(), principal.Subject, client.ID, names, now)
}

func joinNames(names []string) string {
	out := ""
	for i, name := range names {
		if i > 0 {
			out += " "
		}
		out += name
	}
	return out
}
