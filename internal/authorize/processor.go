// Package authorize implements the authorization endpoint core: request
// validation, the prompt state machine, and response generation for the
// code, implicit, and hybrid flows.
package authorize

import (
	"context"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "signet/pkg/domain-errors"

	clientModels "signet/internal/client/models"
	"signet/internal/domain"
	"signet/internal/jws"
)

var authorizeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "signet_authorize_outcomes_total",
	Help: "Authorization endpoint outcomes by kind.",
}, []string{"outcome"})

// ConsentFinder reports whether the resource owner has previously granted
// this client exactly the requested scope and claim sets.
type ConsentFinder interface {
	HasMatchingConsent(ctx context.Context, subject, clientID string, scopes, claims []string) (bool, error)
}

// Processor validates an authorization request and runs the prompt state
// machine, deciding between a protocol error, an interactive screen, and
// completion at the client callback.
type Processor struct {
	consents ConsentFinder
	keys     *jws.KeyStore
	issuer   string
	logger   *slog.Logger
	clock    func() time.Time
}

// ProcessorOption configures the processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the logger.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProcessorClock sets the time source.
func WithProcessorClock(clock func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// NewProcessor constructs the processor. The issuer is this server's own
// identifier, used as the expected audience of id_token_hint values.
func NewProcessor(consents ConsentFinder, keys *jws.KeyStore, issuer string, opts ...ProcessorOption) (*Processor, error) {
	if consents == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "consent finder is required")
	}
	if keys == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "key store is required")
	}
	if issuer == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "issuer is required")
	}
	p := &Processor{
		consents: consents,
		keys:     keys,
		issuer:   issuer,
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Process runs the request through validation and the prompt machine.
// Protocol failures come back as a BadRequest result; only store and
// infrastructure faults are returned as errors.
func (p *Processor) Process(ctx context.Context, param *Parameter, principal domain.Principal, client *clientModels.Client) (Result, error) {
	// The redirect URI is checked first: until it is known-registered,
	// nothing may be delivered to it, including error responses.
	if param.RedirectURL == "" || !client.HasRedirectURI(param.RedirectURL) {
		return p.reject(dErrors.New(dErrors.CodeInvalidRequest, "redirect_uri is not registered for this client")), nil
	}
	scopes := param.Scopes()
	if !client.AllowsScopes(scopes) {
		return p.reject(dErrors.New(dErrors.CodeInvalidScope, "requested scope exceeds the client's allowed scopes")), nil
	}
	responseTypes, ok := param.ResponseTypes()
	if !ok || len(responseTypes) == 0 {
		return p.reject(dErrors.New(dErrors.CodeInvalidRequest, "response_type is not recognized")), nil
	}
	if !client.HasResponseTypes(responseTypes) {
		return p.reject(dErrors.New(dErrors.CodeInvalidRequest, "response_type is not allowed for this client")), nil
	}
	prompts := param.Prompts()
	for _, prompt := range prompts {
		if !prompt.IsValid() {
			return p.reject(dErrors.New(dErrors.CodeInvalidRequest, "prompt value is not recognized")), nil
		}
	}

	authenticated := principal.IsAuthenticated()
	if authenticated && param.MaxAge > 0 && principal.AuthenticationAge(p.clock()) > param.MaxAge {
		// The session outlived max_age; treat the request as unauthenticated
		// so every path below forces a fresh login.
		authenticated = false
	}

	hasConsent := func() (bool, error) {
		return p.consents.HasMatchingConsent(ctx, principal.Subject, client.ID, scopes, param.Claims)
	}

	if len(prompts) == 0 {
		if !authenticated {
			prompts = []domain.Prompt{domain.PromptLogin}
		} else {
			granted, err := hasConsent()
			if err != nil {
				return Result{}, err
			}
			if granted {
				prompts = []domain.Prompt{domain.PromptNone}
			} else {
				prompts = []domain.Prompt{domain.PromptConsent}
			}
		}
	}

	switch {
	case containsPrompt(prompts, domain.PromptNone):
		if !authenticated {
			return p.reject(dErrors.New(dErrors.CodeLoginRequired, "resource owner is not authenticated")), nil
		}
		granted, err := hasConsent()
		if err != nil {
			return Result{}, err
		}
		if !granted {
			return p.reject(dErrors.New(dErrors.CodeInteractionRequired, "consent has not been granted for the requested scope")), nil
		}
		// The hint is only checked once the flow is committed to the
		// callback; screens and errors never consult it.
		if err := p.checkIDTokenHint(param.IDTokenHint, principal); err != nil {
			return p.reject(err), nil
		}
		authorizeOutcomes.WithLabelValues("callback").Inc()
		return Result{Type: ResultRedirectToCallback}, nil
	case containsPrompt(prompts, domain.PromptLogin):
		return p.redirect(ScreenLogin), nil
	default:
		// consent or select_account
		if !authenticated {
			return p.redirect(ScreenLogin), nil
		}
		return p.redirect(ScreenConsent), nil
	}
}

// checkIDTokenHint verifies that a supplied hint was issued by this server
// to the currently logged-in resource owner.
func (p *Processor) checkIDTokenHint(hint string, principal domain.Principal) error {
	if hint == "" {
		return nil
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithAudience(p.issuer),
		jwt.WithTimeFunc(p.clock),
	)
	if _, err := parser.ParseWithClaims(hint, claims, p.keys.ServerKeyfunc()); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidRequest, "id_token_hint is not a token issued by this server")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub != principal.Subject {
		return dErrors.New(dErrors.CodeInvalidRequest, "id_token_hint subject does not match the current session")
	}
	return nil
}

func (p *Processor) reject(err error) Result {
	authorizeOutcomes.WithLabelValues("rejected").Inc()
	p.logger.Debug("authorization request rejected", "error", err)
	return BadRequest(err)
}

func (p *Processor) redirect(screen Screen) Result {
	authorizeOutcomes.WithLabelValues(string(screen)).Inc()
	return RedirectTo(screen)
}

func containsPrompt(prompts []domain.Prompt, target domain.Prompt) bool {
	for _, prompt := range prompts {
		if prompt == target {
			return true
		}
	}
	return false
}
