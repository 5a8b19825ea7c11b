// Package httptransport is the thin HTTP layer. Handlers decode requests,
// delegate to domain services, and serialize results; no business logic
// lives here.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"signet/internal/authorize"
	clientModels "signet/internal/client/models"
	"signet/internal/clientauth"
	consentService "signet/internal/consent/service"
	"signet/internal/domain"
	"signet/internal/jws"
	"signet/internal/owner"
	"signet/internal/platform/metrics"
	tokenService "signet/internal/token/service"
)

// ClientStore resolves client registrations for the authorization endpoint.
type ClientStore interface {
	GetByID(ctx context.Context, id string) (*clientModels.Client, error)
}

// TokenService is the token endpoint surface.
type TokenService interface {
	Grant(ctx context.Context, req *tokenService.Request) (*tokenService.Response, error)
	Hybrid(ctx context.Context, instruction *clientauth.Instruction, param *authorize.Parameter, principal domain.Principal) (authorize.Result, error)
	Introspect(ctx context.Context, instruction *clientauth.Instruction, value string) (*tokenService.Introspection, error)
	Revoke(ctx context.Context, instruction *clientauth.Instruction, value string) error
	BeginDeviceAuthorization(ctx context.Context, instruction *clientauth.Instruction, scope string) (*tokenService.DeviceAuthorization, error)
	ApproveDevice(ctx context.Context, userCode string, principal domain.Principal) error
}

// ConsentService is the consent screen surface.
type ConsentService interface {
	DisplayConsent(ctx context.Context, param *authorize.Parameter, principal domain.Principal, client *clientModels.Client) (*consentService.Display, error)
	ConfirmConsent(ctx context.Context, param *authorize.Parameter, principal domain.Principal, client *clientModels.Client) (*authorize.CallbackPayload, error)
}

// OwnerAuthenticator backs the login endpoint.
type OwnerAuthenticator interface {
	AuthenticateResourceOwner(ctx context.Context, login, password string) (*owner.ResourceOwner, error)
}

// Handler holds the wired services.
type Handler struct {
	clients   ClientStore
	processor *authorize.Processor
	generator *authorize.Generator
	tokens    TokenService
	consents  ConsentService
	owners    OwnerAuthenticator
	sessions  *Sessions
	keys      *jws.KeyStore
	logger    *slog.Logger
}

// NewHandler constructs the transport handler.
func NewHandler(clients ClientStore, processor *authorize.Processor, generator *authorize.Generator,
	tokens TokenService, consents ConsentService, owners OwnerAuthenticator,
	sessions *Sessions, keys *jws.KeyStore, logger *slog.Logger) *Handler {

	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		clients:   clients,
		processor: processor,
		generator: generator,
		tokens:    tokens,
		consents:  consents,
		owners:    owners,
		sessions:  sessions,
		keys:      keys,
		logger:    logger,
	}
}

// NewRouter wires all public endpoints.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/authorize", h.handleAuthorize)
	r.Post("/hybrid", h.handleHybrid)
	r.Post("/token", h.handleToken)
	r.Post("/introspect", h.handleIntrospect)
	r.Post("/revoke", h.handleRevoke)
	r.Post("/device_authorization", h.handleDeviceAuthorization)
	r.Post("/device", h.handleDeviceApprove)
	r.Post("/login", h.handleLogin)
	r.Get("/consent", h.handleConsentDisplay)
	r.Post("/consent", h.handleConsentConfirm)
	r.Get("/.well-known/jwks.json", h.handleJWKS)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}
