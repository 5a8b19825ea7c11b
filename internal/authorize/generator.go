package authorize

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	dErrors "signet/pkg/domain-errors"

	clientModels "signet/internal/client/models"
	"signet/internal/domain"
	"signet/internal/jws"
	tokenModels "signet/internal/token/models"
)

const defaultCodeTTL = 10 * time.Minute

// CodeStore persists freshly minted authorization codes.
type CodeStore interface {
	Add(ctx context.Context, code *tokenModels.AuthorizationCode) error
}

// TokenMinter issues (or reuses) an access token for the implicit and
// hybrid flows. Implemented by the token issuance service so authorization
// responses share its reuse semantics.
type TokenMinter interface {
	MintForAuthorization(ctx context.Context, client *clientModels.Client, scopes []string, principal domain.Principal) (*tokenModels.GrantedToken, error)
}

// Generator builds the callback payload for a request the processor has
// already cleared: codes, access tokens, and ID tokens per the requested
// response types.
type Generator struct {
	codes   CodeStore
	minter  TokenMinter
	keys    *jws.KeyStore
	issuer  string
	codeTTL time.Duration
	logger  *slog.Logger
	clock   func() time.Time
}

// GeneratorOption configures the generator.
type GeneratorOption func(*Generator)

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithGeneratorClock sets the time source.
func WithGeneratorClock(clock func() time.Time) GeneratorOption {
	return func(g *Generator) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithCodeTTL overrides the authorization code lifetime.
func WithCodeTTL(ttl time.Duration) GeneratorOption {
	return func(g *Generator) {
		if ttl > 0 {
			g.codeTTL = ttl
		}
	}
}

// NewGenerator constructs the generator.
func NewGenerator(codes CodeStore, minter TokenMinter, keys *jws.KeyStore, issuer string, opts ...GeneratorOption) (*Generator, error) {
	if codes == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "code store is required")
	}
	if minter == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "token minter is required")
	}
	if keys == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "key store is required")
	}
	if issuer == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "issuer is required")
	}
	g := &Generator{
		codes:   codes,
		minter:  minter,
		keys:    keys,
		issuer:  issuer,
		codeTTL: defaultCodeTTL,
		logger:  slog.Default(),
		clock:   time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Generate mints the artifacts for the request's response types and returns
// the payload to deliver at the redirect URI. The caller guarantees the
// request passed the processor.
func (g *Generator) Generate(ctx context.Context, param *Parameter, principal domain.Principal, client *clientModels.Client) (*CallbackPayload, error) {
	responseTypes, ok := param.ResponseTypes()
	if !ok || len(responseTypes) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "response_type is not recognized")
	}

	mode := param.ResponseMode
	if mode == domain.ResponseModeNone {
		derived, ok := domain.DefaultResponseModeOf(responseTypes)
		if !ok {
			return nil, dErrors.New(dErrors.CodeInvalidRequest, "no response mode for the requested response types")
		}
		mode = derived
	}

	payload := &CallbackPayload{
		RedirectURI:  param.RedirectURL,
		ResponseMode: mode,
		State:        param.State,
	}
	now := g.clock()
	scopes := param.Scopes()

	for _, rt := range responseTypes {
		switch rt {
		case domain.ResponseTypeCode:
			code := &tokenModels.AuthorizationCode{
				Code:        uuid.NewString(),
				ClientID:    client.ID,
				RedirectURI: param.RedirectURL,
				Subject:     principal.Subject,
				Scopes:      scopes,
				Nonce:       param.Nonce,
				Claims:      param.Claims,
				CreatedAt:   now,
				TTL:         g.codeTTL,
			}
			if err := g.codes.Add(ctx, code); err != nil {
				return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store authorization code")
			}
			payload.Code = code.Code
		case domain.ResponseTypeToken:
			granted, err := g.minter.MintForAuthorization(ctx, client, scopes, principal)
			if err != nil {
				return nil, err
			}
			payload.AccessToken = granted.AccessToken
			payload.TokenType = granted.TokenType
			payload.ExpiresIn = int64(granted.ExpiresIn / time.Second)
		case domain.ResponseTypeIDToken:
			idToken, err := g.signIDToken(param, principal, client, now)
			if err != nil {
				return nil, err
			}
			payload.IDToken = idToken
		}
	}

	g.logger.Debug("authorization response generated",
		"client_id", client.ID,
		"response_mode", string(mode),
		"has_code", payload.Code != "",
		"has_token", payload.AccessToken != "",
	)
	return payload, nil
}

func (g *Generator) signIDToken(param *Parameter, principal domain.Principal, client *clientModels.Client, now time.Time) (string, error) {
	claims := jws.IDTokenPayload(g.issuer, principal.Subject, client.ID, param.Nonce, principal.AMR, nil, now, client.Lifetime())
	alg := g.keys.SigningAlg()
	if client.IDTokenSignAlg != "" {
		alg = client.IDTokenSignAlg
	}
	key, _ := g.keys.CurrentKey()
	idToken, err := jws.Generate(claims, alg, key)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign id token")
	}
	return idToken, nil
}
