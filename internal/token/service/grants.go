package service

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "signet/pkg/domain-errors"
	"signet/pkg/platform/sentinel"
	pstrings "signet/pkg/platform/strings"

	clientModels "signet/internal/client/models"
	"signet/internal/clientauth"
	"signet/internal/domain"
	"signet/internal/jws"
	"signet/internal/owner"
	"signet/internal/token/models"
)

var devicePolls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "signet_device_polls_total",
	Help: "Device-code grant polls by outcome.",
}, []string{"outcome"})

// Request is the parsed token-endpoint request. The transport layer fills
// only the fields the grant type uses.
type Request struct {
	GrantType string
	Scope     string

	// resource-owner-password
	Username string
	Password string
	AMR      string

	// device code
	DeviceCode string

	// authorization code
	Code        string
	RedirectURI string

	// refresh
	RefreshToken string

	Instruction *clientauth.Instruction
}

// Response is the token-endpoint success body.
type Response struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

func responseOf(token *models.GrantedToken) *Response {
	return &Response{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		ExpiresIn:    int64(token.ExpiresIn / time.Second),
		RefreshToken: token.RefreshToken,
		Scope:        token.Scope,
		IDToken:      token.IDToken,
	}
}

// Grant authenticates the client and dispatches to the grant handler.
func (s *Service) Grant(ctx context.Context, req *Request) (*Response, error) {
	ctx, span := s.startSpan(ctx, "token.grant", req.Instruction.CandidateClientID())
	defer span.End()

	client, err := s.authenticator.Authenticate(ctx, req.Instruction, s.issuer)
	if err != nil {
		return nil, err
	}

	switch domain.GrantType(req.GrantType) {
	case domain.GrantPassword:
		return s.passwordGrant(ctx, client, req)
	case domain.GrantDeviceCode:
		return s.deviceGrant(ctx, client, req)
	case domain.GrantAuthorizationCode:
		return s.codeGrant(ctx, client, req)
	case domain.GrantRefreshToken:
		return s.refreshGrant(ctx, client, req)
	default:
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "grant_type is not supported")
	}
}

// passwordGrant authenticates the resource owner through the authenticator
// registered for the requested amr and mints a token whose payloads carry
// the owner's claims filtered by the client's inclusion policy.
func (s *Service) passwordGrant(ctx context.Context, client *clientModels.Client, req *Request) (*Response, error) {
	if err := requireGrant(client, domain.GrantPassword); err != nil {
		return nil, err
	}
	scopes := pstrings.SplitSpaceDelimited(req.Scope)
	if !client.AllowsScopes(scopes) {
		return nil, dErrors.New(dErrors.CodeInvalidScope, "requested scope exceeds the client's allowed scopes")
	}

	amr := req.AMR
	if amr == "" {
		amr = owner.AMRPassword
	}
	authn, ok := s.owners[amr]
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "no authenticator for the requested authentication method")
	}
	ro, err := authn.AuthenticateResourceOwner(ctx, req.Username, req.Password)
	if err != nil {
		return nil, err
	}
	if ro == nil {
		return nil, dErrors.New(dErrors.CodeInvalidGrant, "resource owner credentials are not valid")
	}

	idPayload, userInfoPayload := s.ownerPayloads(ro, client, amr)
	token, err := s.reuseOrMint(ctx, client, domain.GrantPassword, joinScopes(scopes), ro.Subject, idPayload, userInfoPayload, true)
	if err != nil {
		return nil, err
	}
	return responseOf(token), nil
}

// ownerPayloads builds the stable identity payloads for a resource owner.
// Only claims on the client's inclusion list cross into tokens.
func (s *Service) ownerPayloads(ro *owner.ResourceOwner, client *clientModels.Client, amr string) (jws.Payload, jws.Payload) {
	idPayload := jws.Payload{
		"iss": s.issuer,
		"sub": ro.Subject,
		"aud": client.ID,
	}
	if amr != "" {
		idPayload["amr"] = []string{amr}
	}
	userInfoPayload := jws.Payload{"sub": ro.Subject}
	for name, value := range ro.Claims {
		if client.IncludesClaim(name) {
			idPayload[name] = value
			userInfoPayload[name] = value
		}
	}
	return idPayload, userInfoPayload
}

// deviceGrant serves one poll of the device-code flow.
func (s *Service) deviceGrant(ctx context.Context, client *clientModels.Client, req *Request) (*Response, error) {
	if err := requireGrant(client, domain.GrantDeviceCode); err != nil {
		return nil, err
	}
	if req.DeviceCode == "" {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "device_code is required")
	}
	rec, err := s.devices.Get(ctx, client.ID, req.DeviceCode)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			devicePolls.WithLabelValues("unknown").Inc()
			return nil, dErrors.New(dErrors.CodeInvalidGrant, "device code is not recognized")
		}
		return nil, err
	}

	if rec.Approved {
		idPayload := jws.Payload{
			"iss": s.issuer,
			"sub": rec.Subject,
			"aud": client.ID,
		}
		token, err := s.reuseOrMint(ctx, client, domain.GrantDeviceCode, joinScopes(rec.Scopes), rec.Subject, idPayload, nil, true)
		if err != nil {
			return nil, err
		}
		// Single consumption: the record dies with the successful poll.
		if err := s.devices.Remove(ctx, rec); err != nil {
			return nil, err
		}
		devicePolls.WithLabelValues("granted").Inc()
		return responseOf(token), nil
	}

	now := s.clock()
	if rec.IsExpired(now) {
		if err := s.devices.Remove(ctx, rec); err != nil {
			return nil, err
		}
		devicePolls.WithLabelValues("expired").Inc()
		return nil, dErrors.New(dErrors.CodeExpiredToken, "device authorization has expired")
	}
	tooSoon := rec.PolledTooSoon(now)
	rec.LastPolled = now
	if err := s.devices.Save(ctx, rec); err != nil {
		return nil, err
	}
	if tooSoon {
		devicePolls.WithLabelValues("slow_down").Inc()
		return nil, dErrors.New(dErrors.CodeSlowDown, "polling faster than the allowed interval")
	}
	devicePolls.WithLabelValues("pending").Inc()
	return nil, dErrors.New(dErrors.CodeAuthorizationPending, "resource owner has not approved yet")
}

// codeGrant exchanges a single-use authorization code.
func (s *Service) codeGrant(ctx context.Context, client *clientModels.Client, req *Request) (*Response, error) {
	if err := requireGrant(client, domain.GrantAuthorizationCode); err != nil {
		return nil, err
	}
	if req.Code == "" {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "code is required")
	}
	code, err := s.codes.Consume(ctx, req.Code, s.clock())
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			return nil, dErrors.New(dErrors.CodeInvalidGrant, "authorization code has already been used")
		case errors.Is(err, sentinel.ErrExpired):
			return nil, dErrors.New(dErrors.CodeInvalidGrant, "authorization code has expired")
		case errors.Is(err, sentinel.ErrNotFound):
			return nil, dErrors.New(dErrors.CodeInvalidGrant, "authorization code is not recognized")
		}
		return nil, err
	}
	if code.ClientID != client.ID {
		return nil, dErrors.New(dErrors.CodeInvalidGrant, "authorization code was issued to a different client")
	}
	if code.RedirectURI != req.RedirectURI {
		return nil, dErrors.New(dErrors.CodeInvalidGrant, "redirect_uri does not match the authorization request")
	}

	idPayload := jws.Payload{
		"iss": s.issuer,
		"sub": code.Subject,
		"aud": client.ID,
	}
	if code.Nonce != "" {
		idPayload["nonce"] = code.Nonce
	}
	token, err := s.reuseOrMint(ctx, client, domain.GrantAuthorizationCode, joinScopes(code.Scopes), code.Subject, idPayload, nil, true)
	if err != nil {
		return nil, err
	}
	return responseOf(token), nil
}

// refreshGrant rotates an access/refresh pair. The old pair is removed
// before the replacement is minted.
func (s *Service) refreshGrant(ctx context.Context, client *clientModels.Client, req *Request) (*Response, error) {
	if err := requireGrant(client, domain.GrantRefreshToken); err != nil {
		return nil, err
	}
	if req.RefreshToken == "" {
		return nil, dErrors.New(dErrors.CodeInvalidRequest, "refresh_token is required")
	}
	current, err := s.tokens.GetRefreshToken(ctx, req.RefreshToken)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeInvalidGrant, "refresh token is not recognized")
		}
		return nil, err
	}
	if current.ClientID != client.ID {
		return nil, dErrors.New(dErrors.CodeInvalidGrant, "refresh token was issued to a different client")
	}
	if err := s.tokens.RemoveAccessToken(ctx, current); err != nil {
		return nil, err
	}

	subject, _ := current.IDTokenPayload["sub"].(string)
	token, err := s.reuseOrMint(ctx, client, domain.GrantRefreshToken, current.Scope, subject, current.IDTokenPayload, current.UserInfoPayload, true)
	if err != nil {
		return nil, err
	}
	return responseOf(token), nil
}
