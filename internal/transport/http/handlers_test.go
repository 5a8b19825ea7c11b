package httptransport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"signet/internal/authorize"
	clientModels "signet/internal/client/models"
	clientStore "signet/internal/client/store"
	"signet/internal/clientauth"
	consentService "signet/internal/consent/service"
	consentStore "signet/internal/consent/store"
	"signet/internal/device"
	"signet/internal/domain"
	"signet/internal/event"
	"signet/internal/jws"
	"signet/internal/owner"
	"signet/internal/scope"
	tokenService "signet/internal/token/service"
	tokenStore "signet/internal/token/store"
	"signet/internal/token/store/authcode"
)

const testIssuer = "https://auth.example.com"

type TransportSuite struct {
	suite.Suite
	ctx    context.Context
	keys   *jws.KeyStore
	server http.Handler
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportSuite))
}

func (s *TransportSuite) SetupSuite() {
	keys, err := jws.GenerateKeyStore(2048)
	s.Require().NoError(err)
	s.keys = keys
}

func (s *TransportSuite) SetupTest() {
	s.ctx = context.Background()

	clients := clientStore.New()
	s.Require().NoError(clients.Insert(s.ctx, &clientModels.Client{
		ID:                      "web-app",
		Name:                    "Web App",
		Secrets:                 []clientModels.Secret{{Type: clientModels.SecretShared, Value: "s3cret"}},
		TokenEndpointAuthMethod: domain.AuthMethodClientSecretBasic,
		AllowedGrants: []domain.GrantType{
			domain.GrantAuthorizationCode, domain.GrantImplicit,
			domain.GrantPassword, domain.GrantRefreshToken, domain.GrantDeviceCode,
		},
		AllowedResponseTypes: []domain.ResponseType{domain.ResponseTypeCode, domain.ResponseTypeToken, domain.ResponseTypeIDToken},
		AllowedScopes:        []string{"openid", "profile"},
		RedirectURIs:         []string{"https://app.example.com/cb"},
		TokenLifetime:        time.Hour,
	}))

	owners := owner.NewStore()
	hash, err := owner.HashPassword("hunter2")
	s.Require().NoError(err)
	s.Require().NoError(owners.Insert(s.ctx, &owner.ResourceOwner{
		Subject:      "user-1",
		Login:        "alice",
		PasswordHash: hash,
	}))
	passwords, err := owner.NewPasswordService(owners)
	s.Require().NoError(err)

	consents := consentStore.New()
	scopes := scope.NewStore(
		scope.Scope{Name: "openid", Description: "Identity"},
		scope.Scope{Name: "profile", Description: "Profile data", IsDisplayedInConsent: true},
	)
	events := event.NewPublisher(event.NewMemorySink())

	authenticator, err := clientauth.New(clients, s.keys)
	s.Require().NoError(err)

	codes := authcode.New()
	tokens := tokenStore.New()
	devices := device.NewStore()

	// The consent service is the processor's consent finder, and the token
	// service is the generator's minter; wiring order follows main.
	var consentSvc *consentService.Service
	finder := authorize.ConsentFinder(consentFinderFunc(func(ctx context.Context, subject, clientID string, scopeNames, claims []string) (bool, error) {
		return consentSvc.HasMatchingConsent(ctx, subject, clientID, scopeNames, claims)
	}))
	processor, err := authorize.NewProcessor(finder, s.keys, testIssuer)
	s.Require().NoError(err)

	tokenSvc, err := tokenService.New(authenticator, tokens, codes, devices, s.keys, events, processor, testIssuer,
		tokenService.WithOwnerAuthenticator(owner.AMRPassword, passwords))
	s.Require().NoError(err)

	generator, err := authorize.NewGenerator(codes, tokenSvc, s.keys, testIssuer)
	s.Require().NoError(err)
	tokenSvc.AttachGenerator(generator)

	consentSvc, err = consentService.New(consents, scopes, generator, events)
	s.Require().NoError(err)

	handler := NewHandler(clients, processor, generator, tokenSvc, consentSvc, passwords,
		NewSessions(s.keys, testIssuer), s.keys, nil)
	s.server = NewRouter(handler)
}

type consentFinderFunc func(ctx context.Context, subject, clientID string, scopes, claims []string) (bool, error)

func (f consentFinderFunc) HasMatchingConsent(ctx context.Context, subject, clientID string, scopes, claims []string) (bool, error) {
	return f(ctx, subject, clientID, scopes, claims)
}

func (s *TransportSuite) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.server.ServeHTTP(rec, req)
	return rec
}

func (s *TransportSuite) login() *http.Cookie {
	form := url.Values{"login": {"alice"}, "password": {"hunter2"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := s.do(req)
	s.Require().Equal(http.StatusNoContent, rec.Code)
	cookies := rec.Result().Cookies()
	s.Require().NotEmpty(cookies)
	return cookies[0]
}

func (s *TransportSuite) authorizeQuery() url.Values {
	return url.Values{
		"client_id":     {"web-app"},
		"redirect_uri":  {"https://app.example.com/cb"},
		"scope":         {"openid profile"},
		"response_type": {"code"},
		"state":         {"st-1"},
	}
}

func (s *TransportSuite) TestLoginRejectsBadPassword() {
	form := url.Values{"login": {"alice"}, "password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := s.do(req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *TransportSuite) TestAuthorizePromptNoneUnauthenticated() {
	query := s.authorizeQuery()
	query.Set("prompt", "none")
	req := httptest.NewRequest(http.MethodGet, "/authorize?"+query.Encode(), nil)

	rec := s.do(req)

	s.Equal(http.StatusUnauthorized, rec.Code)
	var problem map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &problem))
	s.Equal("login_required", problem["error"])
}

func (s *TransportSuite) TestAuthorizeUnknownClient() {
	query := s.authorizeQuery()
	query.Set("client_id", "ghost")
	req := httptest.NewRequest(http.MethodGet, "/authorize?"+query.Encode(), nil)

	rec := s.do(req)

	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *TransportSuite) TestAuthorizeUnauthenticatedRedirectsToLogin() {
	req := httptest.NewRequest(http.MethodGet, "/authorize?"+s.authorizeQuery().Encode(), nil)

	rec := s.do(req)

	s.Equal(http.StatusFound, rec.Code)
	s.True(strings.HasPrefix(rec.Header().Get("Location"), "/login?"))
}

func (s *TransportSuite) TestFullCodeFlow() {
	cookie := s.login()

	// Authenticated, no consent yet: off to the consent screen.
	req := httptest.NewRequest(http.MethodGet, "/authorize?"+s.authorizeQuery().Encode(), nil)
	req.AddCookie(cookie)
	rec := s.do(req)
	s.Require().Equal(http.StatusFound, rec.Code)
	s.Require().True(strings.HasPrefix(rec.Header().Get("Location"), "/consent?"))

	// The consent screen lists only the displayable scopes.
	req = httptest.NewRequest(http.MethodGet, rec.Header().Get("Location"), nil)
	req.AddCookie(cookie)
	rec = s.do(req)
	s.Require().Equal(http.StatusOK, rec.Code)
	var display struct {
		ClientName string        `json:"ClientName"`
		Scopes     []scope.Scope `json:"Scopes"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &display))
	s.Equal("Web App", display.ClientName)
	s.Require().Len(display.Scopes, 1)
	s.Equal("profile", display.Scopes[0].Name)

	// Confirming consent lands on the callback with a code.
	form := s.authorizeQuery()
	req = httptest.NewRequest(http.MethodPost, "/consent", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec = s.do(req)
	s.Require().Equal(http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	s.Require().NoError(err)
	s.Equal("app.example.com", location.Host)
	code := location.Query().Get("code")
	s.Require().NotEmpty(code)
	s.Equal("st-1", location.Query().Get("state"))

	// With consent recorded, a repeat authorize goes straight to callback.
	req = httptest.NewRequest(http.MethodGet, "/authorize?"+s.authorizeQuery().Encode(), nil)
	req.AddCookie(cookie)
	rec = s.do(req)
	s.Require().Equal(http.StatusFound, rec.Code)
	repeat, err := url.Parse(rec.Header().Get("Location"))
	s.Require().NoError(err)
	s.Equal("app.example.com", repeat.Host)
	s.NotEmpty(repeat.Query().Get("code"))

	// The code exchanges for tokens at the token endpoint.
	tokenForm := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {"https://app.example.com/cb"},
	}
	req = httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(tokenForm.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("web-app", "s3cret")
	rec = s.do(req)
	s.Require().Equal(http.StatusOK, rec.Code)

	var token struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
		IDToken     string `json:"id_token"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &token))
	s.NotEmpty(token.AccessToken)
	s.Equal("Bearer", token.TokenType)
	s.NotEmpty(token.IDToken)

	// And introspects as active.
	introspectForm := url.Values{"token": {token.AccessToken}}
	req = httptest.NewRequest(http.MethodPost, "/introspect", strings.NewReader(introspectForm.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("web-app", "s3cret")
	rec = s.do(req)
	s.Require().Equal(http.StatusOK, rec.Code)

	var info struct {
		Active bool   `json:"active"`
		Sub    string `json:"sub"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &info))
	s.True(info.Active)
	s.Equal("user-1", info.Sub)
}

func (s *TransportSuite) TestTokenEndpointRejectsBadClientSecret() {
	form := url.Values{"grant_type": {"password"}, "username": {"alice"}, "password": {"hunter2"}}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("web-app", "wrong")

	rec := s.do(req)

	s.Equal(http.StatusUnauthorized, rec.Code)
	var problem map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &problem))
	s.Equal("invalid_client", problem["error"])
}

func (s *TransportSuite) TestPasswordGrantOverHTTP() {
	form := url.Values{
		"grant_type": {"password"},
		"username":   {"alice"},
		"password":   {"hunter2"},
		"scope":      {"openid"},
	}
	req := httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("web-app", "s3cret")

	rec := s.do(req)

	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("no-store", rec.Header().Get("Cache-Control"))
}

func (s *TransportSuite) TestDeviceAuthorizationAndPendingPoll() {
	form := url.Values{"scope": {"openid"}}
	req := httptest.NewRequest(http.MethodPost, "/device_authorization", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("web-app", "s3cret")
	rec := s.do(req)
	s.Require().Equal(http.StatusOK, rec.Code)

	var begun struct {
		DeviceCode string `json:"device_code"`
		UserCode   string `json:"user_code"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &begun))
	s.NotEmpty(begun.DeviceCode)
	s.NotEmpty(begun.UserCode)

	pollForm := url.Values{
		"grant_type":  {string(domain.GrantDeviceCode)},
		"device_code": {begun.DeviceCode},
	}
	req = httptest.NewRequest(http.MethodPost, "/token", strings.NewReader(pollForm.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("web-app", "s3cret")
	rec = s.do(req)

	s.Equal(http.StatusBadRequest, rec.Code)
	var problem map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &problem))
	s.Equal("authorization_pending", problem["error"])
}

func (s *TransportSuite) TestImplicitFlowDeliversFragment() {
	cookie := s.login()
	query := s.authorizeQuery()
	query.Set("response_type", "token")

	// Record consent first so the flow can complete.
	req := httptest.NewRequest(http.MethodPost, "/consent", strings.NewReader(query.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(cookie)
	rec := s.do(req)
	s.Require().Equal(http.StatusFound, rec.Code)

	location, err := url.Parse(rec.Header().Get("Location"))
	s.Require().NoError(err)
	s.Empty(location.RawQuery)
	fragment, err := url.ParseQuery(location.Fragment)
	s.Require().NoError(err)
	s.NotEmpty(fragment.Get("access_token"))
	s.Equal("Bearer", fragment.Get("token_type"))
}

func (s *TransportSuite) TestJWKSPublishesSigningKey() {
	req := httptest.NewRequest(http.MethodGet, "/.well-known/jwks.json", nil)

	rec := s.do(req)

	s.Require().Equal(http.StatusOK, rec.Code)
	var jwks struct {
		Keys []map[string]any `json:"keys"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &jwks))
	s.Require().Len(jwks.Keys, 1)
	s.Equal("RS256", jwks.Keys[0]["alg"])
	s.Equal("sig", jwks.Keys[0]["use"])
}

func (s *TransportSuite) TestHealthz() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusNoContent, rec.Code)
}
