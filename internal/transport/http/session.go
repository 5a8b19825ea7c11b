package httptransport

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"signet/internal/domain"
	"signet/internal/jws"
)

const sessionCookie = "signet_session"

// Sessions issues and reads the resource-owner session cookie. The cookie
// value is a compact token signed with the server's own key, so any
// instance can read sessions issued by any other.
type Sessions struct {
	keys     *jws.KeyStore
	issuer   string
	lifetime time.Duration
	clock    func() time.Time
}

// NewSessions constructs the session codec.
func NewSessions(keys *jws.KeyStore, issuer string) *Sessions {
	return &Sessions{
		keys:     keys,
		issuer:   issuer,
		lifetime: 12 * time.Hour,
		clock:    time.Now,
	}
}

// Issue writes a session cookie for the principal.
func (s *Sessions) Issue(w http.ResponseWriter, principal domain.Principal) error {
	now := s.clock()
	payload := jws.Payload{
		"iss":       s.issuer,
		"aud":       s.issuer,
		"sub":       principal.Subject,
		"auth_time": principal.AuthenticationInstant.Unix(),
		"iat":       now.Unix(),
		"exp":       now.Add(s.lifetime).Unix(),
	}
	if len(principal.AMR) > 0 {
		payload["amr"] = principal.AMR
	}
	key, _ := s.keys.CurrentKey()
	token, err := jws.Generate(payload, s.keys.SigningAlg(), key)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// PrincipalFrom reads the session cookie. A missing, unreadable, or expired
// cookie yields the zero (unauthenticated) principal.
func (s *Sessions) PrincipalFrom(r *http.Request) domain.Principal {
	cookie, err := r.Cookie(sessionCookie)
	if err != nil {
		return domain.Principal{}
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithAudience(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if _, err := parser.ParseWithClaims(cookie.Value, claims, s.keys.ServerKeyfunc()); err != nil {
		return domain.Principal{}
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Principal{}
	}
	principal := domain.Principal{Subject: sub}
	if authTime, ok := claims["auth_time"].(float64); ok {
		principal.AuthenticationInstant = time.Unix(int64(authTime), 0)
	}
	if amr, ok := claims["amr"].([]any); ok {
		for _, v := range amr {
			if name, ok := v.(string); ok {
				principal.AMR = append(principal.AMR, name)
			}
		}
	}
	return principal
}
