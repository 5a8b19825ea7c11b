package domain

import "time"

// Principal is the resource owner attached to the current request, as
// established by the session layer. A zero Subject means unauthenticated.
type Principal struct {
	Subject               string
	AuthenticationInstant time.Time
	AMR                   []string
	Claims                map[string]string
}

// IsAuthenticated reports whether the request carries a logged-in resource owner.
func (p Principal) IsAuthenticated() bool {
	return p.Subject != ""
}

// AuthenticationAge returns how long ago the principal authenticated.
func (p Principal) AuthenticationAge(now time.Time) time.Duration {
	return now.Sub(p.AuthenticationInstant)
}
