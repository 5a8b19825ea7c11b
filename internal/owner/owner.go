// Package owner models resource owners and their authentication services.
// One authentication service exists per supported authentication-method
// reference (amr); the password service is the only one shipped here, the
// rest are wired by deployments.
package owner

import "time"

// ResourceOwner is the end user on whose behalf tokens are issued.
type ResourceOwner struct {
	Subject      string
	Login        string
	PasswordHash string
	Claims       map[string]string
	CreatedAt    time.Time
}

// ClaimValues filters the owner's claims to the given names, preserving the
// requested order. Unknown names are dropped.
func (o *ResourceOwner) ClaimValues(names []string) map[string]string {
	out := make(map[string]string, len(names))
	for _, name := range names {
		if v, ok := o.Claims[name]; ok {
			out[name] = v
		}
	}
	return out
}
