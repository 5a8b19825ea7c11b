package jws

import "time"

// IDTokenPayload builds the standard claim set for an identity token.
// Optional fields (nonce, amr, extra claims) are omitted when empty so
// payload equality stays stable across requests that never set them.
func IDTokenPayload(issuer, subject, audience, nonce string, amr []string, extra map[string]string, now time.Time, lifetime time.Duration) Payload {
	p := Payload{
		"iss": issuer,
		"sub": subject,
		"aud": audience,
		"iat": now.Unix(),
		"exp": now.Add(lifetime).Unix(),
	}
	if nonce != "" {
		p["nonce"] = nonce
	}
	if len(amr) > 0 {
		p["amr"] = amr
	}
	for name, value := range extra {
		p[name] = value
	}
	return p
}
