// Package device holds the poll state for the device-code grant. The server
// never polls anything itself; state advances only on client-initiated
// requests.
package device

import "time"

// AuthorizationData is one pending device authorization. LastPolled moves on
// every poll; the record is deleted on any terminal outcome (consumed after
// approval, or expired).
type AuthorizationData struct {
	DeviceCode string        `json:"device_code"`
	UserCode   string        `json:"user_code"`
	ClientID   string        `json:"client_id"`
	Scopes     []string      `json:"scopes"`
	Approved   bool          `json:"approved"`
	Subject    string        `json:"subject,omitempty"`
	Interval   time.Duration `json:"interval"`
	ExpiresAt  time.Time     `json:"expires_at"`
	LastPolled time.Time     `json:"last_polled"`
	CreatedAt  time.Time     `json:"created_at"`
}

// IsExpired reports whether the absolute expiry has passed.
func (d *AuthorizationData) IsExpired(now time.Time) bool {
	return !now.Before(d.ExpiresAt)
}

// PolledTooSoon reports whether a poll at now violates the minimum poll
// interval since the previous poll.
func (d *AuthorizationData) PolledTooSoon(now time.Time) bool {
	return now.Before(d.LastPolled.Add(d.Interval))
}

// Approve marks the record approved by the given resource owner.
func (d *AuthorizationData) Approve(subject string) {
	d.Approved = true
	d.Subject = subject
}
