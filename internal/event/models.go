// Package event publishes domain events (token grants, consent decisions)
// to a pluggable sink. Publication is fire-and-forget: a sink failure is
// logged and never aborts the operation that raised the event.
package event

import "time"

// Type names a domain event.
type Type string

const (
	TypeTokenGranted     Type = "token_granted"
	TypeTokenRevoked     Type = "token_revoked"
	TypeConsentAccepted  Type = "consent_accepted"
	TypeClientAuthFailed Type = "client_auth_failed"
	TypeDeviceApproved   Type = "device_approved"
)

// Event is a structured domain event.
type Event struct {
	Type      Type              `json:"type"`
	Subject   string            `json:"subject,omitempty"`
	ClientID  string            `json:"client_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}
