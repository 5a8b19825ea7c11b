// Package domainerrors provides coded errors for the authorization server core.
//
// Every expected failure path returns one of these instead of a bare error so
// services can branch on the code and the transport layer can translate it into
// an RFC 6749 error response. Store and infrastructure layers return sentinel
// errors (pkg/platform/sentinel); services wrap them here.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of failure. The values follow the OAuth 2.0 /
// OIDC error registry where one exists.
type Code string

const (
	CodeInvalidRequest       Code = "invalid_request"
	CodeInvalidClient        Code = "invalid_client"
	CodeInvalidGrant         Code = "invalid_grant"
	CodeUnauthorizedClient   Code = "unauthorized_client"
	CodeInvalidScope         Code = "invalid_scope"
	CodeInvalidToken         Code = "invalid_token"
	CodeExpiredToken         Code = "expired_token"
	CodeLoginRequired        Code = "login_required"
	CodeInteractionRequired  Code = "interaction_required"
	CodeSlowDown             Code = "slow_down"
	CodeAuthorizationPending Code = "authorization_pending"

	// Non-protocol codes for infrastructure and contract faults.
	CodeNotFound           Code = "not_found"
	CodeInternal           Code = "internal"
	CodeInvariantViolation Code = "invariant_violation"
)

// Error is a coded domain error. Message is safe to show to clients; Err
// carries the wrapped cause for logs.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a coded error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given code.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// HasCode reports whether err carries any of the given codes.
func HasCode(err error, codes ...Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	for _, c := range codes {
		if de.Code == c {
			return true
		}
	}
	return false
}

// CodeOf extracts the code from err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// Problem is the structured result shape handed to the transport layer:
// title/detail/status per the error handling contract.
type Problem struct {
	Title  string `json:"error"`
	Detail string `json:"error_description,omitempty"`
	Status int    `json:"-"`
}

// ProblemOf converts any error into a Problem. Uncoded errors collapse to an
// opaque internal problem so infrastructure details never leak to clients.
func ProblemOf(err error) Problem {
	var de *Error
	if !errors.As(err, &de) {
		return Problem{Title: string(CodeInternal), Status: http.StatusInternalServerError}
	}
	return Problem{
		Title:  string(de.Code),
		Detail: de.Message,
		Status: ToHTTPStatus(de.Code),
	}
}

// ToHTTPStatus maps a code to the HTTP status the transport layer should use.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeInvalidRequest, CodeInvalidGrant, CodeUnauthorizedClient,
		CodeInvalidScope, CodeExpiredToken, CodeSlowDown, CodeAuthorizationPending:
		return http.StatusBadRequest
	case CodeInvalidClient, CodeInvalidToken, CodeLoginRequired, CodeInteractionRequired:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
