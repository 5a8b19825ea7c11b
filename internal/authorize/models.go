package authorize

import (
	"time"

	dErrors "signet/pkg/domain-errors"
	pstrings "signet/pkg/platform/strings"

	"signet/internal/domain"
)

// Parameter carries the decoded query/form parameters of an authorization
// request. String fields hold the raw wire values; accessor methods apply
// the protocol's normalization.
type Parameter struct {
	ClientID     string
	Scope        string
	ResponseType string
	ResponseMode domain.ResponseMode
	RedirectURL  string
	Prompt       string
	State        string
	Nonce        string
	MaxAge       time.Duration
	IDTokenHint  string
	// Claims lists individually requested claim names, outside of scopes.
	Claims []string
}

// Scopes returns the deduplicated scope names.
func (p *Parameter) Scopes() []string {
	return pstrings.SplitSpaceDelimited(p.Scope)
}

// ResponseTypes parses the space-delimited response_type value. ok is
// false when any component is unknown.
func (p *Parameter) ResponseTypes() ([]domain.ResponseType, bool) {
	return domain.ParseResponseTypes(pstrings.SplitSpaceDelimited(p.ResponseType))
}

// Prompts returns the requested prompt values, unvalidated.
func (p *Parameter) Prompts() []domain.Prompt {
	raw := pstrings.SplitSpaceDelimited(p.Prompt)
	prompts := make([]domain.Prompt, 0, len(raw))
	for _, value := range raw {
		prompts = append(prompts, domain.Prompt(value))
	}
	return prompts
}

// Screen names an interactive page the user agent is sent to when the
// request cannot complete without user involvement.
type Screen string

const (
	ScreenLogin   Screen = "login"
	ScreenConsent Screen = "consent"
)

// ResultType discriminates the authorization endpoint outcome.
type ResultType int

const (
	// ResultBadRequest terminates the flow with a protocol error.
	ResultBadRequest ResultType = iota
	// ResultRedirectEmpty sends the user agent to an interactive screen.
	ResultRedirectEmpty
	// ResultRedirectToCallback completes the flow at the client's redirect URI.
	ResultRedirectToCallback
)

// CallbackPayload is the artifact set delivered to the client's redirect
// URI. Which fields are populated depends on the response types.
type CallbackPayload struct {
	RedirectURI  string
	ResponseMode domain.ResponseMode
	Code         string
	AccessToken  string
	TokenType    string
	ExpiresIn    int64
	IDToken      string
	State        string
}

// Result is the tagged outcome of processing an authorization request.
// Exactly one of Problem, Screen, Callback is meaningful, per Type.
type Result struct {
	Type     ResultType
	Problem  *dErrors.Problem
	Screen   Screen
	Callback *CallbackPayload
}

// BadRequest builds a terminal error result from a coded error.
func BadRequest(err error) Result {
	p := dErrors.ProblemOf(err)
	return Result{Type: ResultBadRequest, Problem: &p}
}

// RedirectTo builds a redirect-to-screen result.
func RedirectTo(screen Screen) Result {
	return Result{Type: ResultRedirectEmpty, Screen: screen}
}

// Completed builds a callback result carrying the issued artifacts.
func Completed(payload *CallbackPayload) Result {
	return Result{Type: ResultRedirectToCallback, Callback: payload}
}
