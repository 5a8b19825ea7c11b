// Package domain holds the protocol vocabulary shared across the core:
// grant types, response types, flows, prompts, and the authenticated
// principal. It has no dependencies on stores or services.
package domain

import "sort"

// GrantType is an OAuth 2.0 grant type a client may be allowed to exercise.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantImplicit          GrantType = "implicit"
	GrantPassword          GrantType = "password"
	GrantClientCredentials GrantType = "client_credentials"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantDeviceCode        GrantType = "urn:ietf:params:oauth:grant-type:device_code"
)

func (g GrantType) IsValid() bool {
	switch g {
	case GrantAuthorizationCode, GrantImplicit, GrantPassword,
		GrantClientCredentials, GrantRefreshToken, GrantDeviceCode:
		return true
	}
	return false
}

// ResponseType is a single value of the authorization request response_type
// parameter.
type ResponseType string

const (
	ResponseTypeCode    ResponseType = "code"
	ResponseTypeToken   ResponseType = "token"
	ResponseTypeIDToken ResponseType = "id_token"
)

// ParseResponseTypes parses the space-delimited response_type parameter.
// Returns false if any value is unknown.
func ParseResponseTypes(values []string) ([]ResponseType, bool) {
	out := make([]ResponseType, 0, len(values))
	for _, v := range values {
		rt := ResponseType(v)
		switch rt {
		case ResponseTypeCode, ResponseTypeToken, ResponseTypeIDToken:
			out = append(out, rt)
		default:
			return nil, false
		}
	}
	return out, true
}

// ResponseMode tells the transport layer how to deliver authorization
// response parameters to the redirect URI.
type ResponseMode string

const (
	ResponseModeNone     ResponseMode = ""
	ResponseModeQuery    ResponseMode = "query"
	ResponseModeFragment ResponseMode = "fragment"
	ResponseModeFormPost ResponseMode = "form_post"
)

// AuthorizationFlow is determined by the requested response-type set.
type AuthorizationFlow string

const (
	FlowAuthorizationCode AuthorizationFlow = "authorization_code"
	FlowImplicit          AuthorizationFlow = "implicit"
	FlowHybrid            AuthorizationFlow = "hybrid"
)

// flowKey canonicalizes a response-type set for table lookup.
func flowKey(types []ResponseType) string {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	sort.Strings(names)
	key := ""
	for i, n := range names {
		if i > 0 {
			key += " "
		}
		key += n
	}
	return key
}

var flowByResponseTypes = map[string]AuthorizationFlow{
	"code":                FlowAuthorizationCode,
	"id_token":            FlowImplicit,
	"token":               FlowImplicit,
	"id_token token":      FlowImplicit,
	"code id_token":       FlowHybrid,
	"code token":          FlowHybrid,
	"code id_token token": FlowHybrid,
}

var defaultResponseMode = map[AuthorizationFlow]ResponseMode{
	FlowAuthorizationCode: ResponseModeQuery,
	FlowImplicit:          ResponseModeFragment,
	FlowHybrid:            ResponseModeFragment,
}

// FlowOf maps a response-type set to its authorization flow. Unmapped
// combinations (e.g. an empty set) return false rather than panicking; the
// caller turns that into an invalid_request result.
func FlowOf(types []ResponseType) (AuthorizationFlow, bool) {
	flow, ok := flowByResponseTypes[flowKey(types)]
	return flow, ok
}

// DefaultResponseModeOf returns the response mode implied by the flow of the
// given response-type set, used when the request carries no explicit
// response_mode.
func DefaultResponseModeOf(types []ResponseType) (ResponseMode, bool) {
	flow, ok := FlowOf(types)
	if !ok {
		return ResponseModeNone, false
	}
	return defaultResponseMode[flow], true
}

// Prompt values from OIDC Core. SelectAccount is accepted on the wire but
// treated as consent for rendering purposes.
type Prompt string

const (
	PromptNone          Prompt = "none"
	PromptLogin         Prompt = "login"
	PromptConsent       Prompt = "consent"
	PromptSelectAccount Prompt = "select_account"
)

func (p Prompt) IsValid() bool {
	switch p {
	case PromptNone, PromptLogin, PromptConsent, PromptSelectAccount:
		return true
	}
	return false
}

// TokenEndpointAuthMethod selects how a client proves its identity at the
// token endpoint. Exactly one method is configured per client and only that
// method is ever attempted.
type TokenEndpointAuthMethod string

const (
	AuthMethodClientSecretBasic TokenEndpointAuthMethod = "client_secret_basic"
	AuthMethodClientSecretPost  TokenEndpointAuthMethod = "client_secret_post"
	AuthMethodClientSecretJWT   TokenEndpointAuthMethod = "client_secret_jwt"
	AuthMethodPrivateKeyJWT     TokenEndpointAuthMethod = "private_key_jwt"
	AuthMethodTLSClientAuth     TokenEndpointAuthMethod = "tls_client_auth"
)
