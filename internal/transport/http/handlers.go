package httptransport

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	dErrors "signet/pkg/domain-errors"
	pstrings "signet/pkg/platform/strings"

	"signet/internal/authorize"
	clientModels "signet/internal/client/models"
	"signet/internal/clientauth"
	"signet/internal/domain"
	"signet/internal/owner"
	tokenService "signet/internal/token/service"
)

// instructionFrom collects every credential location the protocol allows;
// the authenticator decides which one the client's method actually uses.
func instructionFrom(r *http.Request) *clientauth.Instruction {
	instruction := &clientauth.Instruction{
		ClientIDFromBody:     r.PostFormValue("client_id"),
		ClientSecretFromBody: r.PostFormValue("client_secret"),
		ClientAssertion:      r.PostFormValue("client_assertion"),
		ClientAssertionType:  r.PostFormValue("client_assertion_type"),
	}
	if id, secret, ok := r.BasicAuth(); ok {
		instruction.ClientIDFromHeader = id
		instruction.ClientSecretFromHeader = secret
	}
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		instruction.Certificate = r.TLS.PeerCertificates[0]
	}
	return instruction
}

func parameterFrom(values url.Values) *authorize.Parameter {
	param := &authorize.Parameter{
		ClientID:     values.Get("client_id"),
		Scope:        values.Get("scope"),
		ResponseType: values.Get("response_type"),
		ResponseMode: domain.ResponseMode(values.Get("response_mode")),
		RedirectURL:  values.Get("redirect_uri"),
		Prompt:       values.Get("prompt"),
		State:        values.Get("state"),
		Nonce:        values.Get("nonce"),
		IDTokenHint:  values.Get("id_token_hint"),
		Claims:       pstrings.SplitSpaceDelimited(values.Get("claims")),
	}
	if raw := values.Get("max_age"); raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
			param.MaxAge = time.Duration(secs) * time.Second
		}
	}
	return param
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeProblem(w http.ResponseWriter, err error) {
	problem := dErrors.ProblemOf(err)
	writeJSON(w, problem.Status, problem)
}

func (h *Handler) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	param := parameterFrom(r.URL.Query())
	client, err := h.clients.GetByID(r.Context(), param.ClientID)
	if err != nil || client == nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidClient, "client does not exist"))
		return
	}
	principal := h.sessions.PrincipalFrom(r)

	result, err := h.processor.Process(r.Context(), param, principal, client)
	if err != nil {
		h.logger.Error("authorization processing failed", "error", err)
		writeProblem(w, err)
		return
	}
	h.deliver(w, r, result, param, principal, client)
}

func (h *Handler) handleHybrid(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidRequest, "request body is not a valid form"))
		return
	}
	param := parameterFrom(r.PostForm)
	principal := h.sessions.PrincipalFrom(r)

	result, err := h.tokens.Hybrid(r.Context(), instructionFrom(r), param, principal)
	if err != nil {
		writeProblem(w, err)
		return
	}
	client, err := h.clients.GetByID(r.Context(), param.ClientID)
	if err != nil || client == nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidClient, "client does not exist"))
		return
	}
	h.deliver(w, r, result, param, principal, client)
}

// deliver turns a processor result into the wire response: a JSON problem,
// a redirect to an interactive screen, or the callback redirect.
func (h *Handler) deliver(w http.ResponseWriter, r *http.Request, result authorize.Result,
	param *authorize.Parameter, principal domain.Principal, client *clientModels.Client) {

	switch result.Type {
	case authorize.ResultBadRequest:
		writeJSON(w, result.Problem.Status, result.Problem)
	case authorize.ResultRedirectEmpty:
		target := "/login"
		if result.Screen == authorize.ScreenConsent {
			target = "/consent"
		}
		http.Redirect(w, r, target+"?"+r.URL.RawQuery, http.StatusFound)
	case authorize.ResultRedirectToCallback:
		payload := result.Callback
		if payload == nil {
			generated, err := h.generator.Generate(r.Context(), param, principal, client)
			if err != nil {
				writeProblem(w, err)
				return
			}
			payload = generated
		}
		h.redirectCallback(w, r, payload)
	}
}

func callbackValues(payload *authorize.CallbackPayload) url.Values {
	values := url.Values{}
	if payload.Code != "" {
		values.Set("code", payload.Code)
	}
	if payload.AccessToken != "" {
		values.Set("access_token", payload.AccessToken)
		values.Set("token_type", payload.TokenType)
		values.Set("expires_in", strconv.FormatInt(payload.ExpiresIn, 10))
	}
	if payload.IDToken != "" {
		values.Set("id_token", payload.IDToken)
	}
	if payload.State != "" {
		values.Set("state", payload.State)
	}
	return values
}

func (h *Handler) redirectCallback(w http.ResponseWriter, r *http.Request, payload *authorize.CallbackPayload) {
	target, err := url.Parse(payload.RedirectURI)
	if err != nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidRequest, "redirect_uri is not a valid URL"))
		return
	}
	values := callbackValues(payload)

	switch payload.ResponseMode {
	case domain.ResponseModeFragment:
		target.Fragment = values.Encode()
	case domain.ResponseModeFormPost:
		writeFormPost(w, payload.RedirectURI, values)
		return
	default:
		query := target.Query()
		for name := range values {
			query.Set(name, values.Get(name))
		}
		target.RawQuery = query.Encode()
	}
	http.Redirect(w, r, target.String(), http.StatusFound)
}

// writeFormPost renders the auto-submitting form of the form_post response
// mode.
func writeFormPost(w http.ResponseWriter, action string, values url.Values) {
	var fields strings.Builder
	for name := range values {
		fmt.Fprintf(&fields, `<input type="hidden" name=%q value=%q/>`,
			html.EscapeString(name), html.EscapeString(values.Get(name)))
	}
	w.Header().Set("Content-Type", "text/html;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-store")
	fmt.Fprintf(w, `<html><body onload="document.forms[0].submit()"><form method="post" action=%q>%s</form></body></html>`,
		html.EscapeString(action), fields.String())
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidRequest, "request body is not a valid form"))
		return
	}
	req := &tokenService.Request{
		GrantType:    r.PostFormValue("grant_type"),
		Scope:        r.PostFormValue("scope"),
		Username:     r.PostFormValue("username"),
		Password:     r.PostFormValue("password"),
		AMR:          r.PostFormValue("amr"),
		DeviceCode:   r.PostFormValue("device_code"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Instruction:  instructionFrom(r),
	}
	resp, err := h.tokens.Grant(r.Context(), req)
	if err != nil {
		writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidRequest, "request body is not a valid form"))
		return
	}
	info, err := h.tokens.Introspect(r.Context(), instructionFrom(r), r.PostFormValue("token"))
	if err != nil {
		writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidRequest, "request body is not a valid form"))
		return
	}
	if err := h.tokens.Revoke(r.Context(), instructionFrom(r), r.PostFormValue("token")); err != nil {
		writeProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) handleDeviceAuthorization(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidRequest, "request body is not a valid form"))
		return
	}
	resp, err := h.tokens.BeginDeviceAuthorization(r.Context(), instructionFrom(r), r.PostFormValue("scope"))
	if err != nil {
		writeProblem(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeviceApprove(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidRequest, "request body is not a valid form"))
		return
	}
	principal := h.sessions.PrincipalFrom(r)
	if err := h.tokens.ApproveDevice(r.Context(), r.PostFormValue("user_code"), principal); err != nil {
		writeProblem(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidRequest, "request body is not a valid form"))
		return
	}
	ro, err := h.owners.AuthenticateResourceOwner(r.Context(), r.PostFormValue("login"), r.PostFormValue("password"))
	if err != nil {
		writeProblem(w, err)
		return
	}
	if ro == nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidGrant, "resource owner credentials are not valid"))
		return
	}
	principal := domain.Principal{
		Subject:               ro.Subject,
		AuthenticationInstant: time.Now(),
		AMR:                   []string{owner.AMRPassword},
	}
	if err := h.sessions.Issue(w, principal); err != nil {
		writeProblem(w, dErrors.Wrap(err, dErrors.CodeInternal, "issue session"))
		return
	}
	// Only same-site continuations; anything absolute is dropped.
	if next := r.PostFormValue("continue"); strings.HasPrefix(next, "/") && !strings.HasPrefix(next, "//") {
		http.Redirect(w, r, next, http.StatusFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConsentDisplay(w http.ResponseWriter, r *http.Request) {
	param := parameterFrom(r.URL.Query())
	client, err := h.clients.GetByID(r.Context(), param.ClientID)
	if err != nil || client == nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidClient, "client does not exist"))
		return
	}
	principal := h.sessions.PrincipalFrom(r)
	if !principal.IsAuthenticated() {
		http.Redirect(w, r, "/login?"+r.URL.RawQuery, http.StatusFound)
		return
	}
	display, err := h.consents.DisplayConsent(r.Context(), param, principal, client)
	if err != nil {
		writeProblem(w, err)
		return
	}
	if display.Response != nil {
		h.redirectCallback(w, r, display.Response)
		return
	}
	writeJSON(w, http.StatusOK, display)
}

func (h *Handler) handleConsentConfirm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidRequest, "request body is not a valid form"))
		return
	}
	param := parameterFrom(r.PostForm)
	client, err := h.clients.GetByID(r.Context(), param.ClientID)
	if err != nil || client == nil {
		writeProblem(w, dErrors.New(dErrors.CodeInvalidClient, "client does not exist"))
		return
	}
	principal := h.sessions.PrincipalFrom(r)
	if !principal.IsAuthenticated() {
		writeProblem(w, dErrors.New(dErrors.CodeLoginRequired, "resource owner is not authenticated"))
		return
	}
	payload, err := h.consents.ConfirmConsent(r.Context(), param, principal, client)
	if err != nil {
		writeProblem(w, err)
		return
	}
	h.redirectCallback(w, r, payload)
}

func (h *Handler) handleJWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.keys.PublicJWKS())
}
