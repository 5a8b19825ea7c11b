package service

import (
	"context"

	dErrors "signet/pkg/domain-errors"

	"signet/internal/authorize"
	"signet/internal/clientauth"
	"signet/internal/domain"
	"signet/internal/event"
)

// Hybrid serves the hybrid flow: the client authenticates, the request is
// validated by the authorization processor, and on success the combined
// code+token callback payload is generated. Interactive outcomes (login or
// consent screens) pass through untouched.
func (s *Service) Hybrid(ctx context.Context, instruction *clientauth.Instruction, param *authorize.Parameter, principal domain.Principal) (authorize.Result, error) {
	ctx, span := s.startSpan(ctx, "token.hybrid", instruction.CandidateClientID())
	defer span.End()

	client, err := s.authenticator.Authenticate(ctx, instruction, s.issuer)
	if err != nil {
		return authorize.Result{}, err
	}
	if param.Nonce == "" {
		return authorize.BadRequest(dErrors.New(dErrors.CodeInvalidRequest, "nonce is required for the hybrid flow")), nil
	}
	if !client.HasGrant(domain.GrantAuthorizationCode) || !client.HasGrant(domain.GrantImplicit) {
		return authorize.BadRequest(dErrors.New(dErrors.CodeUnauthorizedClient, "hybrid flow requires both the authorization_code and implicit grants")), nil
	}
	if s.generator == nil {
		return authorize.Result{}, dErrors.New(dErrors.CodeInternal, "response generator is not attached")
	}

	result, err := s.processor.Process(ctx, param, principal, client)
	if err != nil || result.Type != authorize.ResultRedirectToCallback {
		return result, err
	}

	payload, err := s.generator.Generate(ctx, param, principal, client)
	if err != nil {
		return authorize.Result{}, err
	}
	s.events.Emit(ctx, event.Event{
		Type:      event.TypeTokenGranted,
		Subject:   principal.Subject,
		ClientID:  client.ID,
		Timestamp: s.clock(),
		Details:   map[string]string{"grant_type": "hybrid", "scope": param.Scope},
	})
	return authorize.Completed(payload), nil
}
