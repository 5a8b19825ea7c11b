package service

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/google/uuid"

	dErrors "signet/pkg/domain-errors"
	"signet/pkg/platform/sentinel"
	pstrings "signet/pkg/platform/strings"

	"signet/internal/clientauth"
	"signet/internal/device"
	"signet/internal/domain"
	"signet/internal/event"
)

// DeviceAuthorization is the response to a device authorization request
// (RFC 8628 section 3.2).
type DeviceAuthorization struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int64  `json:"expires_in"`
	Interval        int64  `json:"interval"`
}

// userCodeAlphabet omits ambiguous characters; codes are read aloud or
// typed from a TV screen.
const userCodeAlphabet = "BCDFGHJKLMNPQRSTVWXZ"

func newUserCode() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return uuid.NewString()[:8]
	}
	for i, b := range buf {
		buf[i] = userCodeAlphabet[int(b)%len(userCodeAlphabet)]
	}
	return string(buf[:4]) + "-" + string(buf[4:])
}

// BeginDeviceAuthorization starts a device flow: authenticates the client,
// mints the device/user code pair, and stores the poll record.
func (s *Service) BeginDeviceAuthorization(ctx context.Context, instruction *clientauth.Instruction, scope string) (*DeviceAuthorization, error) {
	ctx, span := s.startSpan(ctx, "token.device_begin", instruction.CandidateClientID())
	defer span.End()

	client, err := s.authenticator.Authenticate(ctx, instruction, s.issuer)
	if err != nil {
		return nil, err
	}
	if err := requireGrant(client, domain.GrantDeviceCode); err != nil {
		return nil, err
	}
	scopes := pstrings.SplitSpaceDelimited(scope)
	if !client.AllowsScopes(scopes) {
		return nil, dErrors.New(dErrors.CodeInvalidScope, "requested scope exceeds the client's allowed scopes")
	}

	now := s.clock()
	rec := &device.AuthorizationData{
		DeviceCode: uuid.NewString(),
		UserCode:   s.deviceUserCode(),
		ClientID:   client.ID,
		Scopes:     scopes,
		Interval:   s.devicePollGap,
		ExpiresAt:  now.Add(s.deviceCodeTTL),
		CreatedAt:  now,
	}
	if err := s.devices.Save(ctx, rec); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "store device authorization")
	}
	return &DeviceAuthorization{
		DeviceCode:      rec.DeviceCode,
		UserCode:        rec.UserCode,
		VerificationURI: s.issuer + "/device",
		ExpiresIn:       int64(s.deviceCodeTTL / time.Second),
		Interval:        int64(s.devicePollGap / time.Second),
	}, nil
}

// ApproveDevice marks a pending device authorization approved by the logged
// in resource owner, looked up by the user code they typed.
func (s *Service) ApproveDevice(ctx context.Context, userCode string, principal domain.Principal) error {
	if !principal.IsAuthenticated() {
		return dErrors.New(dErrors.CodeLoginRequired, "resource owner is not authenticated")
	}
	rec, err := s.devices.GetByUserCode(ctx, userCode)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeInvalidRequest, "user code is not recognized")
		}
		return err
	}
	if rec.IsExpired(s.clock()) {
		if err := s.devices.Remove(ctx, rec); err != nil {
			return err
		}
		return dErrors.New(dErrors.CodeExpiredToken, "device authorization has expired")
	}
	rec.Approve(principal.Subject)
	if err := s.devices.Save(ctx, rec); err != nil {
		return err
	}
	s.events.Emit(ctx, event.Event{
		Type:      event.TypeDeviceApproved,
		Subject:   principal.Subject,
		ClientID:  rec.ClientID,
		Timestamp: s.clock(),
	})
	return nil
}
