// Package twofa manages the two-factor lifecycle: provisioning a TOTP
// secret, the two-step enable commit, and the confirmed disable.
package twofa

import (
	"context"
	"fmt"

	"github.com/edusso/sso-proxy/pkg/authflow"
	"github.com/edusso/sso-proxy/pkg/backend"
	"github.com/edusso/sso-proxy/pkg/errors"
	"github.com/edusso/sso-proxy/pkg/transport"
)

// Service runs 2FA operations for the session identified by the forwarded
// credentials. The enabled flag lives in the user aggregate on the backend;
// nothing here flips it locally.
type Service struct {
	client *backend.Client
}

// NewService creates a 2FA service over the given backend client
func NewService(client *backend.Client) *Service {
	return &Service{client: client}
}

// BeginEnrollment asks the backend to provision a secret and returns the
// otpauth URI to render as a QR code.
func (s *Service) BeginEnrollment(ctx context.Context, fwd transport.Forwarded) (string, error) {
	resp, err := s.client.GenerateQRCode(ctx, fwd)
	if err != nil {
		return "", err
	}
	if resp.Results == "" {
		return "", errors.UnexpectedBackendShape(fmt.Errorf("empty provisioning URI"))
	}
	return resp.Results, nil
}

// ConfirmEnrollment commits the enable in two steps: the code is checked
// against the provisioned secret, then the flag is confirmed. Both calls
// must succeed; a failed check leaves 2FA disabled.
func (s *Service) ConfirmEnrollment(ctx context.Context, fwd transport.Forwarded, otp string) error {
	code := authflow.SanitizeOtp(otp)
	if len(code) != authflow.OtpLength {
		return errors.ValidationFailed("otp", fmt.Sprintf("code must be %d digits", authflow.OtpLength))
	}

	if _, err := s.client.VerifyOTP(ctx, fwd, code); err != nil {
		return err
	}
	if _, err := s.client.Confirm2FA(ctx, fwd, true); err != nil {
		return err
	}
	return nil
}

// Disable turns 2FA off. The confirmed flag must be set explicitly; the
// reloaded user aggregate is returned so callers see the settled state.
func (s *Service) Disable(ctx context.Context, fwd transport.Forwarded, confirmed bool) (*backend.User, error) {
	if !confirmed {
		return nil, errors.New(errors.ErrCodeInvalidInput, "disabling two-factor requires confirmation")
	}

	if _, err := s.client.Confirm2FA(ctx, fwd, false); err != nil {
		return nil, err
	}
	return s.client.User(ctx, fwd)
}
