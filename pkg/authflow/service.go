// Package authflow implements the login state machine: credential
// submission, the optional one-time-code step, and the post-login reload of
// the user and profile aggregates.
package authflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edusso/sso-proxy/pkg/backend"
	"github.com/edusso/sso-proxy/pkg/errors"
	"github.com/edusso/sso-proxy/pkg/fingerprint"
	"github.com/edusso/sso-proxy/pkg/transport"
)

// Service runs individual login steps against the identity backend
type Service struct {
	client    *backend.Client
	collector *fingerprint.Collector
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithCollector wires the local fingerprint agent probe into logins
func WithCollector(c *fingerprint.Collector) ServiceOption {
	return func(s *Service) {
		s.collector = c
	}
}

// NewService creates a login service over the given backend client
func NewService(client *backend.Client, opts ...ServiceOption) *Service {
	s := &Service{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateEmail applies the local format check. It exists to fail fast
// before any network call; the backend remains the authority.
func ValidateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return errors.ValidationFailed("email", "invalid email format")
	}
	return nil
}

// SanitizeOtp strips everything but digits from a submitted code
func SanitizeOtp(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SubmitCredentials runs the first login step. When the local agent supplies
// a fingerprint the device-bound endpoint is used; otherwise the standard
// one. A challenged response (otp_required) wins over any token pair.
func (s *Service) SubmitCredentials(ctx context.Context, email, password string) (*LoginOutcome, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, errors.ValidationFailed("password", "password is required")
	}

	req := backend.LoginRequest{Email: email, Password: password}

	var fp *fingerprint.Fingerprint
	if s.collector != nil {
		fp = s.collector.Collect(ctx)
	}

	var resp *backend.LoginResponse
	var err error
	if fp != nil {
		req.DeviceHash = fp.Hash
		req.Components = fp.Components.Map()
		resp, _, err = s.client.SecureDeviceLogin(ctx, req)
	} else {
		resp, _, err = s.client.SSOLogin(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	return outcomeFromResults(resp.Results)
}

// SubmitOtp runs the second login step. The code is sanitized to digits and
// must be exactly six long or no backend call is made.
func (s *Service) SubmitOtp(ctx context.Context, email, otp string) (*LoginOutcome, error) {
	code := SanitizeOtp(otp)
	if len(code) != OtpLength {
		return nil, errors.ValidationFailed("otp", fmt.Sprintf("code must be %d digits", OtpLength))
	}

	resp, _, err := s.client.VerifyOTPLogin(ctx, backend.OtpLoginRequest{Email: email, Otp: code})
	if err != nil {
		return nil, err
	}

	outcome, err := outcomeFromResults(resp.Results)
	if err != nil {
		return nil, err
	}
	if outcome.OtpRequired {
		return nil, errors.New(errors.ErrCodeInvalidChallenge, "backend challenged an OTP submission")
	}
	return outcome, nil
}

// LoadSession reloads the user and profile aggregates after a login. The
// user fetch must succeed; a profile failure is reported as a warning so the
// stored session stays valid.
func (s *Service) LoadSession(ctx context.Context, fwd transport.Forwarded) (*SessionInfo, error) {
	user, err := s.client.User(ctx, fwd)
	if err != nil {
		return nil, err
	}

	info := &SessionInfo{User: user}
	profile, err := s.client.Profile(ctx, fwd)
	if err != nil {
		slog.Warn("profile reload failed after login", "user", user.Username, "err", err)
		info.Warnings = append(info.Warnings, "profile could not be loaded")
	} else {
		info.Profile = profile
	}
	return info, nil
}

func outcomeFromResults(results backend.LoginResults) (*LoginOutcome, error) {
	if results.OtpRequired {
		return &LoginOutcome{OtpRequired: true, Message: results.Message}, nil
	}
	if results.Access == nil || results.Refresh == nil || *results.Access == "" || *results.Refresh == "" {
		return nil, errors.UnexpectedBackendShape(fmt.Errorf("login response carries neither challenge nor token pair"))
	}
	return &LoginOutcome{
		Message:      results.Message,
		AccessToken:  *results.Access,
		RefreshToken: *results.Refresh,
	}, nil
}
