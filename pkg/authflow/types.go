package authflow

import (
	"regexp"

	"github.com/edusso/sso-proxy/pkg/backend"
)

// State is the position of a login attempt
type State int

const (
	// StateAwaitingCredentials is the initial state of every attempt
	StateAwaitingCredentials State = iota
	// StateAwaitingOtp means credentials passed and a one-time code is pending
	StateAwaitingOtp
	// StateAuthenticated is terminal for the attempt
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateAwaitingCredentials:
		return "awaiting_credentials"
	case StateAwaitingOtp:
		return "awaiting_otp"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// LoginOutcome is what a credential or OTP submission produced. When
// OtpRequired is set the token fields are empty; a challenged login never
// yields a session, even if the backend sent tokens alongside the challenge.
type LoginOutcome struct {
	OtpRequired  bool
	Message      string
	AccessToken  string
	RefreshToken string
}

// SessionInfo is the post-login reload of the user and profile aggregates.
// Warnings carries non-fatal fetch failures; the session itself stands.
type SessionInfo struct {
	User     *backend.User
	Profile  *backend.Profile
	Warnings []string
}

// emailPattern is the same fast format check the login form applies.
// Full address validation is the backend's job.
var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// OtpLength is the required one-time code length after sanitization
const OtpLength = 6
