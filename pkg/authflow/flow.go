package authflow

import (
	"context"
	"sync"

	"github.com/edusso/sso-proxy/pkg/errors"
)

// Flow tracks one login attempt through its states. At most one submission
// runs at a time; a second call while one is in flight is rejected without
// touching the backend.
type Flow struct {
	svc *Service

	mu       sync.Mutex
	state    State
	email    string
	inFlight bool
}

// NewFlow starts a fresh attempt in AwaitingCredentials
func NewFlow(svc *Service) *Flow {
	return &Flow{svc: svc}
}

// State reports the attempt's current position
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Email reports the address held for the pending OTP step
func (f *Flow) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

// Reset returns the attempt to AwaitingCredentials and drops the held email
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = StateAwaitingCredentials
	f.email = ""
}

func (f *Flow) begin(want State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return errors.New(errors.ErrCodeInvalidInput, "a submission is already in progress")
	}
	if f.state != want {
		return errors.Newf(errors.ErrCodeInvalidInput, "submission not valid in state %s", f.state)
	}
	f.inFlight = true
	return nil
}

// beginCredentials admits a credential submission from any settled state.
// Resubmitting credentials abandons a pending challenge and starts over.
func (f *Flow) beginCredentials() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight {
		return errors.New(errors.ErrCodeInvalidInput, "a submission is already in progress")
	}
	f.state = StateAwaitingCredentials
	f.email = ""
	f.inFlight = true
	return nil
}

func (f *Flow) finish() {
	f.mu.Lock()
	f.inFlight = false
	f.mu.Unlock()
}

// SubmitCredentials runs the first step. On a challenge the flow moves to
// AwaitingOtp holding the email; on a token pair it is Authenticated.
func (f *Flow) SubmitCredentials(ctx context.Context, email, password string) (*LoginOutcome, error) {
	if err := f.beginCredentials(); err != nil {
		return nil, err
	}
	defer f.finish()

	outcome, err := f.svc.SubmitCredentials(ctx, email, password)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if outcome.OtpRequired {
		f.state = StateAwaitingOtp
		f.email = email
	} else {
		f.state = StateAuthenticated
	}
	f.mu.Unlock()
	return outcome, nil
}

// SubmitOtp runs the second step against the held email. A rejected code
// resets the attempt to AwaitingCredentials and clears the email, so the
// user starts over with their password.
func (f *Flow) SubmitOtp(ctx context.Context, otp string) (*LoginOutcome, error) {
	if err := f.begin(StateAwaitingOtp); err != nil {
		return nil, err
	}
	defer f.finish()

	f.mu.Lock()
	email := f.email
	f.mu.Unlock()

	outcome, err := f.svc.SubmitOtp(ctx, email, otp)

	f.mu.Lock()
	switch {
	case err == nil:
		f.state = StateAuthenticated
	case errors.IsCode(err, errors.ErrCodeValidationFailed):
		// Code never reached the backend; the attempt stays open.
	default:
		f.state = StateAwaitingCredentials
		f.email = ""
	}
	f.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return outcome, nil
}
