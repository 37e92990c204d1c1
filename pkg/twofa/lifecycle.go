package twofa

import (
	"context"
	"sync"

	"github.com/edusso/sso-proxy/pkg/backend"
	"github.com/edusso/sso-proxy/pkg/errors"
	"github.com/edusso/sso-proxy/pkg/transport"
)

// EnrollmentState is the position of a 2FA enrollment
type EnrollmentState int

const (
	// StateDisabled means no secret is active for the account
	StateDisabled EnrollmentState = iota
	// StateProvisioning means a secret exists but is unconfirmed
	StateProvisioning
	// StateEnabled means the backend confirmed the enable
	StateEnabled
)

func (s EnrollmentState) String() string {
	switch s {
	case StateDisabled:
		return "disabled"
	case StateProvisioning:
		return "provisioning"
	case StateEnabled:
		return "enabled"
	default:
		return "unknown"
	}
}

// Lifecycle tracks one account's enrollment through its states. State moves
// forward only on backend confirmation; failures never advance it.
type Lifecycle struct {
	svc *Service

	mu    sync.Mutex
	state EnrollmentState
}

// NewLifecycle starts in the given state, taken from the user aggregate
func NewLifecycle(svc *Service, enabled bool) *Lifecycle {
	state := StateDisabled
	if enabled {
		state = StateEnabled
	}
	return &Lifecycle{svc: svc, state: state}
}

// State reports the current enrollment position
func (l *Lifecycle) State() EnrollmentState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Begin provisions a secret and moves to Provisioning on success
func (l *Lifecycle) Begin(ctx context.Context, fwd transport.Forwarded) (string, error) {
	l.mu.Lock()
	if l.state == StateEnabled {
		l.mu.Unlock()
		return "", errors.New(errors.ErrCodeInvalidInput, "two-factor is already enabled")
	}
	l.mu.Unlock()

	uri, err := l.svc.BeginEnrollment(ctx, fwd)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	l.state = StateProvisioning
	l.mu.Unlock()
	return uri, nil
}

// Confirm commits the enable. Only valid while provisioning; a rejected
// code keeps the state at Provisioning so the user can retry.
func (l *Lifecycle) Confirm(ctx context.Context, fwd transport.Forwarded, otp string) error {
	l.mu.Lock()
	if l.state != StateProvisioning {
		l.mu.Unlock()
		return errors.Newf(errors.ErrCodeInvalidInput, "confirmation not valid in state %s", l.state)
	}
	l.mu.Unlock()

	if err := l.svc.ConfirmEnrollment(ctx, fwd, otp); err != nil {
		return err
	}

	l.mu.Lock()
	l.state = StateEnabled
	l.mu.Unlock()
	return nil
}

// Disable turns 2FA off with explicit confirmation and returns the reloaded
// user aggregate.
func (l *Lifecycle) Disable(ctx context.Context, fwd transport.Forwarded, confirmed bool) (*backend.User, error) {
	l.mu.Lock()
	if l.state != StateEnabled {
		l.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeInvalidInput, "disable not valid in state %s", l.state)
	}
	l.mu.Unlock()

	user, err := l.svc.Disable(ctx, fwd, confirmed)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if user.TwoFactorEnabled {
		// The backend did not settle the disable; trust its word.
		l.state = StateEnabled
	} else {
		l.state = StateDisabled
	}
	l.mu.Unlock()
	return user, nil
}
