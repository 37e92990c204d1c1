package twofa

import (
	"context"
	"sync"
	"time"

	"github.com/edusso/sso-proxy/pkg/transport"
)

// DefaultEnrollmentTTL is how long an idle enrollment is kept before the
// session has to start over from the user aggregate.
const DefaultEnrollmentTTL = 30 * time.Minute

// Enrollments tracks one Lifecycle per session so the provisioning order
// holds at the surface. Entries are keyed by access token and dropped when
// idle.
type Enrollments struct {
	svc *Service
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]*enrollmentEntry
}

type enrollmentEntry struct {
	lifecycle *Lifecycle
	seen      time.Time
}

// NewEnrollments creates an enrollment registry. A ttl of zero keeps entries
// forever.
func NewEnrollments(svc *Service, ttl time.Duration) *Enrollments {
	e := &Enrollments{
		svc:     svc,
		ttl:     ttl,
		entries: make(map[string]*enrollmentEntry),
	}
	if ttl > 0 {
		go e.cleanup()
	}
	return e
}

// Get returns the session's lifecycle, seeding its state from the user
// aggregate on first contact.
func (e *Enrollments) Get(ctx context.Context, fwd transport.Forwarded) (*Lifecycle, error) {
	e.mu.Lock()
	if entry, exists := e.entries[fwd.AccessToken]; exists {
		entry.seen = time.Now()
		e.mu.Unlock()
		return entry.lifecycle, nil
	}
	e.mu.Unlock()

	user, err := e.svc.client.User(ctx, fwd)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, exists := e.entries[fwd.AccessToken]; exists {
		entry.seen = time.Now()
		return entry.lifecycle, nil
	}
	lc := NewLifecycle(e.svc, user.TwoFactorEnabled)
	e.entries[fwd.AccessToken] = &enrollmentEntry{lifecycle: lc, seen: time.Now()}
	return lc, nil
}

func (e *Enrollments) cleanup() {
	ticker := time.NewTicker(e.ttl)
	defer ticker.Stop()

	for range ticker.C {
		e.mu.Lock()
		now := time.Now()
		for key, entry := range e.entries {
			if now.Sub(entry.seen) > e.ttl {
				delete(e.entries, key)
			}
		}
		e.mu.Unlock()
	}
}
