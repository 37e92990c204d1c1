package authflow

import (
	"sync"
	"time"
)

// DefaultAttemptTTL is how long an idle login attempt is kept before the
// client has to start over with credentials.
const DefaultAttemptTTL = 10 * time.Minute

// Attempts hands out one Flow per client key so every browser's login
// attempt is tracked independently. Idle attempts are dropped after ttl.
type Attempts struct {
	svc *Service
	ttl time.Duration

	mu    sync.Mutex
	flows map[string]*attemptEntry
}

type attemptEntry struct {
	flow *Flow
	seen time.Time
}

// NewAttempts creates an attempt registry. A ttl of zero keeps attempts
// forever.
func NewAttempts(svc *Service, ttl time.Duration) *Attempts {
	a := &Attempts{
		svc:   svc,
		ttl:   ttl,
		flows: make(map[string]*attemptEntry),
	}
	if ttl > 0 {
		go a.cleanup()
	}
	return a
}

// Get returns the client's current attempt, starting a fresh one on first
// contact or after the previous attempt expired.
func (a *Attempts) Get(key string) *Flow {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, exists := a.flows[key]
	if !exists {
		entry = &attemptEntry{flow: NewFlow(a.svc)}
		a.flows[key] = entry
	}
	entry.seen = time.Now()
	return entry.flow
}

// Drop forgets the client's attempt, typically once a session is established
func (a *Attempts) Drop(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.flows, key)
}

func (a *Attempts) cleanup() {
	ticker := time.NewTicker(a.ttl)
	defer ticker.Stop()

	for range ticker.C {
		a.mu.Lock()
		now := time.Now()
		for key, entry := range a.flows {
			if now.Sub(entry.seen) > a.ttl {
				delete(a.flows, key)
			}
		}
		a.mu.Unlock()
	}
}
