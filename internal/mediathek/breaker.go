package mediathek

import (
	"sync"
	"time"
)

// BreakerState is the position of the circuit.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// BreakerSnapshot is a point-in-time view of the breaker.
type BreakerSnapshot struct {
	State               BreakerState `json:"state"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	OpenUntil           *time.Time   `json:"openUntil,omitempty"`
}

// Breaker is a consecutive-failure circuit breaker shared by every call
// made through one Client. It is safe for concurrent use.
type Breaker struct {
	threshold int
	openFor   time.Duration
	now       func() time.Time

	mu        sync.Mutex
	state     BreakerState
	failures  int
	openUntil time.Time
	probing   bool
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and stays open for openFor.
func NewBreaker(threshold int, openFor time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	return &Breaker{
		threshold: threshold,
		openFor:   openFor,
		now:       time.Now,
		state:     StateClosed,
	}
}

// Allow reserves the right to make one call. It returns ErrCircuitOpen while
// the circuit is open, and lets exactly one probe through once the open
// period has elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Before(b.openUntil) {
			return ErrCircuitOpen
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// Success records a call whose outcome does not count as a failure.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probing = false
}

// Failure records a qualifying failure.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
		b.openUntil = b.now().Add(b.openFor)
		b.probing = false
	}
}

// Abandon releases a reservation whose call ended without an outcome,
// such as a cancelled context.
func (b *Breaker) Abandon() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
}

// State returns a snapshot of the breaker.
func (b *Breaker) State() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := BreakerSnapshot{State: b.state, ConsecutiveFailures: b.failures}
	if b.state == StateOpen {
		until := b.openUntil
		snap.OpenUntil = &until
	}
	return snap
}
