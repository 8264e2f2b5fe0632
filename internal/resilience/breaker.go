// Package resilience provides the circuit breaker and retry discipline used
// for every outbound inter-agent call.
package resilience

import (
	"errors"
	"sync"
	"time"
)

// Breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultRecoveryTimeout  = 60 * time.Second
)

// ErrCircuitOpen is returned when a breaker rejects a call.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the state of a circuit breaker.
type State int

const (
	// StateClosed allows all requests through
	StateClosed State = iota
	// StateOpen rejects all requests until the recovery timeout elapses
	StateOpen
	// StateHalfOpen allows a single probe request
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a CircuitBreaker.
type BreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	Clock            func() time.Time
	// OnStateChange is invoked after a transition, outside the breaker lock.
	OnStateChange func(name string, from, to State)
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	OpenedAt     time.Time `json:"opened_at,omitempty"`
}

// CircuitBreaker tracks consecutive failures toward a single destination.
//
// HalfOpen is never stored: an open breaker whose recovery timeout has
// elapsed reports HalfOpen, and the first AllowRequest in that window claims
// the probe slot. Everything else is rejected until the probe is recorded.
type CircuitBreaker struct {
	name   string
	config BreakerConfig

	mu           sync.Mutex
	failureCount int
	open         bool
	openedAt     time.Time
	probing      bool
}

// NewCircuitBreaker creates a closed breaker. Zero config values fall back to defaults.
func NewCircuitBreaker(name string, config BreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultFailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = DefaultRecoveryTimeout
	}
	return &CircuitBreaker{name: name, config: config}
}

// Name returns the destination this breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// State derives the current state from the stored open flag and timestamp.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked(cb.now())
}

func (cb *CircuitBreaker) stateLocked(now time.Time) State {
	if !cb.open {
		return StateClosed
	}
	if now.Sub(cb.openedAt) >= cb.config.RecoveryTimeout {
		return StateHalfOpen
	}
	return StateOpen
}

// AllowRequest reports whether a call may be attempted now. It must be
// checked before every call; a true result in the half-open window reserves
// the single probe slot.
func (cb *CircuitBreaker) AllowRequest() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateLocked(cb.now()) {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess closes the breaker and resets the failure count.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.stateLocked(cb.now())
	cb.failureCount = 0
	cb.open = false
	cb.probing = false
	cb.openedAt = time.Time{}
	cb.mu.Unlock()

	cb.notify(from, StateClosed)
}

// RecordFailure counts a failed call. Reaching the threshold, or failing the
// half-open probe, opens the breaker and restarts the recovery timer.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	now := cb.now()
	from := cb.stateLocked(now)
	cb.failureCount++
	if cb.probing || cb.failureCount >= cb.config.FailureThreshold {
		cb.open = true
		cb.openedAt = now
		cb.probing = false
	}
	to := cb.stateLocked(now)
	cb.mu.Unlock()

	cb.notify(from, to)
}

// Release gives back a probe slot claimed by AllowRequest when the attempt was
// abandoned without an outcome, such as a caller cancellation. Counts are unchanged.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	cb.probing = false
	cb.mu.Unlock()
}

// Snapshot returns the breaker's current state.
func (cb *CircuitBreaker) Snapshot() Snapshot {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Snapshot{
		Name:         cb.name,
		State:        cb.stateLocked(cb.now()).String(),
		FailureCount: cb.failureCount,
		OpenedAt:     cb.openedAt,
	}
}

func (cb *CircuitBreaker) notify(from, to State) {
	if from == to || cb.config.OnStateChange == nil {
		return
	}
	cb.config.OnStateChange(cb.name, from, to)
}

func (cb *CircuitBreaker) now() time.Time {
	if cb.config.Clock != nil {
		return cb.config.Clock()
	}
	return time.Now()
}
