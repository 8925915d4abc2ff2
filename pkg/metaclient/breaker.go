package metaclient

import (
	"sync"
	"time"
)

// State is one of the three circuit breaker states guarding the metadata
// service call-out.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// BreakerConfig configures a Breaker's thresholds.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before tripping, default 5
	RecoveryTimeout  time.Duration // OPEN -> HALF_OPEN delay, default 30s
}

// DefaultBreakerConfig returns the spec defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, RecoveryTimeout: 30 * time.Second}
}

// Breaker is a minimal three-state circuit breaker: CLOSED passes calls
// through counting failures, OPEN fails fast until the recovery timeout
// elapses, HALF_OPEN permits exactly one probe to decide whether to
// recover or re-trip.
type Breaker struct {
	mu sync.Mutex

	cfg BreakerConfig

	state       State
	failures    int
	openedAt    time.Time
	probeInFlight bool
}

// NewBreaker constructs a Breaker starting CLOSED.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	return &Breaker{cfg: cfg, state: StateClosed}
}

// ErrOpen is returned by Allow when the breaker is tripped and fast-fails
// the call.
var ErrOpen = &openError{}

type openError struct{}

func (*openError) Error() string { return "circuit breaker open" }

// Allow decides whether a call may proceed, transitioning OPEN -> HALF_OPEN
// once the recovery timeout has elapsed. It returns ErrOpen if the call
// should fail fast.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if time.Since(b.openedAt) < b.cfg.RecoveryTimeout {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probeInFlight = true
		return nil
	case StateHalfOpen:
		if b.probeInFlight {
			return ErrOpen
		}
		b.probeInFlight = true
		return nil
	default:
		return nil
	}
}

// Success reports that the call allowed by Allow succeeded, resetting the
// breaker to CLOSED.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probeInFlight = false
}

// Failure reports that the call allowed by Allow failed, incrementing the
// consecutive failure counter (which Success resets) and tripping to OPEN
// once the threshold is
// reached (or immediately, if the failing call was the HALF_OPEN probe).
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		b.state = StateOpen
		b.openedAt = time.Now()
		b.probeInFlight = false
		return
	}

	b.failures++
	if b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.openedAt = time.Now()
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
