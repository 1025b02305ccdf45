package registry

import (
	"sync"
	"time"
)

// CircuitState is the breaker position for one executor.
type CircuitState string

const (
	// StateClosed passes requests through normally.
	StateClosed CircuitState = "closed"

	// StateOpen rejects requests until the cooldown elapses.
	StateOpen CircuitState = "open"

	// StateHalfOpen admits exactly one trial request after cooldown.
	StateHalfOpen CircuitState = "half_open"
)

// BreakerConfig configures circuit breaker behavior.
type BreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the
	// circuit (default: 5).
	FailureThreshold int

	// Cooldown is how long an open circuit rejects requests before a
	// half-open trial is admitted (default: 60s).
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the default breaker configuration.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Cooldown:         60 * time.Second,
	}
}

func (c *BreakerConfig) applyDefaults() {
	defaults := DefaultBreakerConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = defaults.FailureThreshold
	}
	if c.Cooldown <= 0 {
		c.Cooldown = defaults.Cooldown
	}
}

// BreakerSnapshot is a read-only copy of breaker state for observability.
type BreakerSnapshot struct {
	State               CircuitState `json:"state"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	FailureThreshold    int          `json:"failure_threshold"`
	OpenedAt            *time.Time   `json:"opened_at,omitempty"`
	CooldownSeconds     int          `json:"cooldown_seconds"`
}

// Breaker tracks failures for one executor.
//
// All mutation goes through Allow/RecordSuccess/RecordFailure under a
// single mutex, so concurrent invocations never race on the counters.
type Breaker struct {
	mu sync.Mutex

	cfg                 BreakerConfig
	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool

	// now is replaceable in tests.
	now func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	cfg.applyDefaults()
	return &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Allow decides whether a call may proceed.
//
// Closed circuits always admit. Open circuits reject until the cooldown
// elapses, then flip to half-open and admit a single trial; concurrent
// callers during the trial are rejected rather than piling onto the probe.
// The caller must pair an admitted call with RecordSuccess or RecordFailure.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false
		}
		b.state = StateHalfOpen
		b.trialInFlight = true
		return true
	case StateHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return false
}

// RecordSuccess closes the circuit and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.consecutiveFailures = 0
	b.trialInFlight = false
	b.openedAt = time.Time{}
}

// RecordFailure counts a terminal call failure and opens the circuit once
// the threshold is reached. A failed half-open trial reopens immediately.
func (b *Breaker) RecordFailure() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveFailures++
	b.trialInFlight = false

	if b.state != StateOpen && (b.state == StateHalfOpen || b.consecutiveFailures >= b.cfg.FailureThreshold) {
		b.state = StateOpen
		b.openedAt = b.now()
	}
	return b.state
}

// State returns the current position without mutating it.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Rejecting reports whether a call right now would be refused, without
// mutating state. An open breaker past its cooldown is not rejecting:
// the next Allow admits the half-open trial, so eligibility listings
// must keep the executor visible or the trial can never be dispatched.
func (b *Breaker) Rejecting() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return false
	}
	return b.now().Sub(b.openedAt) < b.cfg.Cooldown
}

// Snapshot returns a copy of the breaker state.
func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := BreakerSnapshot{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		FailureThreshold:    b.cfg.FailureThreshold,
		CooldownSeconds:     int(b.cfg.Cooldown.Seconds()),
	}
	if !b.openedAt.IsZero() {
		opened := b.openedAt
		snap.OpenedAt = &opened
	}
	return snap
}

// setNow replaces the clock. Test hook.
func (b *Breaker) setNow(now func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.now = now
}
