// Package breaker implements the per-provider circuit breaker state machine
// {Closed, Open, HalfOpen} described in spec §4.4, grounded on the atomic
// counters + RWMutex shape of a circuit breaker (no such type exists in the
// teacher itself, which relies on channel priority/disable-on-error instead).
package breaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cliproxy/gateway/relay/model"
)

// State is the breaker's admission state.
type State int32

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// AllowResult is returned by AllowRequest.
type AllowResult struct {
	Allowed          bool
	UsedHalfOpenPermit bool
}

// Breaker is one provider's circuit breaker. Counters are atomic; state,
// last-opened timestamp, and configuration are guarded by a RWMutex. Lock
// acquisition order is fixed (state before config) to avoid deadlocks, and no
// lock is ever held across an upstream I/O await.
type Breaker struct {
	mu     sync.RWMutex
	state  State
	lastOpenedAt time.Time
	config model.CircuitBreakerConfig

	consecutiveFailures  int64
	consecutiveSuccesses int64
	totalRequests        int64
	failedRequests       int64
	halfOpenInFlight     int32
}

// New constructs a breaker in the Closed state with cfg.
func New(cfg model.CircuitBreakerConfig) *Breaker {
	return &Breaker{state: Closed, config: cfg}
}

// IsAvailable is the cheap check used by the router. It returns true in
// Closed/HalfOpen; in Open, it transitions to HalfOpen once timeout_seconds
// has elapsed and returns true, else false. It never consumes a probe permit.
func (b *Breaker) IsAvailable() bool {
	b.mu.RLock()
	state := b.state
	lastOpenedAt := b.lastOpenedAt
	timeout := time.Duration(b.config.TimeoutSeconds) * time.Second
	b.mu.RUnlock()

	switch state {
	case Closed, HalfOpen:
		return true
	case Open:
		if time.Since(lastOpenedAt) < timeout {
			return false
		}
		b.mu.Lock()
		if b.state == Open && time.Since(b.lastOpenedAt) >= timeout {
			b.state = HalfOpen
			b.halfOpenInFlight = 0
			atomic.StoreInt64(&b.consecutiveSuccesses, 0)
		}
		b.mu.Unlock()
		return true
	default:
		return false
	}
}

// AllowRequest consumes a probe permit only in HalfOpen and only when fewer
// than one probe is already in flight (capacity 1, per the glossary).
func (b *Breaker) AllowRequest() AllowResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return AllowResult{Allowed: true}
	case HalfOpen:
		if b.halfOpenInFlight >= 1 {
			return AllowResult{Allowed: false}
		}
		b.halfOpenInFlight++
		return AllowResult{Allowed: true, UsedHalfOpenPermit: true}
	default: // Open
		return AllowResult{Allowed: false}
	}
}

// RecordSuccess releases a held permit, zeroes consecutive_failures,
// increments total_requests, and in HalfOpen advances toward Closed.
func (b *Breaker) RecordSuccess(usedPermit bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if usedPermit && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
	atomic.StoreInt64(&b.consecutiveFailures, 0)
	atomic.AddInt64(&b.totalRequests, 1)

	if b.state == HalfOpen {
		successes := atomic.AddInt64(&b.consecutiveSuccesses, 1)
		if uint32(successes) >= b.config.SuccessThreshold {
			b.resetLocked()
		}
	}
}

// RecordFailure releases a held permit, increments the failure counters, and
// applies I1 in Closed; in HalfOpen it transitions back to Open immediately.
func (b *Breaker) RecordFailure(usedPermit bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if usedPermit && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
	failures := atomic.AddInt64(&b.consecutiveFailures, 1)
	total := atomic.AddInt64(&b.totalRequests, 1)
	failed := atomic.AddInt64(&b.failedRequests, 1)
	atomic.StoreInt64(&b.consecutiveSuccesses, 0)

	switch b.state {
	case HalfOpen:
		b.openLocked()
	case Closed:
		errorRateTripped := uint32(total) >= b.config.MinRequests &&
			float64(failed)/float64(total) >= b.config.ErrorRateThreshold
		if uint32(failures) >= b.config.FailureThreshold || errorRateTripped {
			b.openLocked()
		}
	}
}

// ReleaseHalfOpenPermit releases a held permit without affecting health
// counters, used when a request is skipped for reasons outside the
// provider's fault (e.g. the forwarder chose a different provider after
// admission raced with a config reload).
func (b *Breaker) ReleaseHalfOpenPermit() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
}

// Reset forces Closed and zeroes all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

// UpdateConfig hot-swaps thresholds without affecting runtime state. It is
// atomic and visible to the next call; in-flight outcomes use the config
// captured at decision time by RecordSuccess/RecordFailure.
func (b *Breaker) UpdateConfig(cfg model.CircuitBreakerConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.config = cfg
}

// Snapshot returns a read-only view of the breaker's state for the debug endpoint.
type Snapshot struct {
	State                State
	ConsecutiveFailures  int64
	ConsecutiveSuccesses int64
	TotalRequests        int64
	FailedRequests       int64
	HalfOpenInFlight     int32
}

func (b *Breaker) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{
		State:                b.state,
		ConsecutiveFailures:  atomic.LoadInt64(&b.consecutiveFailures),
		ConsecutiveSuccesses: atomic.LoadInt64(&b.consecutiveSuccesses),
		TotalRequests:        atomic.LoadInt64(&b.totalRequests),
		FailedRequests:       atomic.LoadInt64(&b.failedRequests),
		HalfOpenInFlight:     b.halfOpenInFlight,
	}
}

func (b *Breaker) openLocked() {
	b.state = Open
	b.lastOpenedAt = time.Now()
}

func (b *Breaker) resetLocked() {
	b.state = Closed
	atomic.StoreInt64(&b.consecutiveFailures, 0)
	atomic.StoreInt64(&b.consecutiveSuccesses, 0)
	atomic.StoreInt64(&b.totalRequests, 0)
	atomic.StoreInt64(&b.failedRequests, 0)
	b.halfOpenInFlight = 0
}
