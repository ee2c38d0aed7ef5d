// Package router decides which backend serves an agent's decision,
// tracking per-provider health so traffic shifts to fallbacks when a
// backend goes bad.
package router

import (
	"sync"
	"time"
)

// BreakerState is the state of one provider's circuit breaker.
type BreakerState int

const (
	StateClosed   BreakerState = iota // healthy, requests flow
	StateOpen                         // unhealthy, requests blocked
	StateHalfOpen                     // probing, one request allowed
)

func (s BreakerState) String() string {
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

// Breaker is a per-provider circuit breaker. Terminal backend failures
// trip it; rate limits do not count, since the owning queue already
// absorbs those with its own pause.
type Breaker struct {
	mu sync.Mutex

	state       BreakerState
	failures    int
	lastFailure time.Time
	openedAt    time.Time

	failureThreshold int
	probeInterval    time.Duration
	now              func() time.Time
}

// NewBreaker creates a closed breaker that opens after failureThreshold
// consecutive-window failures and probes again after probeInterval.
func NewBreaker(failureThreshold int, probeInterval time.Duration) *Breaker {
	return &Breaker{
		state:            StateClosed,
		failureThreshold: failureThreshold,
		probeInterval:    probeInterval,
		now:              time.Now,
	}
}

// State returns the current state, transitioning open to half-open once
// the probe interval has elapsed.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState must be called with mu held.
func (b *Breaker) currentState() BreakerState {
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.probeInterval {
		b.state = StateHalfOpen
	}
	return b.state
}

// Allow reports whether a request may go to this provider right now.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState() != StateOpen
}

// RecordSuccess notes a completed request. A successful half-open probe
// closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.failures = 0
	}
}

// RecordFailure notes a terminal backend failure. Enough of them in the
// closed state open the breaker; any failure during a half-open probe
// reopens it.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		if b.failures >= b.failureThreshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = b.now()
	}
}

// Reset forces the breaker closed and clears its failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
}
