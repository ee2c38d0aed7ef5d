package router

import (
	"sync"
	"time"
)

// HealthTracker holds one breaker per provider, created lazily.
type HealthTracker struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker

	failureThreshold int
	probeInterval    time.Duration
}

func NewHealthTracker(failureThreshold int, probeInterval time.Duration) *HealthTracker {
	return &HealthTracker{
		breakers:         make(map[string]*Breaker),
		failureThreshold: failureThreshold,
		probeInterval:    probeInterval,
	}
}

// Breaker returns (or lazily creates) the breaker for a provider.
func (ht *HealthTracker) Breaker(provider string) *Breaker {
	ht.mu.RLock()
	b, ok := ht.breakers[provider]
	ht.mu.RUnlock()
	if ok {
		return b
	}

	ht.mu.Lock()
	defer ht.mu.Unlock()
	if b, ok := ht.breakers[provider]; ok {
		return b
	}
	b = NewBreaker(ht.failureThreshold, ht.probeInterval)
	ht.breakers[provider] = b
	return b
}

// IsAvailable reports whether the provider's breaker allows requests.
func (ht *HealthTracker) IsAvailable(provider string) bool {
	return ht.Breaker(provider).Allow()
}

// RecordSuccess notes a completed request for the provider.
func (ht *HealthTracker) RecordSuccess(provider string) {
	ht.Breaker(provider).RecordSuccess()
}

// RecordFailure notes a terminal failure for the provider.
func (ht *HealthTracker) RecordFailure(provider string) {
	ht.Breaker(provider).RecordFailure()
}

// States snapshots every known provider's breaker state, for health
// endpoints.
func (ht *HealthTracker) States() map[string]string {
	ht.mu.RLock()
	defer ht.mu.RUnlock()
	out := make(map[string]string, len(ht.breakers))
	for name, b := range ht.breakers {
		out[name] = b.State().String()
	}
	return out
}
