// Package limiter bounds how many calls a single backend may have in
// flight at once.
package limiter

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter is a counting semaphore with FIFO fairness: blocked Acquire
// calls are served strictly in arrival order, so no waiter starves.
// It carries no timeout policy of its own; callers wrap Acquire with
// whatever context deadline they need.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int64
	held     atomic.Int64
}

// New creates a limiter with the given permit capacity.
// Capacity below 1 is a configuration error.
func New(capacity int) (*Limiter, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("limiter capacity must be >= 1, got %d", capacity)
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: int64(capacity),
	}, nil
}

// Acquire blocks until a permit is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.held.Add(1)
	return nil
}

// TryAcquire takes a permit without blocking, reporting whether it got one.
func (l *Limiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.held.Add(1)
	return true
}

// Release returns a permit. The permit goes to the longest-waiting blocked
// Acquire if any, otherwise back to the available pool. Releasing with no
// permits held is a no-op rather than growing the pool past capacity.
func (l *Limiter) Release() {
	for {
		held := l.held.Load()
		if held <= 0 {
			return
		}
		if l.held.CompareAndSwap(held, held-1) {
			l.sem.Release(1)
			return
		}
	}
}

// Capacity returns the configured permit count.
func (l *Limiter) Capacity() int {
	return int(l.capacity)
}

// InFlight returns how many permits are currently held.
func (l *Limiter) InFlight() int {
	return int(l.held.Load())
}
