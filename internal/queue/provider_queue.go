package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/connector"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/limiter"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/telemetry"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/types"
)

// State is the scheduling state of one provider queue.
type State int

const (
	StateIdle        State = iota // nothing pending
	StateDraining                 // dispatching pending requests
	StateRateLimited              // paused until the backend's limit clears
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDraining:
		return "draining"
	case StateRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// ErrQueueClosed rejects requests that were still pending at shutdown.
var ErrQueueClosed = errors.New("provider queue closed")

// CallFunc performs the backend exchange for one queued request. A
// returned rate-limit error pauses the whole queue; any other error is
// terminal for that request only.
type CallFunc func(ctx context.Context, qr *QueuedRequest) (types.ParsedDecision, error)

// ProviderQueue feeds pending requests through one backend's
// concurrency limiter, FIFO except that a rate-limited request is
// reinserted at the head so it retries before anything queued behind it.
type ProviderQueue struct {
	name    string
	call    CallFunc
	limiter *limiter.Limiter
	metrics *telemetry.Metrics
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	pending      []*QueuedRequest
	processing   bool
	state        State
	limitedUntil time.Time
	closed       bool
}

// NewProviderQueue creates a queue draining through a fresh limiter of
// the given capacity. Capacity below 1 is a configuration error.
func NewProviderQueue(name string, capacity int, call CallFunc, metrics *telemetry.Metrics, logger *slog.Logger) (*ProviderQueue, error) {
	lim, err := limiter.New(capacity)
	if err != nil {
		return nil, fmt.Errorf("queue %s: %w", name, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ProviderQueue{
		name:    name,
		call:    call,
		limiter: lim,
		metrics: metrics,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		state:   StateIdle,
	}, nil
}

func (q *ProviderQueue) Name() string { return q.name }

// Depth returns the number of pending (not yet dispatched) requests.
func (q *ProviderQueue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// State returns the queue's current scheduling state.
func (q *ProviderQueue) State() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// InFlight returns how many calls are currently holding permits.
func (q *ProviderQueue) InFlight() int {
	return q.limiter.InFlight()
}

// Enqueue appends the request to the tail of the pending list and
// triggers a drain.
func (q *ProviderQueue) Enqueue(qr *QueuedRequest) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		qr.reject(ErrQueueClosed)
		return
	}
	q.pending = append(q.pending, qr)
	q.publishLocked()
	q.mu.Unlock()
	go q.drain()
}

// Close stops the queue and rejects everything still pending. In-flight
// calls run to completion.
func (q *ProviderQueue) Close() {
	q.cancel()
	q.mu.Lock()
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.state = StateIdle
	q.publishLocked()
	q.mu.Unlock()
	for _, qr := range pending {
		qr.reject(ErrQueueClosed)
	}
}

// drain is the single scheduling loop. The processing flag guarantees
// only one instance runs; every other trigger no-ops.
func (q *ProviderQueue) drain() {
	q.mu.Lock()
	if q.processing || q.closed {
		q.mu.Unlock()
		return
	}
	q.processing = true
	q.mu.Unlock()

	for {
		q.mu.Lock()
		if q.closed {
			q.processing = false
			q.mu.Unlock()
			return
		}

		if wait := time.Until(q.limitedUntil); wait > 0 {
			q.state = StateRateLimited
			q.processing = false
			q.publishLocked()
			q.mu.Unlock()
			time.AfterFunc(wait, q.drain)
			return
		}

		if len(q.pending) == 0 {
			q.state = StateIdle
			q.processing = false
			q.publishLocked()
			q.mu.Unlock()
			return
		}
		q.state = StateDraining
		q.publishLocked()
		q.mu.Unlock()

		if !q.limiter.TryAcquire() {
			if err := q.limiter.Acquire(q.ctx); err != nil {
				q.mu.Lock()
				q.processing = false
				q.mu.Unlock()
				return
			}
		}

		// Re-check under the lock: a rate limit may have landed while we
		// waited for the permit.
		q.mu.Lock()
		if q.closed || len(q.pending) == 0 || time.Until(q.limitedUntil) > 0 {
			q.mu.Unlock()
			q.limiter.Release()
			continue
		}
		qr := q.pending[0]
		q.pending = q.pending[1:]
		q.publishLocked()
		q.mu.Unlock()

		go q.dispatch(qr)
	}
}

// dispatch runs one call outside the drain loop so the loop can keep
// filling remaining permits.
func (q *ProviderQueue) dispatch(qr *QueuedRequest) {
	decision, err := q.call(q.ctx, qr)

	switch {
	case err == nil:
		qr.resolve(decision)
	default:
		if rle, ok := connector.IsRateLimit(err); ok {
			q.pause(qr, rle.RetryAfter)
		} else {
			qr.reject(err)
		}
	}

	q.limiter.Release()
	go q.drain()
}

// pause reinserts the rate-limited request at the head of the pending
// list and stalls the whole queue until the backend's limit clears. Head
// reinsertion keeps the retried request from starving behind newer
// arrivals: being throttled says nothing about the request itself.
func (q *ProviderQueue) pause(qr *QueuedRequest, delay time.Duration) {
	if delay <= 0 {
		delay = time.Second
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		qr.reject(ErrQueueClosed)
		return
	}
	qr.RetryCount++
	q.pending = append([]*QueuedRequest{qr}, q.pending...)
	until := time.Now().Add(delay)
	if until.After(q.limitedUntil) {
		q.limitedUntil = until
	}
	q.state = StateRateLimited
	q.publishLocked()
	q.mu.Unlock()

	q.logger.Warn("provider rate limited, pausing queue",
		"provider", q.name, "delay", delay, "request_id", qr.ID, "retry_count", qr.RetryCount)
	if q.metrics != nil {
		q.metrics.RecordRateLimitPause(q.name)
		q.metrics.RecordRetry(q.name, "rate_limit")
	}
}

// publishLocked pushes depth and state gauges. Must be called with mu
// held.
func (q *ProviderQueue) publishLocked() {
	if q.metrics == nil {
		return
	}
	q.metrics.RecordQueue(q.name, len(q.pending), float64(q.state))
}
