// Package queue schedules decision requests onto rate-limit-aware
// per-provider queues and exposes the await and poll surfaces callers
// consume results through.
package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/types"
)

// QueuedRequest is one decision request plus its scheduling metadata
// and single-fire completion. It lives in exactly one provider queue's
// pending list until it completes.
type QueuedRequest struct {
	ID         string
	Request    types.DecisionRequest
	Provider   string
	Model      string
	RetryCount int
	EnqueuedAt time.Time

	once     sync.Once
	done     chan struct{}
	decision types.ParsedDecision
	err      error
}

func newQueuedRequest(req types.DecisionRequest, provider, model string) *QueuedRequest {
	return &QueuedRequest{
		ID:         uuid.NewString(),
		Request:    req,
		Provider:   provider,
		Model:      model,
		EnqueuedAt: time.Now(),
		done:       make(chan struct{}),
	}
}

// resolve completes the request successfully. Exactly one of resolve and
// reject takes effect; later calls are no-ops.
func (r *QueuedRequest) resolve(d types.ParsedDecision) {
	r.once.Do(func() {
		r.decision = d
		close(r.done)
	})
}

// reject completes the request with a terminal error.
func (r *QueuedRequest) reject(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done is closed when the request has completed either way.
func (r *QueuedRequest) Done() <-chan struct{} {
	return r.done
}

// Result returns the outcome. Only valid after Done is closed.
func (r *QueuedRequest) Result() (types.ParsedDecision, error) {
	return r.decision, r.err
}

// Wait blocks until the request completes or ctx is done. An expired
// ctx abandons the wait, not the request; the decision still completes
// and remains readable through Result.
func (r *QueuedRequest) Wait(ctx context.Context) (types.ParsedDecision, error) {
	select {
	case <-r.done:
		return r.decision, r.err
	case <-ctx.Done():
		return types.ParsedDecision{}, ctx.Err()
	}
}
