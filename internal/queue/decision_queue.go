package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/budget"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/config"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/connector"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/resolve"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/router"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/sink"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/telemetry"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/types"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/vocab"
)

// budgetScope is the spend counter every decision bills against.
const budgetScope = "global"

// ErrBudgetExhausted rejects submissions once the daily spend limit is
// reached.
var ErrBudgetExhausted = errors.New("daily budget exhausted")

// PolicyDeniedError is returned when a resolved action fails the policy
// gate.
type PolicyDeniedError struct {
	Action string
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("action %q denied by policy: %s", e.Action, e.Reason)
}

// Options wires a DecisionQueue. Registry, Providers, Models, Routes,
// Resolver and Vocab are required; the rest degrade gracefully when nil.
type Options struct {
	Registry  *connector.Registry
	Providers *config.ProvidersConfig
	Models    *config.ModelsConfig
	Routes    *router.Resolver
	Resolver  *resolve.Resolver
	Vocab     *vocab.Vocabulary
	Gate      *vocab.PolicyGate
	Sink      sink.ExchangeSink
	Metrics   *telemetry.Metrics
	Budget    *budget.Tracker
	BudgetCfg config.BudgetConfig
	Logger    *slog.Logger
}

// DecisionQueue is the external entry point of the pipeline: it routes
// each agent's request to a provider queue and exposes both an await
// surface and a non-blocking poll surface for fixed-tick callers.
type DecisionQueue struct {
	opts   Options
	logger *slog.Logger
	queues map[string]*ProviderQueue

	pollMu sync.Mutex
	ready  map[string][]types.ParsedDecision
}

// New builds one ProviderQueue per configured provider, each sized to
// that backend's concurrency tolerance.
func New(opts Options) (*DecisionQueue, error) {
	if opts.Registry == nil || opts.Providers == nil || opts.Models == nil ||
		opts.Routes == nil || opts.Resolver == nil || opts.Vocab == nil {
		return nil, fmt.Errorf("decision queue: missing required wiring")
	}
	if opts.Sink == nil {
		opts.Sink = sink.NoopSink{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	d := &DecisionQueue{
		opts:   opts,
		logger: opts.Logger,
		queues: make(map[string]*ProviderQueue, len(opts.Providers.Providers)),
		ready:  make(map[string][]types.ParsedDecision),
	}

	for name, provCfg := range opts.Providers.Providers {
		if _, ok := opts.Registry.Get(name); !ok {
			return nil, fmt.Errorf("decision queue: no connector for provider %s", name)
		}
		capacity := provCfg.MaxConcurrent
		if capacity < 1 {
			capacity = 1
		}
		pq, err := NewProviderQueue(name, capacity, d.dispatchFor(name), opts.Metrics, opts.Logger)
		if err != nil {
			return nil, err
		}
		d.queues[name] = pq
	}
	return d, nil
}

// Submit routes one decision request and returns its future. The
// request is owned by a provider queue from here until completion; the
// caller owns the result and should Wait on it.
func (d *DecisionQueue) Submit(ctx context.Context, agentID, promptText string) (*QueuedRequest, error) {
	return d.submit(ctx, types.DecisionRequest{AgentID: agentID, PromptText: promptText}, false)
}

// SubmitRequest is Submit for callers that carry the full request,
// session id included.
func (d *DecisionQueue) SubmitRequest(ctx context.Context, req types.DecisionRequest) (*QueuedRequest, error) {
	return d.submit(ctx, req, false)
}

// SubmitAsync routes a request whose result nobody awaits. The decision
// lands in the per-agent poll buffer instead, to be consumed by Poll.
// Only async submissions are buffered; awaited ones are delivered once,
// through their future.
func (d *DecisionQueue) SubmitAsync(ctx context.Context, req types.DecisionRequest) (*QueuedRequest, error) {
	return d.submit(ctx, req, true)
}

func (d *DecisionQueue) submit(ctx context.Context, req types.DecisionRequest, buffered bool) (*QueuedRequest, error) {
	if req.AgentID == "" || req.PromptText == "" {
		return nil, fmt.Errorf("submit: agent id and prompt text are required")
	}

	if d.opts.Budget != nil {
		check, _ := d.opts.Budget.Check(ctx, budgetScope, d.opts.BudgetCfg.DailyLimitUSD)
		if !check.Allowed {
			return nil, fmt.Errorf("%w: spent %d of %d cents",
				ErrBudgetExhausted, check.SpentCents, check.LimitCents)
		}
	}

	route, err := d.opts.Routes.Resolve(req.AgentID)
	if err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}
	pq, ok := d.queues[route.Provider]
	if !ok {
		return nil, fmt.Errorf("submit: no queue for provider %s", route.Provider)
	}

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	qr := newQueuedRequest(req, route.Provider, route.Model)
	if buffered {
		go d.collect(qr)
	}
	pq.Enqueue(qr)
	return qr, nil
}

// SubmitAndAwait submits and blocks until the decision completes or ctx
// expires.
func (d *DecisionQueue) SubmitAndAwait(ctx context.Context, agentID, promptText string) (types.ParsedDecision, error) {
	qr, err := d.Submit(ctx, agentID, promptText)
	if err != nil {
		return types.ParsedDecision{}, err
	}
	return qr.Wait(ctx)
}

// Poll returns the oldest ready decision for an agent, consuming it.
// For callers on a fixed simulation tick that cannot await.
func (d *DecisionQueue) Poll(agentID string) (types.ParsedDecision, bool) {
	d.pollMu.Lock()
	defer d.pollMu.Unlock()
	queue := d.ready[agentID]
	if len(queue) == 0 {
		return types.ParsedDecision{}, false
	}
	decision := queue[0]
	if len(queue) == 1 {
		delete(d.ready, agentID)
	} else {
		d.ready[agentID] = queue[1:]
	}
	return decision, true
}

// Queue exposes one provider queue, mainly for health endpoints.
func (d *DecisionQueue) Queue(provider string) (*ProviderQueue, bool) {
	pq, ok := d.queues[provider]
	return pq, ok
}

// Close shuts down every provider queue, rejecting whatever is pending.
func (d *DecisionQueue) Close() {
	for _, pq := range d.queues {
		pq.Close()
	}
}

// collect parks a completed async decision in the per-agent poll
// buffer. Failures never appear there; poll callers treat absence as
// "keep doing what you were doing".
func (d *DecisionQueue) collect(qr *QueuedRequest) {
	<-qr.Done()
	decision, err := qr.Result()
	if err != nil {
		d.logger.Warn("decision failed",
			"request_id", qr.ID, "agent_id", qr.Request.AgentID, "error", err)
		return
	}
	d.pollMu.Lock()
	d.ready[qr.Request.AgentID] = append(d.ready[qr.Request.AgentID], decision)
	d.pollMu.Unlock()
}

// dispatchFor builds the per-provider call path: backend exchange,
// resolution, policy gate, and the fire-and-forget audit trail. The
// connector is looked up per dispatch so registry swaps on config
// reload reach requests already queued.
func (d *DecisionQueue) dispatchFor(provider string) CallFunc {
	return func(ctx context.Context, qr *QueuedRequest) (types.ParsedDecision, error) {
		started := time.Now()
		conn, ok := d.opts.Registry.Get(provider)
		if !ok {
			return types.ParsedDecision{}, fmt.Errorf("dispatch: no connector for provider %s", provider)
		}
		raw, result, err := conn.Decide(ctx, qr.Request, qr.Model)
		if err != nil {
			if _, ok := connector.IsRateLimit(err); ok {
				return types.ParsedDecision{}, err
			}
			d.opts.Routes.Health().RecordFailure(qr.Provider)
			d.finish(qr, raw, result, types.ParsedDecision{}, started, "backend_error", err)
			return types.ParsedDecision{}, err
		}
		d.opts.Routes.Health().RecordSuccess(qr.Provider)

		decision, err := d.opts.Resolver.Resolve(raw)
		if err != nil {
			d.finish(qr, raw, result, types.ParsedDecision{}, started, "parse_error", err)
			return types.ParsedDecision{}, err
		}

		if allowed, reason := d.allow(ctx, qr.Request.AgentID, decision.Action.Type); !allowed {
			err := &PolicyDeniedError{Action: decision.Action.Type, Reason: reason}
			if d.opts.Metrics != nil {
				d.opts.Metrics.RecordPolicyDenial(decision.Action.Type)
			}
			d.finish(qr, raw, result, decision, started, "policy_denied", err)
			return types.ParsedDecision{}, err
		}

		d.finish(qr, raw, result, decision, started, "resolved", nil)
		return decision, nil
	}
}

// allow runs the policy gate over the resolved action's metadata.
func (d *DecisionQueue) allow(ctx context.Context, agentID, action string) (bool, string) {
	if d.opts.Gate == nil {
		return true, ""
	}
	def, _ := d.opts.Vocab.Get(action)
	return d.opts.Gate.Allow(ctx, vocab.PolicyInput{
		Agent: vocab.PolicyAgent{ID: agentID},
		Action: vocab.PolicyAction{
			Name:          def.CanonicalName,
			Category:      def.Category,
			RequiredSkill: def.RequiredSkill,
		},
	})
}

// finish emits the audit record, metrics, and spend for one completed
// exchange. Everything here is observational; nothing can fail the
// request.
func (d *DecisionQueue) finish(qr *QueuedRequest, raw resolve.RawDecision, result types.ChatResult, decision types.ParsedDecision, started time.Time, outcome string, cause error) {
	cost := d.opts.Models.CostUSD(qr.Provider, qr.Model,
		result.Usage.PromptTokens, result.Usage.CompletionTokens)

	ex := sink.Exchange{
		ID:               qr.ID,
		AgentID:          qr.Request.AgentID,
		SessionID:        qr.Request.SessionID,
		Provider:         qr.Provider,
		Model:            qr.Model,
		Prompt:           qr.Request.PromptText,
		RawResponse:      raw.RawText,
		Thinking:         decision.Thinking,
		Speaking:         decision.Speaking,
		Action:           decision.Action.Type,
		ActionArgs:       decision.Action.Args,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		CostUSD:          cost,
		Duration:         time.Since(started),
		Success:          cause == nil,
		CreatedAt:        time.Now().UTC(),
	}
	if cause != nil {
		ex.ErrorDetail = cause.Error()
	}
	d.opts.Sink.Record(ex)

	if d.opts.Metrics != nil {
		d.opts.Metrics.RecordDecision(telemetry.DecisionLabels{
			Provider:         qr.Provider,
			Model:            qr.Model,
			Outcome:          outcome,
			DurationMs:       float64(time.Since(started).Milliseconds()),
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			CostUSD:          cost,
		})
	}

	if d.opts.Budget != nil && cost > 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := d.opts.Budget.Record(ctx, budgetScope, cost); err != nil {
				d.logger.Warn("budget record failed", "error", err)
			}
		}()
	}
}
