package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the decision pipeline.
type Metrics struct {
	DecisionTotal      *prometheus.CounterVec
	DecisionDurationMs *prometheus.HistogramVec
	QueueDepth         *prometheus.GaugeVec
	QueueState         *prometheus.GaugeVec
	RateLimitPauses    *prometheus.CounterVec
	RetryTotal         *prometheus.CounterVec
	ProbeTotal         *prometheus.CounterVec
	TokensTotal        *prometheus.CounterVec
	CostUSDTotal       *prometheus.CounterVec
	PolicyDenials      *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics on the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer)
}

// NewMetricsWith creates the metrics on a specific registerer, which
// lets tests assert on counter values in isolation.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DecisionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "village_decision_total",
			Help: "Total decision requests completed, by outcome.",
		}, []string{"provider", "model", "outcome"}),

		DecisionDurationMs: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "village_decision_duration_ms",
			Help:    "End-to-end decision latency in milliseconds, including queue wait.",
			Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000},
		}, []string{"provider", "model"}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "village_queue_depth",
			Help: "Pending requests per provider queue.",
		}, []string{"provider"}),

		QueueState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "village_queue_state",
			Help: "Provider queue state (0=idle, 1=draining, 2=rate_limited).",
		}, []string{"provider"}),

		RateLimitPauses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "village_rate_limit_pauses_total",
			Help: "Times a provider queue paused after a throttling response.",
		}, []string{"provider"}),

		RetryTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "village_retry_total",
			Help: "Request retries, by cause.",
		}, []string{"provider", "cause"}),

		ProbeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "village_probe_total",
			Help: "Capability probe calls, by probe name and result.",
		}, []string{"model", "probe", "result"}),

		TokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "village_tokens_total",
			Help: "Total tokens exchanged with backends.",
		}, []string{"provider", "model", "direction"}),

		CostUSDTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "village_cost_usd_total",
			Help: "Estimated inference cost in USD.",
		}, []string{"provider", "model"}),

		PolicyDenials: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "village_policy_denials_total",
			Help: "Resolved actions rejected by the policy gate.",
		}, []string{"action"}),
	}
}

// DecisionLabels holds the label values for one completed decision.
type DecisionLabels struct {
	Provider         string
	Model            string
	Outcome          string
	DurationMs       float64
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// RecordDecision records metrics for a completed decision request.
func (m *Metrics) RecordDecision(labels DecisionLabels) {
	m.DecisionTotal.WithLabelValues(labels.Provider, labels.Model, labels.Outcome).Inc()
	m.DecisionDurationMs.WithLabelValues(labels.Provider, labels.Model).Observe(labels.DurationMs)

	if labels.PromptTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Provider, labels.Model, "prompt").
			Add(float64(labels.PromptTokens))
	}
	if labels.CompletionTokens > 0 {
		m.TokensTotal.WithLabelValues(labels.Provider, labels.Model, "completion").
			Add(float64(labels.CompletionTokens))
	}
	if labels.CostUSD > 0 {
		m.CostUSDTotal.WithLabelValues(labels.Provider, labels.Model).Add(labels.CostUSD)
	}
}

// RecordQueue updates the depth and state gauges for one provider queue.
func (m *Metrics) RecordQueue(provider string, depth int, state float64) {
	m.QueueDepth.WithLabelValues(provider).Set(float64(depth))
	m.QueueState.WithLabelValues(provider).Set(state)
}

// RecordRateLimitPause counts one queue-wide throttling pause.
func (m *Metrics) RecordRateLimitPause(provider string) {
	m.RateLimitPauses.WithLabelValues(provider).Inc()
}

// RecordRetry counts one retry, tagged with its cause.
func (m *Metrics) RecordRetry(provider, cause string) {
	m.RetryTotal.WithLabelValues(provider, cause).Inc()
}

// RecordProbe counts one capability probe call.
func (m *Metrics) RecordProbe(model, probe string, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	m.ProbeTotal.WithLabelValues(model, probe, result).Inc()
}

// RecordPolicyDenial counts one action rejected by the policy gate.
func (m *Metrics) RecordPolicyDenial(action string) {
	m.PolicyDenials.WithLabelValues(action).Inc()
}
