// Package sink records completed decision exchanges for audit and
// replay. Recording is fire-and-forget; an unavailable sink costs log
// lines, never pipeline latency.
package sink

import (
	"context"
	"time"
)

// Exchange is the audit record for one completed backend exchange.
type Exchange struct {
	ID               string         `json:"id"`
	AgentID          string         `json:"agent_id"`
	SessionID        string         `json:"session_id,omitempty"`
	Provider         string         `json:"provider"`
	Model            string         `json:"model"`
	Prompt           string         `json:"prompt"`
	RawResponse      string         `json:"raw_response"`
	Thinking         string         `json:"thinking,omitempty"`
	Speaking         string         `json:"speaking,omitempty"`
	Action           string         `json:"action,omitempty"`
	ActionArgs       map[string]any `json:"action_args,omitempty"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	CostUSD          float64        `json:"cost_usd"`
	Duration         time.Duration  `json:"duration"`
	Success          bool           `json:"success"`
	ErrorDetail      string         `json:"error_detail,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// ExchangeSink accepts exchange records. Record must never block the
// caller for longer than a channel send.
type ExchangeSink interface {
	Record(ex Exchange)
	Close(ctx context.Context) error
}

// NoopSink discards everything. Used when no database is configured.
type NoopSink struct{}

func (NoopSink) Record(Exchange) {}

func (NoopSink) Close(context.Context) error { return nil }
