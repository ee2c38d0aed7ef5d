package types

import "time"

// ChatRequest is what a connector sends to one backend for one decision
// attempt. Tools is empty when tool calling is disabled for the call.
type ChatRequest struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	JSONMode    bool
	Tools       []ToolSchema
}

// ToolSchema describes one callable tool in the provider-neutral shape.
// Adapters translate it to the provider's function/tool wire format.
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ChatResultKind discriminates the shapes a backend response can take.
// The connector produces exactly one of these at its boundary; everything
// downstream switches on the kind instead of duck-typing the payload.
type ChatResultKind int

const (
	// ResultPlainText is free text with no structured payload.
	ResultPlainText ChatResultKind = iota
	// ResultToolCall carries a structured tool/function invocation.
	ResultToolCall
	// ResultReasoningField carries text plus a discrete reasoning
	// attribute the backend exposed outside the visible text.
	ResultReasoningField
)

func (k ChatResultKind) String() string {
	switch k {
	case ResultPlainText:
		return "plain_text"
	case ResultToolCall:
		return "tool_call"
	case ResultReasoningField:
		return "reasoning_field"
	default:
		return "unknown"
	}
}

// ChatResult is the canonical form of one raw backend response.
type ChatResult struct {
	Kind ChatResultKind

	// Text is the visible completion text. Set for every kind.
	Text string

	// Reasoning is the discrete reasoning attribute, set only when
	// Kind == ResultReasoningField.
	Reasoning string

	// ToolName and ToolArgs are set only when Kind == ResultToolCall.
	ToolName string
	ToolArgs map[string]any

	Model    string
	Provider string
	Usage    Usage
	Duration time.Duration
}
