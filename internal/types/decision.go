package types

import "time"

// DecisionRequest is the canonical representation of one agent's ask for a
// decision. It is immutable once created; ownership moves from the
// DecisionQueue to one ProviderQueue until the request completes.
type DecisionRequest struct {
	AgentID    string    `json:"agent_id"`
	SessionID  string    `json:"session_id,omitempty"`
	PromptText string    `json:"prompt_text"`
	CreatedAt  time.Time `json:"created_at"`
}

// ParsedDecision is the validated outcome handed back to the caller:
// the agent's internal reasoning, what it says out loud, and exactly one
// canonical action.
type ParsedDecision struct {
	Thinking string     `json:"thinking"`
	Speaking string     `json:"speaking"`
	Action   ActionCall `json:"action"`
}

// ActionCall is a canonical action name plus any structured arguments the
// backend supplied with it.
type ActionCall struct {
	Type string         `json:"type"`
	Args map[string]any `json:"args,omitempty"`
}

// Message is one turn of a chat exchange in the canonical (OpenAI-style)
// shape. Provider adapters convert to and from this.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage is the token accounting a backend reports for one call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
