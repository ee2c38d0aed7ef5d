// Package probe discovers the response dialect of a backend model by
// running a small battery of cheap test calls, and caches the result so
// discovery happens at most once per model name.
package probe

import "time"

// ThinkingFormat is how a model exposes its reasoning.
type ThinkingFormat string

const (
	// ThinkingTagged means reasoning arrives inline, wrapped in a tag
	// the model will echo when asked (e.g. <think>...</think>).
	ThinkingTagged ThinkingFormat = "tagged"
	// ThinkingReasoningField means the response carries a discrete
	// reasoning attribute outside the visible text.
	ThinkingReasoningField ThinkingFormat = "reasoning_field"
	// ThinkingNone means no reasoning channel was detected.
	ThinkingNone ThinkingFormat = "none"
)

// ProbeResult records the outcome of one probe call for diagnostics.
type ProbeResult struct {
	Probe   string `json:"probe"`
	Success bool   `json:"success"`
	Detail  string `json:"detail,omitempty"`
}

// DiscoveredCapabilities is the cached dialect record for one model name.
// It is never patched after creation; re-discovery replaces the whole
// record.
type DiscoveredCapabilities struct {
	ModelName              string         `json:"model_name"`
	SupportsToolCalling    bool           `json:"supports_tool_calling"`
	ToolCallingReliability float64        `json:"tool_calling_reliability"`
	ThinkingFormat         ThinkingFormat `json:"thinking_format"`
	ThinkingTagName        string         `json:"thinking_tag_name,omitempty"`
	SupportsJSONMode       bool           `json:"supports_json_mode"`
	DiscoveredAt           time.Time      `json:"discovered_at"`
	ProbeResults           []ProbeResult  `json:"probe_results,omitempty"`
}
