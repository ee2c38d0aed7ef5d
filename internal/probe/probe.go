package probe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/jsonutil"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/types"
)

// thinkingTagCandidates is the fixed list of tag names tried by the
// thinking-format probe, in order. The first tag the model echoes wins
// and is reused in outgoing prompts so the model's own convention sticks.
var thinkingTagCandidates = []string{"think", "thinking", "thoughts", "reasoning", "internal"}

const toolProbeAttempts = 3

// RawCaller issues one raw chat call against a specific model, with no
// decision semantics attached. Connectors implement this.
type RawCaller interface {
	RawChat(ctx context.Context, model string, req types.ChatRequest) (types.ChatResult, error)
}

// MetricsRecorder receives one event per probe call, so discovery runs
// show up in the probe counter. A nil recorder drops them.
type MetricsRecorder interface {
	RecordProbe(model, probe string, success bool)
}

// Prober runs the discovery battery lazily, once per unseen model name.
type Prober struct {
	caller       RawCaller
	cache        *Cache
	probeTimeout time.Duration
	metrics      MetricsRecorder

	mu       sync.Mutex
	inflight map[string]chan struct{}
}

// New creates a prober. probeTimeout bounds each individual probe call;
// zero means 15 seconds.
func New(caller RawCaller, cache *Cache, probeTimeout time.Duration, metrics MetricsRecorder) *Prober {
	if probeTimeout == 0 {
		probeTimeout = 15 * time.Second
	}
	return &Prober{
		caller:       caller,
		cache:        cache,
		probeTimeout: probeTimeout,
		metrics:      metrics,
		inflight:     make(map[string]chan struct{}),
	}
}

// GetOrDiscover returns the capabilities for a model name, running the
// probe battery only if no cached record exists. Concurrent callers for
// the same unseen model share one discovery run.
func (p *Prober) GetOrDiscover(ctx context.Context, model string) (DiscoveredCapabilities, error) {
	if caps, ok := p.cache.Get(ctx, model); ok {
		return caps, nil
	}

	for {
		p.mu.Lock()
		if done, running := p.inflight[model]; running {
			p.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return DiscoveredCapabilities{}, ctx.Err()
			}
			if caps, ok := p.cache.Get(ctx, model); ok {
				return caps, nil
			}
			continue
		}
		done := make(chan struct{})
		p.inflight[model] = done
		p.mu.Unlock()

		caps := p.discover(ctx, model)
		p.cache.Put(ctx, caps)

		p.mu.Lock()
		delete(p.inflight, model)
		p.mu.Unlock()
		close(done)
		return caps, nil
	}
}

// discover runs the full battery. Individual probe failures are negative
// results, never a fatal error for the run.
func (p *Prober) discover(ctx context.Context, model string) DiscoveredCapabilities {
	started := time.Now()
	slog.Info("probing model capabilities", "model", model)

	caps := DiscoveredCapabilities{
		ModelName:      model,
		ThinkingFormat: ThinkingNone,
		DiscoveredAt:   started,
	}

	caps.ToolCallingReliability = p.probeToolCalling(ctx, model, &caps)
	caps.SupportsToolCalling = caps.ToolCallingReliability > 0

	// The reasoning-field probe runs first: a discrete reasoning
	// attribute takes priority over tag detection and makes the tag
	// battery unnecessary.
	if p.probeReasoningField(ctx, model, &caps) {
		caps.ThinkingFormat = ThinkingReasoningField
	} else if tag, ok := p.probeThinkingTags(ctx, model, &caps); ok {
		caps.ThinkingFormat = ThinkingTagged
		caps.ThinkingTagName = tag
	}

	caps.SupportsJSONMode = p.probeJSONMode(ctx, model, &caps)

	if p.metrics != nil {
		for _, pr := range caps.ProbeResults {
			p.metrics.RecordProbe(model, pr.Probe, pr.Success)
		}
	}

	slog.Info("model capabilities discovered",
		"model", model,
		"tool_calling", caps.SupportsToolCalling,
		"tool_reliability", caps.ToolCallingReliability,
		"thinking_format", string(caps.ThinkingFormat),
		"thinking_tag", caps.ThinkingTagName,
		"json_mode", caps.SupportsJSONMode,
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return caps
}

// probeToolCalling makes several independent low-temperature calls asking
// the model to invoke a trivial tool, and returns the fraction that came
// back as recognizable tool calls. The fraction matters because some
// backends only sometimes honor tool schemas.
func (p *Prober) probeToolCalling(ctx context.Context, model string, caps *DiscoveredCapabilities) float64 {
	tool := types.ToolSchema{
		Name:        "calculator",
		Description: "Adds two numbers.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			"required": []string{"a", "b"},
		},
	}

	successes := 0
	for i := 0; i < toolProbeAttempts; i++ {
		result, err := p.call(ctx, model, types.ChatRequest{
			Model: model,
			Messages: []types.Message{{
				Role:    "user",
				Content: "What is 2+3? Use the calculator tool to find out.",
			}},
			Temperature: 0.0,
			MaxTokens:   200,
			Tools:       []types.ToolSchema{tool},
		})
		ok := err == nil && result.Kind == types.ResultToolCall
		if ok {
			successes++
		}
		caps.ProbeResults = append(caps.ProbeResults, ProbeResult{
			Probe:   fmt.Sprintf("tool_calling_%d", i+1),
			Success: ok,
			Detail:  errDetail(err),
		})
	}
	return float64(successes) / float64(toolProbeAttempts)
}

// probeReasoningField checks whether the raw response exposes reasoning
// as a discrete attribute rather than inline tags.
func (p *Prober) probeReasoningField(ctx context.Context, model string, caps *DiscoveredCapabilities) bool {
	result, err := p.call(ctx, model, types.ChatRequest{
		Model: model,
		Messages: []types.Message{{
			Role:    "user",
			Content: "In one sentence: why do birds migrate?",
		}},
		Temperature: 0.0,
		MaxTokens:   300,
	})
	ok := err == nil && result.Kind == types.ResultReasoningField && result.Reasoning != ""
	caps.ProbeResults = append(caps.ProbeResults, ProbeResult{
		Probe:   "reasoning_field",
		Success: ok,
		Detail:  errDetail(err),
	})
	return ok
}

// probeThinkingTags asks the model to wrap its reasoning in each candidate
// tag and checks whether the opening and closing tag come back. First
// echo wins.
func (p *Prober) probeThinkingTags(ctx context.Context, model string, caps *DiscoveredCapabilities) (string, bool) {
	for _, tag := range thinkingTagCandidates {
		result, err := p.call(ctx, model, types.ChatRequest{
			Model: model,
			Messages: []types.Message{{
				Role: "user",
				Content: fmt.Sprintf(
					"Wrap your reasoning in <%s></%s> tags, then answer: what is 1+1?", tag, tag),
			}},
			Temperature: 0.0,
			MaxTokens:   200,
		})
		ok := err == nil &&
			strings.Contains(result.Text, "<"+tag+">") &&
			strings.Contains(result.Text, "</"+tag+">")
		caps.ProbeResults = append(caps.ProbeResults, ProbeResult{
			Probe:   "thinking_tag_" + tag,
			Success: ok,
			Detail:  errDetail(err),
		})
		if ok {
			return tag, true
		}
	}
	return "", false
}

// probeJSONMode asks for a two-key object and tries to parse it,
// tolerating surrounding prose.
func (p *Prober) probeJSONMode(ctx context.Context, model string, caps *DiscoveredCapabilities) bool {
	result, err := p.call(ctx, model, types.ChatRequest{
		Model: model,
		Messages: []types.Message{{
			Role:    "user",
			Content: `Reply with a JSON object containing exactly two keys: "name" (a string) and "mood" (a string).`,
		}},
		Temperature: 0.0,
		MaxTokens:   200,
		JSONMode:    true,
	})
	ok := false
	if err == nil {
		_, parseErr := jsonutil.ExtractObject(result.Text)
		ok = parseErr == nil
	}
	caps.ProbeResults = append(caps.ProbeResults, ProbeResult{
		Probe:   "json_mode",
		Success: ok,
		Detail:  errDetail(err),
	})
	return ok
}

func (p *Prober) call(ctx context.Context, model string, req types.ChatRequest) (types.ChatResult, error) {
	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	defer cancel()
	return p.caller.RawChat(probeCtx, model, req)
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
