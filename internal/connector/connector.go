package connector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/config"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/connector/adapters"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/jsonutil"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/probe"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/resolve"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/telemetry"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/types"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/vocab"
)

// maxErrorBodyBytes caps how much of a failed response body is kept for
// error messages and rate-limit detection.
const maxErrorBodyBytes = 8 << 10

// Connector turns decision requests into backend chat calls and raw
// decisions. One connector owns one provider; request pacing is the
// owning queue's job, so Decide never retries a rate-limit response.
type Connector struct {
	name      string
	adapter   adapters.ProviderAdapter
	prober    *probe.Prober
	vocab     *vocab.Vocabulary
	detectors []RateLimitDetector
	pipeline  config.PipelineConfig
	metrics   *telemetry.Metrics
	now       func() time.Time
}

// New wires a connector around an adapter. The prober is created here so
// capability discovery goes through this connector's own raw-call path.
// A nil metrics drops retry and probe counts.
func New(name string, adapter adapters.ProviderAdapter, cache *probe.Cache, v *vocab.Vocabulary, detectors []RateLimitDetector, pipeline config.PipelineConfig, metrics *telemetry.Metrics) *Connector {
	if len(detectors) == 0 {
		detectors = DefaultDetectors()
	}
	c := &Connector{
		name:      name,
		adapter:   adapter,
		vocab:     v,
		detectors: detectors,
		pipeline:  pipeline,
		metrics:   metrics,
		now:       time.Now,
	}
	var recorder probe.MetricsRecorder
	if metrics != nil {
		recorder = metrics
	}
	c.prober = probe.New(c, cache, pipeline.ProbeTimeout, recorder)
	return c
}

func (c *Connector) Name() string { return c.name }

// Capabilities exposes the discovery result for a model without issuing
// a decision call.
func (c *Connector) Capabilities(ctx context.Context, model string) (probe.DiscoveredCapabilities, error) {
	return c.prober.GetOrDiscover(ctx, model)
}

// Decide performs one decision exchange: discover the model's
// capabilities, shape the request to match them, call the backend, and
// pull the raw decision parts out of the response. Rate-limit errors
// come back untouched so the caller can reschedule.
func (c *Connector) Decide(ctx context.Context, req types.DecisionRequest, model string) (resolve.RawDecision, types.ChatResult, error) {
	caps, err := c.prober.GetOrDiscover(ctx, model)
	if err != nil {
		return resolve.RawDecision{}, types.ChatResult{}, fmt.Errorf("discover capabilities for %s: %w", model, err)
	}

	chatReq := c.buildChatRequest(req, model, caps)
	result, err := c.send(ctx, chatReq)
	if err != nil {
		return resolve.RawDecision{}, types.ChatResult{}, err
	}

	return c.extract(result, caps), result, nil
}

// RawChat issues a single call with no decision framing. Used by the
// capability prober; probe failures are its problem to classify.
func (c *Connector) RawChat(ctx context.Context, model string, req types.ChatRequest) (types.ChatResult, error) {
	req.Model = model
	return c.once(ctx, req)
}

// buildChatRequest shapes the outgoing call to what the model was
// observed to handle: tool schemas only above the reliability threshold,
// and thinking-tag instructions only when the model echoed a tag.
func (c *Connector) buildChatRequest(req types.DecisionRequest, model string, caps probe.DiscoveredCapabilities) types.ChatRequest {
	var sb strings.Builder
	sb.WriteString("You are an agent in a simulated village. Decide your next action.\n\n")
	sb.WriteString("Available actions:\n")
	sb.WriteString(c.vocab.PromptText())

	useTools := caps.SupportsToolCalling && caps.ToolCallingReliability >= c.pipeline.ToolReliabilityThreshold

	if !useTools {
		sb.WriteString("\nRespond with a JSON object containing \"thinking\", \"speaking\" and \"action\" keys. The action must be one of the names above.")
	}
	if caps.ThinkingFormat == probe.ThinkingTagged && caps.ThinkingTagName != "" {
		fmt.Fprintf(&sb, "\nPut your private reasoning inside <%s></%s> tags.",
			caps.ThinkingTagName, caps.ThinkingTagName)
	}

	chatReq := types.ChatRequest{
		Model: model,
		Messages: []types.Message{
			{Role: "system", Content: sb.String()},
			{Role: "user", Content: req.PromptText},
		},
		Temperature: c.pipeline.Temperature,
		MaxTokens:   c.pipeline.MaxTokens,
	}
	if useTools {
		chatReq.Tools = []types.ToolSchema{c.vocab.ToolSchema()}
	} else if caps.SupportsJSONMode {
		chatReq.JSONMode = true
	}
	return chatReq
}

// send runs the bounded retry loop around once. Only transport failures
// are retried here; a rate-limit response returns immediately because
// the queue owns that schedule, and a tool-format rejection gets exactly
// one tool-free fallback.
func (c *Connector) send(ctx context.Context, req types.ChatRequest) (types.ChatResult, error) {
	attempts := c.pipeline.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := c.pipeline.RetryBackoffBase
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := c.once(ctx, req)
		if err == nil {
			return result, nil
		}

		if _, ok := IsRateLimit(err); ok {
			return types.ChatResult{}, err
		}

		var formatErr *FormatRejectionError
		if errors.As(err, &formatErr) && len(req.Tools) > 0 {
			slog.Warn("backend rejected tool schema, retrying without tools",
				"provider", c.name, "model", req.Model, "status", formatErr.StatusCode)
			req.Tools = nil
			result, err = c.once(ctx, req)
			if err == nil {
				return result, nil
			}
			return types.ChatResult{}, err
		}

		var transportErr *TransportError
		if !errors.As(err, &transportErr) {
			return types.ChatResult{}, err
		}

		lastErr = err
		if attempt == attempts {
			break
		}
		if c.metrics != nil {
			c.metrics.RecordRetry(c.name, "transport")
		}
		slog.Warn("backend call failed, backing off",
			"provider", c.name, "model", req.Model, "attempt", attempt, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return types.ChatResult{}, ctx.Err()
		}
		backoff *= 2
	}
	return types.ChatResult{}, fmt.Errorf("backend unavailable after %d attempts: %w", attempts, lastErr)
}

// once performs exactly one HTTP exchange and classifies the outcome.
func (c *Connector) once(ctx context.Context, req types.ChatRequest) (types.ChatResult, error) {
	callCtx := ctx
	if c.pipeline.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.pipeline.CallTimeout)
		defer cancel()
	}

	started := c.now()
	httpReq, err := c.adapter.BuildRequest(callCtx, req)
	if err != nil {
		return types.ChatResult{}, fmt.Errorf("build request for %s: %w", c.name, err)
	}

	resp, err := c.adapter.Do(httpReq)
	if err != nil {
		return types.ChatResult{}, &TransportError{Provider: c.name, Op: "send", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return types.ChatResult{}, &TransportError{Provider: c.name, Op: "read response", Err: err}
		}
		result, err := c.adapter.ParseResponse(body)
		if err != nil {
			return types.ChatResult{}, fmt.Errorf("parse %s response: %w", c.name, err)
		}
		result.Provider = c.name
		if result.Model == "" {
			result.Model = req.Model
		}
		result.Duration = c.now().Sub(started)
		return result, nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return types.ChatResult{}, c.classifyFailure(resp, body, len(req.Tools) > 0)
}

// classifyFailure turns a non-2xx response into the error the retry loop
// and the owning queue dispatch on. Rate-limit detection runs on every
// failed status, not just 429, because some backends hide throttling
// behind 400 or 503 bodies.
func (c *Connector) classifyFailure(resp *http.Response, body []byte, sentTools bool) error {
	if detectRateLimit(c.detectors, resp.StatusCode, resp.Header, body) {
		return &RateLimitError{
			Provider:   c.name,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfterDelay(resp.Header, body, c.now()),
			Message:    string(body),
		}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return &TransportError{
			Provider: c.name,
			Op:       "send",
			Err:      fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	case sentTools && (resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity):
		return &FormatRejectionError{Provider: c.name, StatusCode: resp.StatusCode, Body: string(body)}
	default:
		return &BackendError{Provider: c.name, StatusCode: resp.StatusCode, Body: string(body)}
	}
}

// extract pulls the decision parts out of a successful response without
// judging them. Validation against the vocabulary belongs to the
// resolver; this stage only separates structure from prose.
func (c *Connector) extract(result types.ChatResult, caps probe.DiscoveredCapabilities) resolve.RawDecision {
	raw := resolve.RawDecision{RawText: result.Text}

	switch {
	case result.Kind == types.ResultReasoningField:
		raw.Thinking = result.Reasoning
	case caps.ThinkingFormat == probe.ThinkingTagged && caps.ThinkingTagName != "":
		thinking, rest := splitTagged(result.Text, caps.ThinkingTagName)
		raw.Thinking = thinking
		raw.RawText = rest
	}

	if result.Kind == types.ResultToolCall {
		raw.StructuredAction = result.ToolName
		raw.ActionArgs = map[string]any{}
		for k, v := range result.ToolArgs {
			switch k {
			case "action":
				if name, ok := v.(string); ok && name != "" {
					raw.StructuredAction = name
				}
			case "thinking":
				if s, ok := v.(string); ok && raw.Thinking == "" {
					raw.Thinking = s
				}
			case "speaking":
				if s, ok := v.(string); ok {
					raw.Speaking = s
				}
			default:
				raw.ActionArgs[k] = v
			}
		}
		return raw
	}

	// Plain text: look for an embedded JSON decision first, then a bare
	// "Action:" label line.
	if obj, err := jsonutil.ExtractObject(raw.RawText); err == nil {
		if name, ok := obj["action"].(string); ok && name != "" {
			raw.StructuredAction = name
			if s, ok := obj["thinking"].(string); ok && raw.Thinking == "" {
				raw.Thinking = s
			}
			if s, ok := obj["speaking"].(string); ok {
				raw.Speaking = s
			}
			if args, ok := obj["args"].(map[string]any); ok {
				raw.ActionArgs = args
			}
			return raw
		}
	}

	if name := actionLabelLine(raw.RawText); name != "" {
		raw.StructuredAction = name
	}
	return raw
}

// splitTagged returns the content of the first <tag>...</tag> block and
// the text with that block removed. Missing or unclosed tags leave the
// text alone.
func splitTagged(text, tag string) (thinking, rest string) {
	openTag, closeTag := "<"+tag+">", "</"+tag+">"
	start := strings.Index(text, openTag)
	if start == -1 {
		return "", text
	}
	end := strings.Index(text[start+len(openTag):], closeTag)
	if end == -1 {
		return "", text
	}
	end += start + len(openTag)
	thinking = strings.TrimSpace(text[start+len(openTag) : end])
	rest = strings.TrimSpace(text[:start] + text[end+len(closeTag):])
	return thinking, rest
}

// actionLabelLine scans for a line of the form "Action: gather wood" and
// returns the first token after the label.
func actionLabelLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if !strings.HasPrefix(lower, "action:") {
			continue
		}
		after := strings.TrimSpace(trimmed[len("action:"):])
		if after == "" {
			continue
		}
		if fields := strings.Fields(after); len(fields) > 0 {
			return strings.Trim(fields[0], `"'.,`)
		}
	}
	return ""
}
