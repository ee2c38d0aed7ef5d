package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/config"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/types"
)

// AnthropicAdapter handles the Anthropic Messages API.
type AnthropicAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewAnthropicAdapter(cfg config.ProviderConfig, client *http.Client) *AnthropicAdapter {
	return &AnthropicAdapter{cfg: cfg, client: client}
}

func (a *AnthropicAdapter) Name() string { return "anthropic" }

func (a *AnthropicAdapter) BuildRequest(ctx context.Context, req types.ChatRequest) (*http.Request, error) {
	// The Messages API takes the system prompt as a top-level field.
	var system string
	var messages []anthropicMessage
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		messages = append(messages, anthropicMessage{Role: m.Role, Content: m.Content})
	}

	// max_tokens is required by the API.
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 1024
	}

	body := anthropicRequestBody{
		Model:       req.Model,
		Messages:    messages,
		System:      system,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
	for _, tool := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: tool.Parameters,
		})
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal anthropic request: %w", err)
	}

	url := a.cfg.BaseURL + "/messages"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", a.cfg.APIKey)
	if a.cfg.APIVersion != "" {
		httpReq.Header.Set("anthropic-version", a.cfg.APIVersion)
	}
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}

	return httpReq, nil
}

func (a *AnthropicAdapter) ParseResponse(body []byte) (types.ChatResult, error) {
	var antResp anthropicResponseBody
	if err := json.Unmarshal(body, &antResp); err != nil {
		return types.ChatResult{}, fmt.Errorf("unmarshal anthropic response: %w", err)
	}

	result := types.ChatResult{
		Kind:     types.ResultPlainText,
		Model:    antResp.Model,
		Provider: a.Name(),
		Usage: types.Usage{
			PromptTokens:     antResp.Usage.InputTokens,
			CompletionTokens: antResp.Usage.OutputTokens,
			TotalTokens:      antResp.Usage.InputTokens + antResp.Usage.OutputTokens,
		},
	}

	for _, block := range antResp.Content {
		switch block.Type {
		case "text":
			if result.Text == "" {
				result.Text = block.Text
			}
		case "thinking":
			result.Reasoning = block.Thinking
		case "tool_use":
			result.Kind = types.ResultToolCall
			result.ToolName = block.Name
			result.ToolArgs = block.Input
		}
	}

	if result.Kind != types.ResultToolCall && result.Reasoning != "" {
		result.Kind = types.ResultReasoningField
	}
	return result, nil
}

func (a *AnthropicAdapter) Do(req *http.Request) (*http.Response, error) {
	return a.client.Do(req)
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequestBody struct {
	Model       string             `json:"model"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicResponseBody struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Content []struct {
		Type     string         `json:"type"`
		Text     string         `json:"text,omitempty"`
		Thinking string         `json:"thinking,omitempty"`
		Name     string         `json:"name,omitempty"`
		Input    map[string]any `json:"input,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}
