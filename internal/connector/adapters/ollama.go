package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/config"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/types"
)

// OllamaAdapter talks to a local Ollama daemon via /api/generate.
// Ollama has no tool-calling surface; tool schemas in the request are
// ignored and callers fall back to text extraction.
type OllamaAdapter struct {
	cfg    config.ProviderConfig
	client *http.Client
}

func NewOllamaAdapter(cfg config.ProviderConfig, client *http.Client) *OllamaAdapter {
	return &OllamaAdapter{cfg: cfg, client: client}
}

func (a *OllamaAdapter) Name() string { return "ollama" }

func (a *OllamaAdapter) BuildRequest(ctx context.Context, req types.ChatRequest) (*http.Request, error) {
	// /api/generate takes a single prompt plus an optional system string,
	// so the message list is flattened.
	var system string
	var prompt strings.Builder
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = m.Content
			continue
		}
		if prompt.Len() > 0 {
			prompt.WriteString("\n\n")
		}
		prompt.WriteString(m.Content)
	}

	body := ollamaRequestBody{
		Model:  req.Model,
		Prompt: prompt.String(),
		System: system,
		Stream: false,
	}
	if req.JSONMode {
		body.Format = "json"
	}
	if req.Temperature != 0 {
		body.Options.Temperature = req.Temperature
	}
	if req.MaxTokens != 0 {
		body.Options.NumPredict = req.MaxTokens
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal ollama request: %w", err)
	}

	url := a.cfg.BaseURL + "/api/generate"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range a.cfg.Headers {
		if v != "" {
			httpReq.Header.Set(k, v)
		}
	}
	return httpReq, nil
}

func (a *OllamaAdapter) ParseResponse(body []byte) (types.ChatResult, error) {
	var olResp ollamaResponseBody
	if err := json.Unmarshal(body, &olResp); err != nil {
		return types.ChatResult{}, fmt.Errorf("unmarshal ollama response: %w", err)
	}

	result := types.ChatResult{
		Kind:     types.ResultPlainText,
		Text:     olResp.Response,
		Model:    olResp.Model,
		Provider: a.Name(),
		Usage: types.Usage{
			PromptTokens:     olResp.PromptEvalCount,
			CompletionTokens: olResp.EvalCount,
			TotalTokens:      olResp.PromptEvalCount + olResp.EvalCount,
		},
	}
	if olResp.Thinking != "" {
		result.Kind = types.ResultReasoningField
		result.Reasoning = olResp.Thinking
	}
	return result, nil
}

func (a *OllamaAdapter) Do(req *http.Request) (*http.Response, error) {
	return a.client.Do(req)
}

type ollamaRequestBody struct {
	Model   string `json:"model"`
	Prompt  string `json:"prompt"`
	System  string `json:"system,omitempty"`
	Stream  bool   `json:"stream"`
	Format  string `json:"format,omitempty"`
	Options struct {
		Temperature float64 `json:"temperature,omitempty"`
		NumPredict  int     `json:"num_predict,omitempty"`
	} `json:"options"`
}

type ollamaResponseBody struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Thinking        string `json:"thinking,omitempty"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}
