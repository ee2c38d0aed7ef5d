package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/config"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/connector"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/probe"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/queue"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/resolve"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/router"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/vocab"
)

func backendResponse(content string) string {
	body, _ := json.Marshal(map[string]any{
		"model": "m-test",
		"choices": []map[string]any{{
			"message": map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 40, "completion_tokens": 10, "total_tokens": 50},
	})
	return string(body)
}

func newTestHandler(t *testing.T, backend http.HandlerFunc) (*Handler, chi.Router) {
	t.Helper()
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	providers := &config.ProvidersConfig{
		Providers: map[string]config.ProviderConfig{
			"test": {Type: "openai", BaseURL: srv.URL, MaxConcurrent: 2, Timeout: 5 * time.Second},
		},
	}
	models := &config.ModelsConfig{
		Default: "villager",
		Models: map[string]config.ModelMapping{
			"villager": {Primary: config.ProviderRoute{Provider: "test", Model: "m-test"}},
		},
	}

	v, err := vocab.New([]vocab.ActionDefinition{
		{CanonicalName: "gather", Description: "Collect resources.", Category: "work"},
		{CanonicalName: "rest", Description: "Recover energy.", Category: "self"},
	}, nil)
	if err != nil {
		t.Fatalf("vocab.New() error = %v", err)
	}

	cache := probe.NewCache(nil)
	cache.Put(context.Background(), probe.DiscoveredCapabilities{
		ModelName:      "m-test",
		ThinkingFormat: probe.ThinkingNone,
	})

	pipeline := config.PipelineConfig{
		CallTimeout:      5 * time.Second,
		MaxAttempts:      2,
		RetryBackoffBase: time.Millisecond,
		MaxTokens:        200,
	}

	health := router.NewHealthTracker(3, time.Minute)
	registry := connector.BuildFromConfig(providers, cache, v, pipeline, nil)

	decisions, err := queue.New(queue.Options{
		Registry:  registry,
		Providers: providers,
		Models:    models,
		Routes:    router.NewResolver(models, health),
		Resolver:  resolve.New(v),
		Vocab:     v,
	})
	if err != nil {
		t.Fatalf("queue.New() error = %v", err)
	}
	t.Cleanup(decisions.Close)

	h := NewHandler(decisions, func() *vocab.Vocabulary { return v }, health, []string{"test"})

	r := chi.NewRouter()
	r.Post("/v1/decisions", h.SubmitDecision)
	r.Post("/v1/decisions/async", h.SubmitDecisionAsync)
	r.Get("/v1/decisions/{agentID}", h.PollDecision)
	r.Get("/v1/actions", h.ListActions)
	r.Get("/village/v1/health", h.Health)
	return h, r
}

func TestSubmitDecision(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, backendResponse(`{"thinking":"hungry","speaking":"Time to eat.","action":"rest"}`))
	})

	body := `{"agent_id":"bob","prompt_text":"Evening falls."}`
	req := httptest.NewRequest(http.MethodPost, "/v1/decisions", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp struct {
		RequestID string `json:"request_id"`
		AgentID   string `json:"agent_id"`
		Decision  struct {
			Thinking string `json:"thinking"`
			Action   struct {
				Type string `json:"type"`
			} `json:"action"`
		} `json:"decision"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.AgentID != "bob" || resp.Decision.Action.Type != "rest" {
		t.Errorf("response = %+v, want bob resting", resp)
	}
	if resp.RequestID == "" {
		t.Error("expected a request id")
	}
}

func TestSubmitDecision_BadRequests(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, backendResponse(`{"action":"rest"}`))
	})

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{`},
		{"missing agent", `{"prompt_text":"p"}`},
		{"missing prompt", `{"agent_id":"bob"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/decisions", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestSubmitDecision_UnparseableIs422(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, backendResponse("Lovely weather we are having."))
	})

	body := `{"agent_id":"bob","prompt_text":"Morning."}`
	req := httptest.NewRequest(http.MethodPost, "/v1/decisions", strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422; body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Error struct {
			ValidActions []string `json:"valid_actions"`
		} `json:"error"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Error.ValidActions) != 2 {
		t.Errorf("valid_actions = %v, want both canonical actions", resp.Error.ValidActions)
	}
}

func TestSubmitDecisionAsync(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, backendResponse(`{"action":"gather"}`))
	})

	submit := httptest.NewRequest(http.MethodPost, "/v1/decisions/async",
		strings.NewReader(`{"agent_id":"mara","prompt_text":"Dawn breaks."}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, submit)

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		RequestID string `json:"request_id"`
		Provider  string `json:"provider"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.RequestID == "" || resp.Provider != "test" {
		t.Errorf("response = %+v, want request id and test provider", resp)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/decisions/mara", nil))
		if w.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("async decision never became pollable, last status %d", w.Code)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPollDecision(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, backendResponse(`{"action":"gather","speaking":"To work."}`))
	})

	// Nothing ready yet.
	req := httptest.NewRequest(http.MethodGet, "/v1/decisions/bob", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204 before any submission", w.Code)
	}

	// Only async submissions land in the poll buffer.
	submit := httptest.NewRequest(http.MethodPost, "/v1/decisions/async",
		strings.NewReader(`{"agent_id":"bob","prompt_text":"Morning."}`))
	sw := httptest.NewRecorder()
	r.ServeHTTP(sw, submit)
	if sw.Code != http.StatusAccepted {
		t.Fatalf("submit status = %d", sw.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/decisions/bob", nil))
		if w.Code == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("poll never returned the decision, last status %d", w.Code)
		}
		time.Sleep(5 * time.Millisecond)
	}

	var resp struct {
		Decision struct {
			Action struct {
				Type string `json:"type"`
			} `json:"action"`
		} `json:"decision"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Decision.Action.Type != "gather" {
		t.Errorf("polled action = %q, want gather", resp.Decision.Action.Type)
	}

	// Consumed on read.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/decisions/bob", nil))
	if w.Code != http.StatusNoContent {
		t.Errorf("second poll status = %d, want 204", w.Code)
	}
}

func TestListActions(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, backendResponse(`{"action":"rest"}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/v1/actions", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Actions []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"actions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Actions) != 2 {
		t.Fatalf("actions = %v, want 2", resp.Actions)
	}
	if resp.Actions[0].Name != "gather" || resp.Actions[0].Description == "" {
		t.Errorf("first action = %+v, want gather with its description", resp.Actions[0])
	}
}

func TestHealth(t *testing.T) {
	_, r := newTestHandler(t, func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, backendResponse(`{"action":"rest"}`))
	})

	req := httptest.NewRequest(http.MethodGet, "/village/v1/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Status string `json:"status"`
		Queues map[string]struct {
			State   string `json:"state"`
			Breaker string `json:"breaker"`
		} `json:"queues"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q", resp.Status)
	}
	if q, ok := resp.Queues["test"]; !ok || q.Breaker != "closed" {
		t.Errorf("queues = %+v, want a closed test queue", resp.Queues)
	}
}
