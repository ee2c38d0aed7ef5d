// Package gateway is the HTTP face of the decision pipeline: agents
// submit prompts, await or poll decisions, and inspect the action
// vocabulary.
package gateway

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lizTheDeveloper/ai-village-sub001/internal/httputil"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/queue"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/resolve"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/router"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/types"
	"github.com/lizTheDeveloper/ai-village-sub001/internal/vocab"
)

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	decisions *queue.DecisionQueue
	vocab     func() *vocab.Vocabulary
	health    *router.HealthTracker
	providers []string
}

func NewHandler(decisions *queue.DecisionQueue, vocabFn func() *vocab.Vocabulary, health *router.HealthTracker, providers []string) *Handler {
	return &Handler{
		decisions: decisions,
		vocab:     vocabFn,
		health:    health,
		providers: providers,
	}
}

type decisionRequestBody struct {
	AgentID    string `json:"agent_id"`
	SessionID  string `json:"session_id,omitempty"`
	PromptText string `json:"prompt_text"`
}

func (b decisionRequestBody) request() types.DecisionRequest {
	return types.DecisionRequest{
		AgentID:    b.AgentID,
		SessionID:  b.SessionID,
		PromptText: b.PromptText,
	}
}

type decisionResponse struct {
	RequestID string               `json:"request_id"`
	AgentID   string               `json:"agent_id"`
	Decision  types.ParsedDecision `json:"decision"`
}

// SubmitDecision handles POST /v1/decisions: submit and await.
func (h *Handler) SubmitDecision(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")
	receivedAt := time.Now()

	var body decisionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if body.AgentID == "" {
		httputil.WriteBadRequestError(w, reqID, "agent_id is required")
		return
	}
	if body.PromptText == "" {
		httputil.WriteBadRequestError(w, reqID, "prompt_text is required")
		return
	}

	qr, err := h.decisions.SubmitRequest(r.Context(), body.request())
	if err != nil {
		h.writeSubmitError(w, reqID, err)
		return
	}

	decision, err := qr.Wait(r.Context())
	if err != nil {
		h.writeDecisionError(w, reqID, err)
		return
	}

	slog.Info("decision completed",
		"request_id", qr.ID,
		"agent_id", body.AgentID,
		"provider", qr.Provider,
		"model", qr.Model,
		"action", decision.Action.Type,
		"retry_count", qr.RetryCount,
		"duration_ms", time.Since(receivedAt).Milliseconds(),
	)

	httputil.WriteJSON(w, decisionResponse{
		RequestID: qr.ID,
		AgentID:   body.AgentID,
		Decision:  decision,
	})
}

type submitAsyncResponse struct {
	RequestID string `json:"request_id"`
	AgentID   string `json:"agent_id"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

// SubmitDecisionAsync handles POST /v1/decisions/async: enqueue and
// return immediately. The decision surfaces later via PollDecision.
func (h *Handler) SubmitDecisionAsync(w http.ResponseWriter, r *http.Request) {
	reqID := w.Header().Get("X-Request-ID")

	var body decisionRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httputil.WriteBadRequestError(w, reqID, "Invalid JSON: "+err.Error())
		return
	}
	if body.AgentID == "" {
		httputil.WriteBadRequestError(w, reqID, "agent_id is required")
		return
	}
	if body.PromptText == "" {
		httputil.WriteBadRequestError(w, reqID, "prompt_text is required")
		return
	}

	qr, err := h.decisions.SubmitAsync(r.Context(), body.request())
	if err != nil {
		h.writeSubmitError(w, reqID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(submitAsyncResponse{
		RequestID: qr.ID,
		AgentID:   body.AgentID,
		Provider:  qr.Provider,
		Model:     qr.Model,
	})
}

// PollDecision handles GET /v1/decisions/{agentID}: non-blocking poll
// for fixed-tick callers. 204 means nothing is ready yet.
func (h *Handler) PollDecision(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")
	if agentID == "" {
		httputil.WriteBadRequestError(w, w.Header().Get("X-Request-ID"), "agent id is required")
		return
	}

	decision, ok := h.decisions.Poll(agentID)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, decisionResponse{
		AgentID:  agentID,
		Decision: decision,
	})
}

type actionObject struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Category    string               `json:"category,omitempty"`
	Required    *vocab.RequiredSkill `json:"required_skill,omitempty"`
}

// ListActions handles GET /v1/actions.
func (h *Handler) ListActions(w http.ResponseWriter, r *http.Request) {
	defs := h.vocab().Actions()
	actions := make([]actionObject, 0, len(defs))
	for _, def := range defs {
		actions = append(actions, actionObject{
			Name:        def.CanonicalName,
			Description: def.Description,
			Category:    def.Category,
			Required:    def.RequiredSkill,
		})
	}
	httputil.WriteJSON(w, map[string]any{"actions": actions})
}

type queueStatus struct {
	State    string `json:"state"`
	Depth    int    `json:"depth"`
	InFlight int    `json:"in_flight"`
	Breaker  string `json:"breaker"`
}

// Health handles GET /village/v1/health with per-provider queue and
// breaker status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	queues := make(map[string]queueStatus, len(h.providers))
	breakers := h.health.States()
	for _, name := range h.providers {
		status := queueStatus{Breaker: "closed"}
		if b, ok := breakers[name]; ok {
			status.Breaker = b
		}
		if pq, ok := h.decisions.Queue(name); ok {
			status.State = pq.State().String()
			status.Depth = pq.Depth()
			status.InFlight = pq.InFlight()
		}
		queues[name] = status
	}
	httputil.WriteJSON(w, map[string]any{
		"status": "healthy",
		"queues": queues,
	})
}

func (h *Handler) writeSubmitError(w http.ResponseWriter, reqID string, err error) {
	switch {
	case errors.Is(err, queue.ErrBudgetExhausted):
		httputil.WriteBudgetExceededError(w, reqID, err.Error())
	default:
		httputil.WriteServiceUnavailableError(w, reqID, err.Error())
	}
}

func (h *Handler) writeDecisionError(w http.ResponseWriter, reqID string, err error) {
	var parseErr *resolve.DecisionParseError
	var policyErr *queue.PolicyDeniedError
	switch {
	case errors.As(err, &parseErr):
		httputil.WriteParseError(w, reqID, parseErr.Error(), parseErr.ValidActions)
	case errors.As(err, &policyErr):
		httputil.WritePolicyDeniedError(w, reqID, policyErr.Error())
	case errors.Is(err, queue.ErrQueueClosed):
		httputil.WriteServiceUnavailableError(w, reqID, "shutting down")
	default:
		httputil.WriteInternalError(w, reqID, err.Error())
	}
}
