package httputil

import (
	"encoding/json"
	"net/http"
)

// APIError is the JSON error envelope every endpoint returns.
type APIError struct {
	Error APIErrorBody `json:"error"`
}

type APIErrorBody struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`

	// ValidActions is set on decision parse failures so callers can see
	// the whole vocabulary the backend failed to pick from.
	ValidActions []string `json:"valid_actions,omitempty"`
}

// WriteJSON writes a 200 JSON body.
func WriteJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, requestID string, statusCode int, errType, code, message string) {
	writeErrorBody(w, statusCode, APIErrorBody{
		Message:   message,
		Type:      errType,
		Code:      code,
		RequestID: requestID,
	})
}

func writeErrorBody(w http.ResponseWriter, statusCode int, body APIErrorBody) {
	w.Header().Set("Content-Type", "application/json")
	if body.RequestID != "" {
		w.Header().Set("X-Request-ID", body.RequestID)
	}
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIError{Error: body})
}

func WriteBadRequestError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusBadRequest, "invalid_request_error", "invalid_request", message)
}

func WriteInternalError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusInternalServerError, "server_error", "internal_error", message)
}

func WriteServiceUnavailableError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusServiceUnavailable, "server_error", "service_unavailable", message)
}

func WriteBudgetExceededError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusPaymentRequired, "budget_error", "budget_exceeded", message)
}

func WritePolicyDeniedError(w http.ResponseWriter, requestID, message string) {
	WriteError(w, requestID, http.StatusForbidden, "policy_error", "action_denied", message)
}

// WriteParseError reports an unparseable decision along with the full
// valid-action list.
func WriteParseError(w http.ResponseWriter, requestID, message string, validActions []string) {
	writeErrorBody(w, http.StatusUnprocessableEntity, APIErrorBody{
		Message:      message,
		Type:         "decision_error",
		Code:         "unparseable_decision",
		RequestID:    requestID,
		ValidActions: validActions,
	})
}
