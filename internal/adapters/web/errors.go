package web

import (
	"encoding/json"
	"net/http"

	"salesledger/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeDomainError maps a core error kind onto an HTTP status. Unknown errors
// are reported as 500 without leaking internals.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := core.KindOf(err)
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	message := "internal server error"
	switch kind {
	case core.KindInvalidArgument:
		status, code, message = http.StatusBadRequest, "INVALID_ARGUMENT", err.Error()
	case core.KindNotFound:
		status, code, message = http.StatusNotFound, "NOT_FOUND", err.Error()
	case core.KindAlreadyExists:
		status, code, message = http.StatusConflict, "ALREADY_EXISTS", err.Error()
	case core.KindConflict:
		status, code, message = http.StatusConflict, "CONFLICT", err.Error()
	case core.KindInvalidState:
		status, code, message = http.StatusUnprocessableEntity, "INVALID_STATE", err.Error()
	case core.KindCreditBlocked:
		status, code, message = http.StatusForbidden, "CREDIT_BLOCKED", err.Error()
	}
	writeError(w, r, message, code, status)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONStatus writes a JSON response with an explicit status code.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
