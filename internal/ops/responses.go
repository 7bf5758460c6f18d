// Package ops serves the operational HTTP endpoints of a sync process:
// liveness, readiness, run status, and Prometheus metrics.
package ops

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code        string `json:"code"`
	Description string `json:"description"`
	RequestID   string `json:"request_id,omitempty"`
}

// Error codes.
const (
	ErrCodeNotFound         = "NotFound"
	ErrCodeMethodNotAllowed = "MethodNotAllowed"
	ErrCodeServerError      = "ServerError"
)

// WriteJSON writes v as JSON with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response",
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{Code: code, Description: message}) //nolint:errcheck // logged by WriteJSON
}

// WriteNotFound writes a 404 Not Found error response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteInternalErrorWithRequestID writes a 500 that carries the request id so
// the reply can be matched to the server log.
func WriteInternalErrorWithRequestID(w http.ResponseWriter, message, requestID string) {
	WriteJSON(w, http.StatusInternalServerError, ErrorResponse{ //nolint:errcheck // logged by WriteJSON
		Code:        ErrCodeServerError,
		Description: message,
		RequestID:   requestID,
	})
}
