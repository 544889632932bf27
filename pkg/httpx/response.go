package httpx

import (
	"encoding/json"
	"net/http"
	"time"
)

// Error codes emitted by the middleware in this package.
const (
	CodeMissingToken = "MISSING_TOKEN"
	CodeTokenExpired = "TOKEN_EXPIRED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeForbidden    = "FORBIDDEN"
	CodeRateLimited  = "RATE_LIMITED"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Success   bool     `json:"success"`
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Details   []string `json:"details,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// WriteJSON writes v with the given status and no-cache headers.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	NoCache(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the standard error body.
func WriteError(w http.ResponseWriter, status int, code, message string, details ...string) {
	WriteJSON(w, status, ErrorBody{
		Success:   false,
		Message:   message,
		ErrorCode: code,
		Details:   details,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// NoCache sets Cache-Control and Pragma so tokens are never cached.
func NoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}
