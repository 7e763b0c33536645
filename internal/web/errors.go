package web

// errors.go provides unified error responses for the preview API.
//
// Every error is logged with its technical detail and the request ID, then
// returned to the client as a JSON body carrying the mapped user message and
// its support code.

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/JonMunkholm/docstream/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form with statusCode.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	if statusCode == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   err.Error(),
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusFor picks the HTTP status for an error from its support code.
func statusFor(err error) int {
	switch code := MapError(err).Code; {
	case code == "FILE001":
		return http.StatusRequestEntityTooLarge
	case code == "FILE005", code == "FILE006":
		return http.StatusBadRequest
	case strings.HasPrefix(code, "FILE"):
		return http.StatusUnprocessableEntity
	case strings.HasPrefix(code, "API"):
		return http.StatusBadGateway
	case code == "PRV001":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
