package web

// errors.go writes every API error the same way: the technical error is
// logged with the request id, and the client gets the mapped message.

import (
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/catalogimport/internal/logging"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes the mapped user message with status.
// Validation failures also carry the specific reason in Error.
func respondError(w http.ResponseWriter, r *http.Request, err error, status int) {
	msg := MapError(err)

	logger := logging.FromContext(r.Context())
	attrs := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", attrs...)
	} else {
		logger.Warn("request rejected", attrs...)
	}

	resp := ErrorResponse{
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	}
	if msg.Code == msgInvalidRecord.Code {
		resp.Error = err.Error()
	}
	writeJSON(w, r, status, resp)
}

// writeJSON encodes v as the response body. Encoding errors can only be
// logged; the status line is already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.FromContext(r.Context()).Error("json encode error", "error", err)
	}
}
