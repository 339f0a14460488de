package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Envelope is the body shape of every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

// ErrorBody carries a machine-readable code next to a human message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes data as JSON with the given status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// WriteSuccess wraps data in a successful envelope.
func WriteSuccess(w http.ResponseWriter, status int, data interface{}) {
	WriteJSON(w, status, Envelope{Success: true, Data: data})
}

// WriteSuccessWithMeta is WriteSuccess plus a meta block (pagination etc).
func WriteSuccessWithMeta(w http.ResponseWriter, status int, data, meta interface{}) {
	WriteJSON(w, status, Envelope{Success: true, Data: data, Meta: meta})
}

// WriteError writes a failed envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message},
	})
}
