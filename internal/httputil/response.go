// Package httputil contains shared HTTP utilities for consistent response formatting across handlers.
package httputil

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/nadmax/reportd/internal/logger/tag"
)

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", tag.Error(err))
	}
}

func WriteJSONError(w http.ResponseWriter, message string, status int) {
	WriteJSON(w, status, map[string]string{
		"error": message,
	})
}

// RequireGet writes 405 and returns false for anything but GET and HEAD.
func RequireGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD")
	WriteJSONError(w, "Method not allowed", http.StatusMethodNotAllowed)
	return false
}
