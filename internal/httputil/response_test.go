package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSONError(w, "Report not found", http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Report not found", body["error"])
}

func TestRequireGet(t *testing.T) {
	tests := []struct {
		method string
		ok     bool
	}{
		{method: http.MethodGet, ok: true},
		{method: http.MethodHead, ok: true},
		{method: http.MethodPost, ok: false},
		{method: http.MethodDelete, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			w := httptest.NewRecorder()
			ok := RequireGet(w, httptest.NewRequest(tt.method, "/api/reports", nil))

			assert.Equal(t, tt.ok, ok)
			if !tt.ok {
				assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
				assert.Equal(t, "GET, HEAD", w.Header().Get("Allow"))
			}
		})
	}
}
