package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingFunc func() error

func (f pingFunc) Ping() error { return f() }

func TestHealthHandler_Check(t *testing.T) {
	tests := []struct {
		name     string
		ping     error
		status   int
		database string
	}{
		{"database up", nil, http.StatusOK, "ok"},
		{"database down", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, "error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(pingFunc(func() error { return tt.ping }))
			router := gin.New()
			router.GET("/health", h.Check)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			assert.Equal(t, tt.status, w.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.database, body["database"])
		})
	}
}
