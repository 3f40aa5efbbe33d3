package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kost/backend/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
)

func TestProfiling_LabelsRequestContext(t *testing.T) {
	var labels map[string]string
	router := gin.New()
	router.Use(Profiling(DefaultProfilingConfig()))
	handler := func(c *gin.Context) {
		labels = map[string]string{}
		pprof.ForLabels(c.Request.Context(), func(k, v string) bool {
			labels[k] = v
			return true
		})
		c.Status(http.StatusOK)
	}
	router.GET("/api/v1/invoices/:id", handler)
	router.GET("/health", handler)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/invoices/7", nil))

	assert.Equal(t, "/api/v1/invoices/:id", labels[telemetry.ProfilingLabelRoute])
	assert.Equal(t, http.MethodGet, labels[telemetry.ProfilingLabelMethod])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Empty(t, labels)
}

func TestProfiling_Disabled(t *testing.T) {
	called := false
	router := gin.New()
	router.Use(Profiling(ProfilingConfig{Enabled: false}))
	router.GET("/x", func(c *gin.Context) {
		called = true
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.True(t, called)
}

func TestSkipProfiling(t *testing.T) {
	cfg := ProfilingConfig{SkipPaths: []string{"/health"}, SkipPathPrefixes: []string{"/debug/"}}

	assert.True(t, skipProfiling(cfg, "/health"))
	assert.True(t, skipProfiling(cfg, "/debug/pprof"))
	assert.False(t, skipProfiling(cfg, "/api/v1/invoices"))
}
