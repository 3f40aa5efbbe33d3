package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kost/backend/internal/infrastructure/logger"
	"go.uber.org/zap"
)

// Pinger is satisfied by persistence.Database
type Pinger interface {
	Ping() error
}

// HealthHandler serves the liveness probe
type HealthHandler struct {
	db  Pinger
	now func() time.Time
}

// NewHealthHandler creates a HealthHandler
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, now: time.Now}
}

// Check answers 200 when the database responds and 503 otherwise
func (h *HealthHandler) Check(c *gin.Context) {
	ts := h.now().Format(time.RFC3339)
	if err := h.db.Ping(); err != nil {
		logger.GetGinLogger(c).Warn("Health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"time":     ts,
			"database": "error",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"time":     ts,
		"database": "ok",
	})
}
