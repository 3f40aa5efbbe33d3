package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	appbilling "github.com/kost/backend/internal/application/billing"
	"github.com/kost/backend/internal/domain/billing"
	"github.com/kost/backend/internal/infrastructure/logger"
	"github.com/kost/backend/internal/infrastructure/scheduler"
	"github.com/kost/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BillingRunner is the part of the orchestrator the admin API drives
type BillingRunner interface {
	RunPass(ctx context.Context, opts appbilling.PassOptions) (*appbilling.PassResult, error)
	LastResult() *appbilling.PassResult
	RecentRuns(ctx context.Context, limit int) ([]billing.Run, error)
}

// BillingHandler exposes the billing engine to operators
type BillingHandler struct {
	BaseHandler
	runner  BillingRunner
	trigger scheduler.Trigger
}

// NewBillingHandler creates a BillingHandler. trigger is nil when the
// scheduled engine is disabled; manual passes then go straight to the runner.
func NewBillingHandler(runner BillingRunner, trigger scheduler.Trigger) *BillingHandler {
	return &BillingHandler{runner: runner, trigger: trigger}
}

// PassSummary is the compact view of a pass used by the status endpoint
type PassSummary struct {
	RunID       uuid.UUID `json:"run_id"`
	Trigger     string    `json:"trigger"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	DurationMs  int64     `json:"duration_ms"`
	GateSkipped bool      `json:"gate_skipped"`
	Selected    int       `json:"selected"`
	Issued      int       `json:"issued"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
}

// BillingStatusResponse is returned by GET /billing/status
type BillingStatusResponse struct {
	Enabled  bool              `json:"enabled"`
	Trigger  *scheduler.Status `json:"trigger,omitempty"`
	LastPass *PassSummary      `json:"last_pass,omitempty"`
}

func summarize(r *appbilling.PassResult) *PassSummary {
	if r == nil {
		return nil
	}
	return &PassSummary{
		RunID:       r.RunID,
		Trigger:     r.Trigger,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		DurationMs:  r.Duration().Milliseconds(),
		GateSkipped: r.GateSkipped,
		Selected:    r.Selected(),
		Issued:      r.Issued,
		Skipped:     r.Skipped,
		Failed:      r.Failed,
	}
}

// GetStatus reports the trigger state and the last pass of this process
func (h *BillingHandler) GetStatus(c *gin.Context) {
	resp := BillingStatusResponse{
		Enabled:  h.trigger != nil,
		LastPass: summarize(h.runner.LastResult()),
	}
	if h.trigger != nil {
		st := h.trigger.Status()
		resp.Trigger = &st
	}
	h.Success(c, resp)
}

// TriggerRun runs a forced pass and returns its full result
func (h *BillingHandler) TriggerRun(c *gin.Context) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Info("Manual billing pass requested",
		zap.String("actor", middleware.GetActor(c).String()))

	var (
		result *appbilling.PassResult
		err    error
	)
	if h.trigger != nil {
		result, err = h.trigger.TriggerNow(ctx)
	} else {
		result, err = h.runner.RunPass(ctx, appbilling.PassOptions{Force: true, Trigger: billing.TriggerManual})
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

type listRunsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// ListRuns returns persisted pass history, newest first
func (h *BillingHandler) ListRuns(c *gin.Context) {
	var q listRunsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	runs, err := h.runner.RecentRuns(c.Request.Context(), q.Limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if runs == nil {
		runs = []billing.Run{}
	}
	h.Success(c, runs)
}
