package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidTrigger is returned when a run is started without a trigger name
var ErrInvalidTrigger = errors.New("billing: run trigger cannot be empty")

// RunStatus is the lifecycle state of a billing pass
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run triggers
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerCLI      = "cli"
)

// Run is the persisted history of one billing pass.
type Run struct {
	ID         uuid.UUID  `json:"id"`
	Trigger    string     `json:"trigger"`
	Status     RunStatus  `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Selected   int        `json:"selected"`
	Issued     int        `json:"issued"`
	Skipped    int        `json:"skipped"`
	Failed     int        `json:"failed"`
	Error      string     `json:"error,omitempty"`
}

// NewRun starts a run record
func NewRun(trigger string, startedAt time.Time) (*Run, error) {
	if trigger == "" {
		return nil, ErrInvalidTrigger
	}
	return &Run{
		ID:        uuid.New(),
		Trigger:   trigger,
		Status:    RunStatusRunning,
		StartedAt: startedAt.UTC(),
	}, nil
}

// Complete closes the run with its final counters
func (r *Run) Complete(finishedAt time.Time, selected, issued, skipped, failed int) {
	t := finishedAt.UTC()
	r.FinishedAt = &t
	r.Status = RunStatusCompleted
	r.Selected = selected
	r.Issued = issued
	r.Skipped = skipped
	r.Failed = failed
}

// Fail closes a run that aborted before processing tenants
func (r *Run) Fail(finishedAt time.Time, err error) {
	t := finishedAt.UTC()
	r.FinishedAt = &t
	r.Status = RunStatusFailed
	if err != nil {
		r.Error = err.Error()
	}
}

// Duration returns how long the run took, or zero while it is still running
func (r *Run) Duration() time.Duration {
	if r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RunRepository stores billing pass history
type RunRepository interface {
	RecordRunStart(ctx context.Context, run *Run) error
	RecordRunComplete(ctx context.Context, run *Run) error
	ListRecent(ctx context.Context, limit int) ([]Run, error)
	FindLatest(ctx context.Context) (*Run, error)
}
