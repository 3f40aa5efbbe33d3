package scheduler

import (
	"context"
	"time"

	appbilling "github.com/kost/backend/internal/application/billing"
	"github.com/kost/backend/internal/infrastructure/telemetry"
)

// Mode names how the daily pass is triggered
type Mode string

const (
	// ModeCron fires once at the configured minute via a cron entry
	ModeCron Mode = "cron"
	// ModeGate polls on a ticker and lets the schedule gate decide
	ModeGate Mode = "gate"
)

// PassRunner runs a billing pass
type PassRunner interface {
	RunPass(ctx context.Context, opts appbilling.PassOptions) (*appbilling.PassResult, error)
}

// Trigger starts billing passes on a schedule
type Trigger interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Status() Status
	TriggerNow(ctx context.Context) (*appbilling.PassResult, error)
}

// Status is a snapshot of a trigger
type Status struct {
	Mode      Mode       `json:"mode"`
	Running   bool       `json:"running"`
	LastRunAt *time.Time `json:"last_run_at,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// runLabeled runs a pass under pprof labels naming its trigger
func runLabeled(ctx context.Context, runner PassRunner, opts appbilling.PassOptions) (result *appbilling.PassResult, err error) {
	labels := telemetry.OperationLabels("billing_pass", map[string]string{
		telemetry.ProfilingLabelTrigger: opts.Trigger,
	})
	telemetry.WithProfilingLabels(ctx, labels, func(c context.Context) {
		result, err = runner.RunPass(c, opts)
	})
	return result, err
}
