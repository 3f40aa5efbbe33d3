package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	appbilling "github.com/kost/backend/internal/application/billing"
	"github.com/kost/backend/internal/domain/billing"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronTrigger fires the daily pass once at the intended minute using a cron
// entry evaluated in the configured timezone. Overlapping fires are skipped.
type CronTrigger struct {
	spec   string
	cron   *cron.Cron
	entry  cron.EntryID
	runner PassRunner
	logger *zap.Logger

	mu        sync.Mutex
	ctx       context.Context
	isRunning bool
	lastRunAt *time.Time
	lastError string
}

// CronSpec builds the cron expression for a daily run at hour:minute in timezone
func CronSpec(cfg GateConfig) string {
	return fmt.Sprintf("CRON_TZ=%s %d %d * * *", cfg.Timezone, cfg.Minute, cfg.Hour)
}

// NewCronTrigger creates a cron trigger. Unlike the gate, an unloadable
// timezone is rejected here since the cron entry cannot be parsed.
func NewCronTrigger(cfg GateConfig, runner PassRunner, logger *zap.Logger) (*CronTrigger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cronLogger := zapCronLogger{logger: logger.Sugar()}
	c := &CronTrigger{
		spec:   CronSpec(cfg),
		runner: runner,
		logger: logger,
		ctx:    context.Background(),
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLogger),
			cron.SkipIfStillRunning(cronLogger),
		)),
	}

	entry, err := c.cron.AddFunc(c.spec, c.fire)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.entry = entry
	return c, nil
}

// Start starts the cron scheduler. Passes run under ctx.
func (c *CronTrigger) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isRunning {
		return nil
	}
	c.ctx = ctx
	c.isRunning = true
	c.cron.Start()

	c.logger.Info("Billing cron trigger started", zap.String("schedule", c.spec))
	return nil
}

// Stop stops the cron scheduler and waits for a running pass to finish
func (c *CronTrigger) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.isRunning {
		c.mu.Unlock()
		return nil
	}
	c.isRunning = false
	c.mu.Unlock()

	stopped := c.cron.Stop()
	select {
	case <-stopped.Done():
		c.logger.Info("Billing cron trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *CronTrigger) fire() {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	result, err := runLabeled(ctx, c.runner, appbilling.PassOptions{Trigger: billing.TriggerSchedule})

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if errors.Is(err, appbilling.ErrPassInProgress) {
			c.logger.Info("Scheduled billing pass skipped, another pass is running")
			return
		}
		c.logger.Error("Scheduled billing pass failed", zap.Error(err))
		c.lastError = err.Error()
		return
	}
	started := result.StartedAt
	c.lastRunAt = &started
	c.lastError = ""
}

// TriggerNow runs a forced pass outside the schedule
func (c *CronTrigger) TriggerNow(ctx context.Context) (*appbilling.PassResult, error) {
	c.mu.Lock()
	running := c.isRunning
	c.mu.Unlock()
	if !running {
		return nil, ErrTriggerNotRunning
	}
	return runLabeled(ctx, c.runner, appbilling.PassOptions{Force: true, Trigger: billing.TriggerManual})
}

// Status returns a snapshot of the trigger
func (c *CronTrigger) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		Mode:      ModeCron,
		Running:   c.isRunning,
		LastRunAt: c.lastRunAt,
		LastError: c.lastError,
	}
	if c.isRunning {
		if next := c.cron.Entry(c.entry).Next; !next.IsZero() {
			status.NextRunAt = &next
		}
	}
	return status
}

// zapCronLogger adapts zap to cron.Logger
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
