package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	appbilling "github.com/kost/backend/internal/application/billing"
	"github.com/kost/backend/internal/domain/billing"
	"github.com/kost/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// MaxTickInterval is the coarsest polling interval the gate mode accepts
const MaxTickInterval = time.Hour

// GateTriggerConfig holds configuration for the polling trigger
type GateTriggerConfig struct {
	TickInterval time.Duration
}

// DefaultGateTriggerConfig returns default polling configuration
func DefaultGateTriggerConfig() GateTriggerConfig {
	return GateTriggerConfig{TickInterval: 5 * time.Minute}
}

// GateTrigger polls the orchestrator on wall-clock aligned ticks. The orchestrator consults
// the schedule gate on every tick, so the pass only runs at the gate's minute.
// A pass that ran is remembered per local day so repeated ticks inside the
// same minute do not bill twice.
type GateTrigger struct {
	config GateTriggerConfig
	gate   *ScheduleGate
	runner PassRunner
	clock  shared.Clock
	logger *zap.Logger

	cancel      context.CancelFunc
	wg          sync.WaitGroup
	mu          sync.Mutex
	isRunning   bool
	lastRunDate string
	lastRunAt   *time.Time
	lastError   string
}

// NewGateTrigger creates a polling trigger. The runner is expected to have
// the same gate installed.
func NewGateTrigger(config GateTriggerConfig, gate *ScheduleGate, runner PassRunner, clock shared.Clock, logger *zap.Logger) (*GateTrigger, error) {
	if config.TickInterval <= 0 || config.TickInterval > MaxTickInterval {
		return nil, ErrInvalidConfig
	}
	if clock == nil {
		clock = shared.SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GateTrigger{
		config: config,
		gate:   gate,
		runner: runner,
		clock:  clock,
		logger: logger,
	}, nil
}

// Start starts the ticker loop
func (g *GateTrigger) Start(ctx context.Context) error {
	g.mu.Lock()
	if g.isRunning {
		g.mu.Unlock()
		return nil
	}
	g.isRunning = true
	g.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	g.cancel = cancel

	g.wg.Add(1)
	go g.runLoop(ctx)

	g.logger.Info("Billing gate trigger started",
		zap.Duration("tick_interval", g.config.TickInterval))
	return nil
}

// Stop stops the ticker loop and waits for an in-flight pass
func (g *GateTrigger) Stop(ctx context.Context) error {
	g.mu.Lock()
	if !g.isRunning {
		g.mu.Unlock()
		return nil
	}
	g.isRunning = false
	g.mu.Unlock()

	if g.cancel != nil {
		g.cancel()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		g.logger.Info("Billing gate trigger stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *GateTrigger) runLoop(ctx context.Context) {
	defer g.wg.Done()

	timer := time.NewTimer(g.untilNextTick())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			g.tick(ctx)
			timer.Reset(g.untilNextTick())
		}
	}
}

func (g *GateTrigger) untilNextTick() time.Duration {
	now := g.clock.Now()
	wait := g.nextTick(now).Sub(now)
	if wait <= 0 {
		return g.config.TickInterval
	}
	return wait
}

// nextTick returns the next wall-clock multiple of the tick interval, or the
// gate's next opening when that comes first. Ticks therefore never drift off
// the intended minute, whatever the interval or the process start time.
func (g *GateTrigger) nextTick(now time.Time) time.Time {
	next := now.Truncate(g.config.TickInterval).Add(g.config.TickInterval)
	if g.gate != nil {
		if match, ok := g.gate.NextMatch(now); ok && match.Before(next) {
			next = match
		}
	}
	return next
}

// tick runs one scheduled attempt
func (g *GateTrigger) tick(ctx context.Context) {
	day := g.localDay(g.clock.Now())

	g.mu.Lock()
	if day != "" && g.lastRunDate == day {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	result, err := runLabeled(ctx, g.runner, appbilling.PassOptions{Trigger: billing.TriggerSchedule})
	if err != nil {
		g.recordError(err)
		return
	}
	if result.GateSkipped {
		return
	}

	g.mu.Lock()
	g.lastRunDate = day
	started := result.StartedAt
	g.lastRunAt = &started
	g.lastError = ""
	g.mu.Unlock()
}

func (g *GateTrigger) recordError(err error) {
	if errors.Is(err, appbilling.ErrPassInProgress) {
		g.logger.Info("Scheduled billing pass skipped, another pass is running")
		return
	}
	g.logger.Error("Scheduled billing pass failed", zap.Error(err))
	g.mu.Lock()
	g.lastError = err.Error()
	g.mu.Unlock()
}

func (g *GateTrigger) localDay(now time.Time) string {
	if g.gate == nil || g.gate.Location() == nil || now.IsZero() {
		return ""
	}
	return now.In(g.gate.Location()).Format("2006-01-02")
}

// TriggerNow runs a forced pass outside the schedule
func (g *GateTrigger) TriggerNow(ctx context.Context) (*appbilling.PassResult, error) {
	g.mu.Lock()
	running := g.isRunning
	g.mu.Unlock()
	if !running {
		return nil, ErrTriggerNotRunning
	}
	return runLabeled(ctx, g.runner, appbilling.PassOptions{Force: true, Trigger: billing.TriggerManual})
}

// Status returns a snapshot of the trigger
func (g *GateTrigger) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()

	status := Status{
		Mode:      ModeGate,
		Running:   g.isRunning,
		LastRunAt: g.lastRunAt,
		LastError: g.lastError,
	}
	if g.gate != nil {
		if next, ok := g.gate.NextMatch(g.clock.Now()); ok {
			status.NextRunAt = &next
		}
	}
	return status
}
