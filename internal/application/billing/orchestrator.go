package billing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/billing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/kost/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultTenantTimeout bounds the work done for a single tenant
const DefaultTenantTimeout = 30 * time.Second

// PassOptions controls a single pass
type PassOptions struct {
	// Force skips the schedule gate (manual and CLI runs)
	Force   bool
	Trigger string
}

// OrchestratorConfig holds the tunables of the billing pass
type OrchestratorConfig struct {
	LookaheadDays int
	DueDays       int
	TenantTimeout time.Duration
	Location      *time.Location
}

// DefaultOrchestratorConfig returns default configuration
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		LookaheadDays: DefaultLookaheadDays,
		DueDays:       DefaultDueDays,
		TenantTimeout: DefaultTenantTimeout,
		Location:      time.UTC,
	}
}

// OrchestratorDeps are the collaborators of the orchestrator.
// Gate, Runs, Lock and Metrics are optional.
type OrchestratorDeps struct {
	Clock     shared.Clock
	Gate      Gate
	ReadModel BillingReadModel
	Store     IssuanceStore
	Runs      billing.RunRepository
	Lock      DistributedLock
	Metrics   PassMetrics
	Logger    *zap.Logger
}

// Orchestrator runs billing passes: select due tenants, compute the next
// period for each, and issue invoices one tenant at a time.
type Orchestrator struct {
	clock     shared.Clock
	gate      Gate
	readModel BillingReadModel
	selector  *Selector
	issuer    *Issuer
	runs      billing.RunRepository
	lock      DistributedLock
	metrics   PassMetrics
	logger    *zap.Logger

	location      *time.Location
	tenantTimeout time.Duration

	sem  *semaphore.Weighted
	mu   sync.RWMutex
	last *PassResult
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(deps OrchestratorDeps, config OrchestratorConfig) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = shared.SystemClock{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if config.TenantTimeout <= 0 {
		config.TenantTimeout = DefaultTenantTimeout
	}
	if config.Location == nil {
		config.Location = time.UTC
	}

	return &Orchestrator{
		clock:         deps.Clock,
		gate:          deps.Gate,
		readModel:     deps.ReadModel,
		selector:      NewSelector(deps.ReadModel, config.LookaheadDays, deps.Logger),
		issuer:        NewIssuer(deps.Store, config.DueDays, deps.Logger),
		runs:          deps.Runs,
		lock:          deps.Lock,
		metrics:       deps.Metrics,
		logger:        deps.Logger,
		location:      config.Location,
		tenantTimeout: config.TenantTimeout,
		sem:           semaphore.NewWeighted(1),
	}
}

// RunPass executes one billing pass. Unless opts.Force is set the schedule
// gate is consulted first and a closed gate yields a result with GateSkipped.
// Per-tenant failures are recorded in the result; only a failed selection
// returns an error.
func (o *Orchestrator) RunPass(ctx context.Context, opts PassOptions) (*PassResult, error) {
	trigger := opts.Trigger
	if trigger == "" {
		trigger = billing.TriggerSchedule
	}

	now := o.clock.Now()
	if !opts.Force && o.gate != nil && !o.gate.ShouldRun(now) {
		return &PassResult{Trigger: trigger, StartedAt: now, FinishedAt: now, GateSkipped: true}, nil
	}

	if !o.sem.TryAcquire(1) {
		return nil, ErrPassInProgress
	}
	defer o.sem.Release(1)

	if o.lock != nil {
		unlock, acquired, err := o.lock.TryLock(ctx)
		if err != nil {
			return nil, fmt.Errorf("acquire pass lock: %w", err)
		}
		if !acquired {
			return nil, ErrPassInProgress
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				o.logger.Warn("Failed to release pass lock", zap.Error(err))
			}
		}()
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "billing", "run_pass",
		telemetry.WithAttribute("trigger", trigger))
	defer span.End()

	today := shared.DateOf(now, o.location)
	result := &PassResult{RunID: uuid.New(), Trigger: trigger, StartedAt: now}
	run := o.startRun(ctx, result)

	o.logger.Info("Billing pass started",
		zap.String("run_id", result.RunID.String()),
		zap.String("trigger", trigger),
		zap.Time("today", today))

	selection, err := o.selector.SelectDue(ctx, today)
	if err != nil {
		result.FinishedAt = o.clock.Now()
		telemetry.RecordError(span, err)
		o.metrics.RecordPass(ctx, trigger, result.Duration(), true)
		o.failRun(ctx, run, result.FinishedAt, err)
		o.logger.Error("Billing pass aborted: tenant selection failed",
			zap.String("run_id", result.RunID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("select due tenants: %w", err)
	}

	o.logger.Info("Billing pass selected tenants",
		zap.String("run_id", result.RunID.String()),
		zap.Int("due", len(selection.Due)),
		zap.Int("skipped", len(selection.Skipped)))

	for _, skipped := range selection.Skipped {
		result.add(skipped)
		o.metrics.RecordOutcome(ctx, skipped.Outcome)
	}
	for _, due := range selection.Due {
		tr := o.processTenant(ctx, due, today)
		result.add(tr)
		o.metrics.RecordOutcome(ctx, tr.Outcome)
	}

	result.FinishedAt = o.clock.Now()
	telemetry.SetAttributes(span,
		"selected", result.Selected(),
		"issued", result.Issued,
		"skipped", result.Skipped,
		"failed", result.Failed,
	)
	o.metrics.RecordPass(ctx, trigger, result.Duration(), false)
	o.completeRun(ctx, run, result)
	o.setLast(result)

	o.logger.Info("Billing pass completed",
		zap.String("run_id", result.RunID.String()),
		zap.Int("selected", result.Selected()),
		zap.Int("issued", result.Issued),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration()))

	return result, nil
}

// processTenant bills one tenant. Nothing it does can abort the pass.
func (o *Orchestrator) processTenant(ctx context.Context, due DueTenant, today time.Time) (tr TenantResult) {
	tenantID := due.Tenant.ID
	tr = TenantResult{TenantID: tenantID}

	ctx, cancel := context.WithTimeout(ctx, o.tenantTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			tr.Outcome = OutcomeFailed
			tr.Error = fmt.Sprintf("panic: %v", r)
			o.logger.Error("Panic while billing tenant",
				zap.String("tenant_id", tenantID.String()),
				zap.Any("panic", r))
		}
	}()

	latest, err := o.readModel.FindLatestInvoice(ctx, tenantID)
	if err != nil {
		return o.failed(tr, "fetch latest invoice", err)
	}
	if latest == nil {
		o.logger.Warn("Tenant has no invoice to continue from, skipping",
			zap.String("tenant_id", tenantID.String()))
		tr.Outcome = OutcomeSkippedNoInvoice
		return tr
	}
	// the invoice that qualified at selection must still be the latest one
	if !due.LatestPeriodEnd.IsZero() && !shared.DateOf(latest.PeriodEnd, nil).Equal(due.LatestPeriodEnd) {
		o.logger.Warn("Tenant's latest invoice changed since selection, skipping",
			zap.String("tenant_id", tenantID.String()),
			zap.Time("selected_period_end", due.LatestPeriodEnd),
			zap.Time("latest_period_end", latest.PeriodEnd))
		tr.Outcome = OutcomeSkippedNoInvoice
		return tr
	}

	period := billing.NextPeriod(latest.PeriodEnd)
	tr.PeriodStart = &period.Start
	tr.PeriodEnd = &period.End

	res, err := o.issuer.Issue(ctx, IssueRequest{Tenant: due, Period: period, IssueDate: today})
	if err != nil {
		return o.failed(tr, "issue invoice", err)
	}
	tr.Outcome = res.Outcome
	if res.Invoice != nil {
		id := res.Invoice.ID
		tr.InvoiceID = &id
		tr.Total = res.Total
	}
	return tr
}

func (o *Orchestrator) failed(tr TenantResult, step string, err error) TenantResult {
	o.logger.Error("Failed to bill tenant",
		zap.String("tenant_id", tr.TenantID.String()),
		zap.String("step", step),
		zap.Error(err))
	tr.Outcome = OutcomeFailed
	tr.Error = fmt.Sprintf("%s: %v", step, err)
	return tr
}

func (o *Orchestrator) startRun(ctx context.Context, result *PassResult) *billing.Run {
	if o.runs == nil {
		return nil
	}
	run, err := billing.NewRun(result.Trigger, result.StartedAt)
	if err != nil {
		return nil
	}
	run.ID = result.RunID
	if err := o.runs.RecordRunStart(ctx, run); err != nil {
		o.logger.Warn("Failed to record billing run start", zap.Error(err))
		return nil
	}
	return run
}

func (o *Orchestrator) completeRun(ctx context.Context, run *billing.Run, result *PassResult) {
	if run == nil {
		return
	}
	run.Complete(result.FinishedAt, result.Selected(), result.Issued, result.Skipped, result.Failed)
	if err := o.runs.RecordRunComplete(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Warn("Failed to record billing run completion", zap.Error(err))
	}
}

func (o *Orchestrator) failRun(ctx context.Context, run *billing.Run, finishedAt time.Time, cause error) {
	if run == nil {
		return
	}
	run.Fail(finishedAt, cause)
	if err := o.runs.RecordRunComplete(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Warn("Failed to record billing run failure", zap.Error(err))
	}
}

func (o *Orchestrator) setLast(result *PassResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.last = result
}

// LastResult returns the most recent completed pass of this process, if any
func (o *Orchestrator) LastResult() *PassResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.last
}

// RecentRuns returns persisted pass history, newest first
func (o *Orchestrator) RecentRuns(ctx context.Context, limit int) ([]billing.Run, error) {
	if o.runs == nil {
		return nil, ErrRunHistoryUnavailable
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return o.runs.ListRecent(ctx, limit)
}
