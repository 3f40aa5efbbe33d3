package billing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/billing"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var passTime = time.Date(2024, 1, 25, 1, 0, 0, 0, time.UTC)

func newTestOrchestrator(readModel BillingReadModel, store IssuanceStore, mutate func(*OrchestratorDeps, *OrchestratorConfig)) *Orchestrator {
	deps := OrchestratorDeps{
		Clock:     shared.NewFixedClock(passTime),
		ReadModel: readModel,
		Store:     store,
	}
	cfg := DefaultOrchestratorConfig()
	if mutate != nil {
		mutate(&deps, &cfg)
	}
	return NewOrchestrator(deps, cfg)
}

func TestOrchestrator_EndToEnd(t *testing.T) {
	store := newMemoryStore()
	room := roomWithPrice(t, "D-01", 500000, map[string]int64{"WiFi": 50000})
	tenant := activeTenant(t, room)
	store.addTenant(tenant, room)
	store.addInvoice(tenant.ID, shared.Date(2024, 1, 1), shared.Date(2024, 1, 31), invoicing.InvoiceStatusPaid)

	metrics := newRecordingMetrics()
	o := newTestOrchestrator(store, store, func(d *OrchestratorDeps, _ *OrchestratorConfig) {
		d.Metrics = metrics
	})

	result, err := o.RunPass(context.Background(), PassOptions{Force: true, Trigger: billing.TriggerManual})
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	tr := result.Results[0]
	assert.Equal(t, OutcomeIssued, tr.Outcome)
	assert.Equal(t, shared.Date(2024, 2, 1), *tr.PeriodStart)
	assert.Equal(t, shared.Date(2024, 2, 29), *tr.PeriodEnd)
	assert.True(t, decimal.NewFromInt(550000).Equal(tr.Total))
	assert.Equal(t, 1, result.Issued)

	latest, err := store.FindLatestInvoice(context.Background(), tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicing.InvoiceStatusIssued, latest.Status)
	assert.Len(t, latest.Charges, 2)
	assert.True(t, decimal.NewFromInt(550000).Equal(latest.TotalAmountDue))

	assert.Equal(t, 1, metrics.outcomes[OutcomeIssued])
	assert.Equal(t, 1, metrics.passes)
	assert.Same(t, result, o.LastResult())
}

func TestOrchestrator_SecondPassIssuesNothing(t *testing.T) {
	store := newMemoryStore()
	room := roomWithPrice(t, "D-02", 500000, nil)
	tenant := activeTenant(t, room)
	store.addTenant(tenant, room)
	store.addInvoice(tenant.ID, shared.Date(2024, 1, 1), shared.Date(2024, 1, 31), invoicing.InvoiceStatusIssued)

	o := newTestOrchestrator(store, store, nil)

	first, err := o.RunPass(context.Background(), PassOptions{Force: true})
	require.NoError(t, err)
	second, err := o.RunPass(context.Background(), PassOptions{Force: true})
	require.NoError(t, err)

	assert.Equal(t, 1, first.Issued)
	assert.Equal(t, 0, second.Issued)
	assert.Equal(t, 1, store.issued)
	assert.Equal(t, 1, store.nonVoidForPeriod(tenant.ID, shared.Date(2024, 2, 1)))
}

func TestOrchestrator_TenantFailureIsIsolated(t *testing.T) {
	ctx := context.Background()
	roomA := roomWithPrice(t, "E-01", 500000, nil)
	roomB := roomWithPrice(t, "E-02", 450000, nil)
	tenantA := activeTenant(t, roomA)
	tenantB := activeTenant(t, roomB)

	readModel := new(MockBillingReadModel)
	readModel.On("FindLatestPeriodEnds", mock.Anything).Return([]PeriodEndRow{
		{TenantID: tenantA.ID, PeriodEnd: "2024-01-31"},
		{TenantID: tenantB.ID, PeriodEnd: "2024-01-31"},
	}, nil)
	readModel.On("FindActiveTenantsWithCosts", mock.Anything, []uuid.UUID{tenantA.ID, tenantB.ID}).Return([]TenantWithCosts{
		{Tenant: tenantA, Room: roomA},
		{Tenant: tenantB, Room: roomB},
	}, nil)
	readModel.On("FindLatestInvoice", mock.Anything, tenantA.ID).Return(nil, errors.New("row lock timeout"))
	readModel.On("FindLatestInvoice", mock.Anything, tenantB.ID).Return(&invoicing.Invoice{
		PeriodStart: shared.Date(2024, 1, 1),
		PeriodEnd:   shared.Date(2024, 1, 31),
		Status:      invoicing.InvoiceStatusPaid,
	}, nil)

	store := new(MockIssuanceStore)
	store.On("ExistsNonVoidForPeriodStart", mock.Anything, tenantB.ID, shared.Date(2024, 2, 1)).Return(false, nil)
	store.On("IssueWithCharges", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	result, err := newTestOrchestrator(readModel, store, nil).RunPass(ctx, PassOptions{Force: true})
	require.NoError(t, err)

	require.Len(t, result.Results, 2)
	assert.Equal(t, OutcomeFailed, result.Results[0].Outcome)
	assert.Contains(t, result.Results[0].Error, "row lock timeout")
	assert.Equal(t, OutcomeIssued, result.Results[1].Outcome)
	assert.Equal(t, 1, result.Issued)
	assert.Equal(t, 1, result.Failed)
}

func TestOrchestrator_TenantTimeout(t *testing.T) {
	store := newMemoryStore()
	slowRoom := roomWithPrice(t, "F-01", 500000, nil)
	fastRoom := roomWithPrice(t, "F-02", 500000, nil)
	slow := activeTenant(t, slowRoom)
	fast := activeTenant(t, fastRoom)
	store.addTenant(slow, slowRoom)
	store.addTenant(fast, fastRoom)
	store.addInvoice(slow.ID, shared.Date(2024, 1, 1), shared.Date(2024, 1, 31), invoicing.InvoiceStatusPaid)
	store.addInvoice(fast.ID, shared.Date(2024, 1, 1), shared.Date(2024, 1, 31), invoicing.InvoiceStatusPaid)

	readModel := &slowReadModel{memoryStore: store, slowTenant: slow.ID}
	o := newTestOrchestrator(readModel, store, func(_ *OrchestratorDeps, c *OrchestratorConfig) {
		c.TenantTimeout = 20 * time.Millisecond
	})

	result, err := o.RunPass(context.Background(), PassOptions{Force: true})
	require.NoError(t, err)

	outcomes := make(map[uuid.UUID]TenantResult)
	for _, r := range result.Results {
		outcomes[r.TenantID] = r
	}
	assert.Equal(t, OutcomeFailed, outcomes[slow.ID].Outcome)
	assert.Contains(t, outcomes[slow.ID].Error, context.DeadlineExceeded.Error())
	assert.Equal(t, OutcomeIssued, outcomes[fast.ID].Outcome)
}

// slowReadModel blocks FindLatestInvoice for one tenant until the context ends
type slowReadModel struct {
	*memoryStore
	slowTenant uuid.UUID
}

func (s *slowReadModel) FindLatestInvoice(ctx context.Context, tenantID uuid.UUID) (*invoicing.Invoice, error) {
	if tenantID == s.slowTenant {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.memoryStore.FindLatestInvoice(ctx, tenantID)
}

func TestOrchestrator_NoInvoiceToContinueFrom(t *testing.T) {
	room := roomWithPrice(t, "G-01", 500000, nil)
	tenant := activeTenant(t, room)

	readModel := new(MockBillingReadModel)
	readModel.On("FindLatestPeriodEnds", mock.Anything).Return([]PeriodEndRow{{TenantID: tenant.ID, PeriodEnd: "2024-01-31"}}, nil)
	readModel.On("FindActiveTenantsWithCosts", mock.Anything, mock.Anything).Return([]TenantWithCosts{{Tenant: tenant, Room: room}}, nil)
	readModel.On("FindLatestInvoice", mock.Anything, tenant.ID).Return(nil, nil)
	store := new(MockIssuanceStore)

	result, err := newTestOrchestrator(readModel, store, nil).RunPass(context.Background(), PassOptions{Force: true})
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Equal(t, OutcomeSkippedNoInvoice, result.Results[0].Outcome)
	assert.Equal(t, 1, result.Skipped)
	store.AssertNotCalled(t, "ExistsNonVoidForPeriodStart", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_LatestInvoiceMovedSinceSelection(t *testing.T) {
	room := roomWithPrice(t, "G-02", 500000, nil)
	tenant := activeTenant(t, room)
	tenantID := tenant.ID

	// February was issued between selection and processing
	moved := &invoicing.Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		TenantID:          &tenantID,
		PeriodStart:       shared.Date(2024, 2, 1),
		PeriodEnd:         shared.Date(2024, 2, 29),
		Status:            invoicing.InvoiceStatusIssued,
	}

	readModel := new(MockBillingReadModel)
	readModel.On("FindLatestPeriodEnds", mock.Anything).Return([]PeriodEndRow{{TenantID: tenant.ID, PeriodEnd: "2024-01-31"}}, nil)
	readModel.On("FindActiveTenantsWithCosts", mock.Anything, mock.Anything).Return([]TenantWithCosts{{Tenant: tenant, Room: room}}, nil)
	readModel.On("FindLatestInvoice", mock.Anything, tenant.ID).Return(moved, nil)
	store := new(MockIssuanceStore)

	result, err := newTestOrchestrator(readModel, store, nil).RunPass(context.Background(), PassOptions{Force: true})
	require.NoError(t, err)

	require.Len(t, result.Results, 1)
	assert.Equal(t, OutcomeSkippedNoInvoice, result.Results[0].Outcome)
	assert.Nil(t, result.Results[0].PeriodStart)
	assert.Equal(t, 0, result.Issued)
	store.AssertNotCalled(t, "ExistsNonVoidForPeriodStart", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "IssueWithCharges", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestrator_Gate(t *testing.T) {
	readModel := new(MockBillingReadModel)
	readModel.On("FindLatestPeriodEnds", mock.Anything).Return([]PeriodEndRow{}, nil)

	closed := gateFunc(func(time.Time) bool { return false })
	o := newTestOrchestrator(readModel, new(MockIssuanceStore), func(d *OrchestratorDeps, _ *OrchestratorConfig) {
		d.Gate = closed
	})

	t.Run("closed gate skips scheduled pass", func(t *testing.T) {
		result, err := o.RunPass(context.Background(), PassOptions{})
		require.NoError(t, err)
		assert.True(t, result.GateSkipped)
		assert.Equal(t, billing.TriggerSchedule, result.Trigger)
		readModel.AssertNotCalled(t, "FindLatestPeriodEnds", mock.Anything)
	})

	t.Run("force bypasses gate", func(t *testing.T) {
		result, err := o.RunPass(context.Background(), PassOptions{Force: true, Trigger: billing.TriggerManual})
		require.NoError(t, err)
		assert.False(t, result.GateSkipped)
		readModel.AssertCalled(t, "FindLatestPeriodEnds", mock.Anything)
	})
}

func TestOrchestrator_SelectionFailureAbortsPass(t *testing.T) {
	readModel := new(MockBillingReadModel)
	readModel.On("FindLatestPeriodEnds", mock.Anything).Return(nil, errors.New("relation \"invoices\" does not exist"))

	runs := new(MockRunRepository)
	runs.On("RecordRunStart", mock.Anything, mock.AnythingOfType("*billing.Run")).Return(nil)
	runs.On("RecordRunComplete", mock.Anything, mock.MatchedBy(func(r *billing.Run) bool {
		return r.Status == billing.RunStatusFailed && r.Error != ""
	})).Return(nil)

	metrics := newRecordingMetrics()
	o := newTestOrchestrator(readModel, new(MockIssuanceStore), func(d *OrchestratorDeps, _ *OrchestratorConfig) {
		d.Runs = runs
		d.Metrics = metrics
	})

	result, err := o.RunPass(context.Background(), PassOptions{Force: true})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Nil(t, o.LastResult())
	assert.Equal(t, 1, metrics.failures)
	runs.AssertExpectations(t)
}

func TestOrchestrator_RecordsRunHistory(t *testing.T) {
	store := newMemoryStore()
	runs := new(MockRunRepository)

	var started *billing.Run
	runs.On("RecordRunStart", mock.Anything, mock.AnythingOfType("*billing.Run")).
		Run(func(args mock.Arguments) { started = args.Get(1).(*billing.Run) }).Return(nil)
	runs.On("RecordRunComplete", mock.Anything, mock.MatchedBy(func(r *billing.Run) bool {
		return r.Status == billing.RunStatusCompleted
	})).Return(nil)

	o := newTestOrchestrator(store, store, func(d *OrchestratorDeps, _ *OrchestratorConfig) {
		d.Runs = runs
	})
	result, err := o.RunPass(context.Background(), PassOptions{Force: true, Trigger: billing.TriggerCLI})
	require.NoError(t, err)

	require.NotNil(t, started)
	assert.Equal(t, result.RunID, started.ID)
	assert.Equal(t, billing.TriggerCLI, started.Trigger)
	runs.AssertExpectations(t)
}

func TestOrchestrator_RunLock(t *testing.T) {
	t.Run("concurrent pass is rejected", func(t *testing.T) {
		entered := make(chan struct{})
		release := make(chan struct{})
		readModel := &blockingReadModel{memoryStore: newMemoryStore(), entered: entered, release: release}
		o := newTestOrchestrator(readModel, readModel.memoryStore, nil)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := o.RunPass(context.Background(), PassOptions{Force: true})
			assert.NoError(t, err)
		}()

		<-entered
		_, err := o.RunPass(context.Background(), PassOptions{Force: true})
		assert.ErrorIs(t, err, ErrPassInProgress)

		close(release)
		wg.Wait()

		_, err = o.RunPass(context.Background(), PassOptions{Force: true})
		assert.NoError(t, err, "lock is released after the pass")
	})

	t.Run("distributed lock held elsewhere", func(t *testing.T) {
		lock := new(MockDistributedLock)
		lock.On("TryLock", mock.Anything).Return(nil, false, nil)
		store := newMemoryStore()
		o := newTestOrchestrator(store, store, func(d *OrchestratorDeps, _ *OrchestratorConfig) {
			d.Lock = lock
		})

		_, err := o.RunPass(context.Background(), PassOptions{Force: true})
		assert.ErrorIs(t, err, ErrPassInProgress)
	})

	t.Run("distributed lock released after pass", func(t *testing.T) {
		released := false
		unlock := func(context.Context) error {
			released = true
			return nil
		}
		lock := new(MockDistributedLock)
		lock.On("TryLock", mock.Anything).Return(unlock, true, nil)
		store := newMemoryStore()
		o := newTestOrchestrator(store, store, func(d *OrchestratorDeps, _ *OrchestratorConfig) {
			d.Lock = lock
		})

		_, err := o.RunPass(context.Background(), PassOptions{Force: true})
		require.NoError(t, err)
		assert.True(t, released)
	})
}

// blockingReadModel parks the first selection until released
type blockingReadModel struct {
	*memoryStore
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (b *blockingReadModel) FindLatestPeriodEnds(ctx context.Context) ([]PeriodEndRow, error) {
	first := false
	b.once.Do(func() { first = true })
	if first {
		close(b.entered)
		<-b.release
	}
	return b.memoryStore.FindLatestPeriodEnds(ctx)
}

func TestOrchestrator_RecentRuns(t *testing.T) {
	store := newMemoryStore()

	_, err := newTestOrchestrator(store, store, nil).RecentRuns(context.Background(), 10)
	assert.ErrorIs(t, err, ErrRunHistoryUnavailable)

	runs := new(MockRunRepository)
	runs.On("ListRecent", mock.Anything, 20).Return([]billing.Run{{ID: uuid.New()}}, nil)
	o := newTestOrchestrator(store, store, func(d *OrchestratorDeps, _ *OrchestratorConfig) {
		d.Runs = runs
	})

	got, err := o.RecentRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
