package billing

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/billing"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/kost/backend/internal/domain/tenancy"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockBillingReadModel is a mock implementation of BillingReadModel
type MockBillingReadModel struct {
	mock.Mock
}

func (m *MockBillingReadModel) FindLatestPeriodEnds(ctx context.Context) ([]PeriodEndRow, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]PeriodEndRow), args.Error(1)
}

func (m *MockBillingReadModel) FindActiveTenantsWithCosts(ctx context.Context, tenantIDs []uuid.UUID) ([]TenantWithCosts, error) {
	args := m.Called(ctx, tenantIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]TenantWithCosts), args.Error(1)
}

func (m *MockBillingReadModel) FindLatestInvoice(ctx context.Context, tenantID uuid.UUID) (*invoicing.Invoice, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoicing.Invoice), args.Error(1)
}

// MockIssuanceStore is a mock implementation of IssuanceStore
type MockIssuanceStore struct {
	mock.Mock
}

func (m *MockIssuanceStore) ExistsNonVoidForPeriodStart(ctx context.Context, tenantID uuid.UUID, periodStart time.Time) (bool, error) {
	args := m.Called(ctx, tenantID, periodStart)
	return args.Bool(0), args.Error(1)
}

func (m *MockIssuanceStore) IssueWithCharges(ctx context.Context, invoice *invoicing.Invoice, charges []invoicing.Charge) error {
	args := m.Called(ctx, invoice, charges)
	return args.Error(0)
}

// MockRunRepository is a mock implementation of billing.RunRepository
type MockRunRepository struct {
	mock.Mock
}

func (m *MockRunRepository) RecordRunStart(ctx context.Context, run *billing.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) RecordRunComplete(ctx context.Context, run *billing.Run) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunRepository) ListRecent(ctx context.Context, limit int) ([]billing.Run, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]billing.Run), args.Error(1)
}

func (m *MockRunRepository) FindLatest(ctx context.Context) (*billing.Run, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*billing.Run), args.Error(1)
}

// MockDistributedLock is a mock implementation of DistributedLock
type MockDistributedLock struct {
	mock.Mock
}

func (m *MockDistributedLock) TryLock(ctx context.Context) (func(context.Context) error, bool, error) {
	args := m.Called(ctx)
	unlock, _ := args.Get(0).(func(context.Context) error)
	return unlock, args.Bool(1), args.Error(2)
}

type gateFunc func(time.Time) bool

func (f gateFunc) ShouldRun(now time.Time) bool { return f(now) }

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes map[Outcome]int
	passes   int
	failures int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{outcomes: make(map[Outcome]int)}
}

func (r *recordingMetrics) RecordOutcome(_ context.Context, outcome Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[outcome]++
}

func (r *recordingMetrics) RecordPass(_ context.Context, _ string, _ time.Duration, failed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes++
	if failed {
		r.failures++
	}
}

// memoryStore keeps invoices in memory and implements both the read model
// and the issuance store, the way the database does.
type memoryStore struct {
	mu       sync.Mutex
	tenants  map[uuid.UUID]TenantWithCosts
	invoices []*invoicing.Invoice
	issued   int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tenants: make(map[uuid.UUID]TenantWithCosts)}
}

func (s *memoryStore) addTenant(tenant *tenancy.Tenant, room *tenancy.Room) {
	s.tenants[tenant.ID] = TenantWithCosts{Tenant: tenant, Room: room}
}

func (s *memoryStore) addInvoice(tenantID uuid.UUID, start, end time.Time, status invoicing.InvoiceStatus) *invoicing.Invoice {
	id := tenantID
	inv := &invoicing.Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		TenantID:          &id,
		PeriodStart:       start,
		PeriodEnd:         end,
		Status:            status,
	}
	s.invoices = append(s.invoices, inv)
	return inv
}

func (s *memoryStore) FindLatestPeriodEnds(_ context.Context) ([]PeriodEndRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := make(map[uuid.UUID]time.Time)
	for _, inv := range s.invoices {
		if inv.Status.IsVoid() {
			continue
		}
		if cur, ok := latest[*inv.TenantID]; !ok || inv.PeriodEnd.After(cur) {
			latest[*inv.TenantID] = inv.PeriodEnd
		}
	}
	rows := make([]PeriodEndRow, 0, len(latest))
	for id, end := range latest {
		rows = append(rows, PeriodEndRow{TenantID: id, PeriodEnd: end.Format("2006-01-02 15:04:05+00:00")})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].TenantID.String() < rows[j].TenantID.String() })
	return rows, nil
}

func (s *memoryStore) FindActiveTenantsWithCosts(_ context.Context, ids []uuid.UUID) ([]TenantWithCosts, error) {
	out := make([]TenantWithCosts, 0, len(ids))
	for _, id := range ids {
		if t, ok := s.tenants[id]; ok && t.Tenant.Status == tenancy.TenancyStatusActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memoryStore) FindLatestInvoice(_ context.Context, tenantID uuid.UUID) (*invoicing.Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *invoicing.Invoice
	for _, inv := range s.invoices {
		if *inv.TenantID != tenantID || inv.Status.IsVoid() {
			continue
		}
		if latest == nil || inv.PeriodEnd.After(latest.PeriodEnd) {
			latest = inv
		}
	}
	return latest, nil
}

func (s *memoryStore) ExistsNonVoidForPeriodStart(_ context.Context, tenantID uuid.UUID, periodStart time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsLocked(tenantID, periodStart), nil
}

func (s *memoryStore) existsLocked(tenantID uuid.UUID, periodStart time.Time) bool {
	for _, inv := range s.invoices {
		if *inv.TenantID == tenantID && inv.PeriodStart.Equal(periodStart) && !inv.Status.IsVoid() {
			return true
		}
	}
	return false
}

func (s *memoryStore) IssueWithCharges(_ context.Context, invoice *invoicing.Invoice, charges []invoicing.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.existsLocked(*invoice.TenantID, invoice.PeriodStart) {
		return shared.ErrAlreadyExists
	}
	invoice.AttachCharges(charges)
	s.invoices = append(s.invoices, invoice)
	s.issued++
	return nil
}

func (s *memoryStore) nonVoidForPeriod(tenantID uuid.UUID, start time.Time) int {
	n := 0
	for _, inv := range s.invoices {
		if *inv.TenantID == tenantID && inv.PeriodStart.Equal(start) && !inv.Status.IsVoid() {
			n++
		}
	}
	return n
}

func activeTenant(t *testing.T, room *tenancy.Room) *tenancy.Tenant {
	t.Helper()
	tenant, err := tenancy.NewTenant(room.ID, "Tenant "+room.Name, "0812", shared.Date(2023, 1, 1))
	require.NoError(t, err)
	require.NoError(t, tenant.Activate(time.Now()))
	return tenant
}

func roomWithPrice(t *testing.T, name string, base int64, extras map[string]int64) *tenancy.Room {
	t.Helper()
	room, err := tenancy.NewRoom(name, tenancy.RoomSizeMedium)
	require.NoError(t, err)

	price, err := tenancy.NewCostItem(room.ID, "Base Rent", "Monthly rent", decimal.NewFromInt(base))
	require.NoError(t, err)
	room.Prices = append(room.Prices, tenancy.Price{CostItem: price})

	names := make([]string, 0, len(extras))
	for n := range extras {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		item, err := tenancy.NewCostItem(room.ID, n, "", decimal.NewFromInt(extras[n]))
		require.NoError(t, err)
		room.AdditionalPrices = append(room.AdditionalPrices, tenancy.AdditionalPrice{CostItem: item})
	}
	return room
}

func roomWithoutPrice(t *testing.T, name string) *tenancy.Room {
	t.Helper()
	room, err := tenancy.NewRoom(name, tenancy.RoomSizeSmall)
	require.NoError(t, err)
	return room
}
