package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/tenancy"
)

// PeriodEndRow is one tenant's latest non-void period end as returned by the
// database. PeriodEnd is the raw driver value and may be empty or malformed.
type PeriodEndRow struct {
	TenantID  uuid.UUID
	PeriodEnd string
}

// TenantWithCosts is an active tenant joined with its room and the room's
// active cost records
type TenantWithCosts struct {
	Tenant *tenancy.Tenant
	Room   *tenancy.Room
}

// BillingReadModel is the query side the selector and orchestrator read from
type BillingReadModel interface {
	FindLatestPeriodEnds(ctx context.Context) ([]PeriodEndRow, error)
	FindActiveTenantsWithCosts(ctx context.Context, tenantIDs []uuid.UUID) ([]TenantWithCosts, error)
	// FindLatestInvoice returns nil, nil when the tenant has no non-void invoice
	FindLatestInvoice(ctx context.Context, tenantID uuid.UUID) (*invoicing.Invoice, error)
}

// IssuanceStore writes invoices atomically
type IssuanceStore interface {
	ExistsNonVoidForPeriodStart(ctx context.Context, tenantID uuid.UUID, periodStart time.Time) (bool, error)
	// IssueWithCharges creates the header, its charges and the final total in
	// one transaction. A concurrent insert for the same period surfaces as
	// shared.ErrAlreadyExists.
	IssueWithCharges(ctx context.Context, invoice *invoicing.Invoice, charges []invoicing.Charge) error
}

// DistributedLock serialises passes across processes
type DistributedLock interface {
	TryLock(ctx context.Context) (unlock func(context.Context) error, acquired bool, err error)
}

// PassMetrics receives pass telemetry
type PassMetrics interface {
	RecordOutcome(ctx context.Context, outcome Outcome)
	RecordPass(ctx context.Context, trigger string, duration time.Duration, failed bool)
}

// Gate decides whether a scheduled pass may run at the given instant
type Gate interface {
	ShouldRun(now time.Time) bool
}

type noopMetrics struct{}

func (noopMetrics) RecordOutcome(context.Context, Outcome)                     {}
func (noopMetrics) RecordPass(context.Context, string, time.Duration, bool) {}
