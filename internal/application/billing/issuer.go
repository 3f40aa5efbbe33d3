package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kost/backend/internal/domain/billing"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultDueDays is the number of days between issue date and due date
const DefaultDueDays = 7

// IssueRequest is everything the issuer needs for one tenant
type IssueRequest struct {
	Tenant    DueTenant
	Period    billing.Period
	IssueDate time.Time
}

// IssueResult is the issuer's verdict for one tenant
type IssueResult struct {
	Outcome Outcome
	Invoice *invoicing.Invoice
	Total   decimal.Decimal
}

// Issuer turns a due tenant and a period into a persisted invoice
type Issuer struct {
	store   IssuanceStore
	dueDays int
	logger  *zap.Logger
}

// NewIssuer creates an issuer; dueDays <= 0 falls back to the default
func NewIssuer(store IssuanceStore, dueDays int, logger *zap.Logger) *Issuer {
	if dueDays <= 0 {
		dueDays = DefaultDueDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{store: store, dueDays: dueDays, logger: logger}
}

// Issue creates the invoice for req.Period unless one already exists.
// An existing non-void invoice for the same period start is a skip, not an error.
func (i *Issuer) Issue(ctx context.Context, req IssueRequest) (*IssueResult, error) {
	tenantID := req.Tenant.Tenant.ID

	exists, err := i.store.ExistsNonVoidForPeriodStart(ctx, tenantID, req.Period.Start)
	if err != nil {
		return nil, fmt.Errorf("check existing invoice: %w", err)
	}
	if exists {
		i.logger.Info("Invoice already exists for period, skipping",
			zap.String("tenant_id", tenantID.String()),
			zap.Time("period_start", req.Period.Start))
		return &IssueResult{Outcome: OutcomeSkippedExists}, nil
	}

	charges, total := billing.AssembleCharges(req.Tenant.Costs)

	invoice, err := invoicing.NewIssuedInvoice(invoicing.IssueParams{
		TenantID:    tenantID,
		RoomID:      req.Tenant.Tenant.RoomID,
		PeriodStart: req.Period.Start,
		PeriodEnd:   req.Period.End,
		IssueDate:   req.IssueDate,
		DueDate:     req.IssueDate.AddDate(0, 0, i.dueDays),
		Actor:       shared.SystemActor,
	})
	if err != nil {
		return nil, err
	}

	if err := i.store.IssueWithCharges(ctx, invoice, charges); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// only the active-period constraint means the work is done; any
			// other unique violation (the invoice number) is a real failure
			raced, checkErr := i.store.ExistsNonVoidForPeriodStart(ctx, tenantID, req.Period.Start)
			if checkErr == nil && raced {
				i.logger.Info("Invoice created concurrently for period, skipping",
					zap.String("tenant_id", tenantID.String()),
					zap.Time("period_start", req.Period.Start))
				return &IssueResult{Outcome: OutcomeSkippedExists}, nil
			}
		}
		return nil, fmt.Errorf("issue invoice: %w", err)
	}

	i.logger.Info("Invoice issued",
		zap.String("tenant_id", tenantID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("number", invoice.Number),
		zap.Time("period_start", invoice.PeriodStart),
		zap.Time("period_end", invoice.PeriodEnd),
		zap.Int("charges", len(charges)),
		zap.String("total", total.String()))

	return &IssueResult{Outcome: OutcomeIssued, Invoice: invoice, Total: total}, nil
}
