package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/billing"
	"github.com/kost/backend/internal/domain/tenancy"
	"go.uber.org/zap"
)

// DefaultLookaheadDays is how far ahead of a period end tenants are picked up
const DefaultLookaheadDays = 7

const periodEndLayout = "2006-01-02"

// DueTenant is a tenant ready to be billed for its next period
type DueTenant struct {
	Tenant          *tenancy.Tenant
	Room            *tenancy.Room
	Costs           billing.CostContext
	LatestPeriodEnd time.Time
}

// Selection is the outcome of one selector run
type Selection struct {
	Due []DueTenant
	// Skipped holds tenants inside the window that cannot be billed
	Skipped []TenantResult
}

// Selector finds tenants whose latest period ends inside the billing window
type Selector struct {
	readModel     BillingReadModel
	lookaheadDays int
	logger        *zap.Logger
}

// NewSelector creates a selector; a negative lookahead falls back to the default
func NewSelector(readModel BillingReadModel, lookaheadDays int, logger *zap.Logger) *Selector {
	if lookaheadDays < 0 {
		lookaheadDays = DefaultLookaheadDays
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Selector{
		readModel:     readModel,
		lookaheadDays: lookaheadDays,
		logger:        logger,
	}
}

// Window returns the inclusive [today-1, today+W] range of period ends that are due
func (s *Selector) Window(today time.Time) (time.Time, time.Time) {
	return today.AddDate(0, 0, -1), today.AddDate(0, 0, s.lookaheadDays)
}

// SelectDue returns the tenants to bill on the given calendar date.
// An error here means the pass cannot proceed.
func (s *Selector) SelectDue(ctx context.Context, today time.Time) (*Selection, error) {
	rows, err := s.readModel.FindLatestPeriodEnds(ctx)
	if err != nil {
		return nil, fmt.Errorf("find latest period ends: %w", err)
	}

	from, to := s.Window(today)
	inWindow := make(map[uuid.UUID]time.Time)
	order := make([]uuid.UUID, 0)
	for _, row := range rows {
		end, ok := parsePeriodEnd(row.PeriodEnd)
		if !ok {
			s.logger.Warn("Skipping tenant with unreadable period end",
				zap.String("tenant_id", row.TenantID.String()),
				zap.String("period_end", row.PeriodEnd))
			continue
		}
		if end.Before(from) || end.After(to) {
			continue
		}
		if _, seen := inWindow[row.TenantID]; !seen {
			order = append(order, row.TenantID)
		}
		inWindow[row.TenantID] = end
	}

	selection := &Selection{}
	if len(order) == 0 {
		return selection, nil
	}

	candidates, err := s.readModel.FindActiveTenantsWithCosts(ctx, order)
	if err != nil {
		return nil, fmt.Errorf("find active tenants: %w", err)
	}

	found := make(map[uuid.UUID]TenantWithCosts, len(candidates))
	for _, c := range candidates {
		if c.Tenant != nil {
			found[c.Tenant.ID] = c
		}
	}

	for _, id := range order {
		c, ok := found[id]
		if !ok || !c.Tenant.IsBillable() {
			s.logger.Info("Skipping tenant that is not active", zap.String("tenant_id", id.String()))
			selection.Skipped = append(selection.Skipped, TenantResult{TenantID: id, Outcome: OutcomeSkippedInactive})
			continue
		}
		costs, ok := billing.CostContextFromRoom(c.Room)
		if !ok {
			s.logger.Warn("Skipping tenant whose room has no active price",
				zap.String("tenant_id", id.String()),
				zap.String("room_id", c.Tenant.RoomID.String()))
			selection.Skipped = append(selection.Skipped, TenantResult{TenantID: id, Outcome: OutcomeSkippedNoPrice})
			continue
		}
		selection.Due = append(selection.Due, DueTenant{
			Tenant:          c.Tenant,
			Room:            c.Room,
			Costs:           costs,
			LatestPeriodEnd: inWindow[id],
		})
	}

	return selection, nil
}

// parsePeriodEnd reads the date prefix of a driver value. Postgres returns
// RFC3339 text for DATE columns scanned into strings, SQLite returns
// "2006-01-02 15:04:05+00:00"; both start with the calendar date.
func parsePeriodEnd(raw string) (time.Time, bool) {
	if len(raw) < len(periodEndLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(periodEndLayout, raw[:len(periodEndLayout)], time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
