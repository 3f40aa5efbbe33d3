package persistence

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	appbilling "github.com/kost/backend/internal/application/billing"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/tenancy"
	"github.com/kost/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormBillingReadModel implements billing.BillingReadModel using GORM
type GormBillingReadModel struct {
	db *gorm.DB
}

// NewGormBillingReadModel creates a new GormBillingReadModel
func NewGormBillingReadModel(db *gorm.DB) *GormBillingReadModel {
	return &GormBillingReadModel{db: db}
}

type latestPeriodEndRow struct {
	TenantID  uuid.UUID
	PeriodEnd sql.NullString
}

// FindLatestPeriodEnds returns max(period_end) per tenant over non-void invoices.
// The aggregate is scanned as text because drivers disagree on its type.
func (r *GormBillingReadModel) FindLatestPeriodEnds(ctx context.Context) ([]appbilling.PeriodEndRow, error) {
	var rows []latestPeriodEndRow
	err := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Select("tenant_id, MAX(period_end) AS period_end").
		Where("tenant_id IS NOT NULL AND status <> ?", invoicing.InvoiceStatusVoid).
		Group("tenant_id").
		Order("tenant_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]appbilling.PeriodEndRow, len(rows))
	for i, row := range rows {
		out[i] = appbilling.PeriodEndRow{TenantID: row.TenantID}
		if row.PeriodEnd.Valid {
			out[i].PeriodEnd = row.PeriodEnd.String
		}
	}
	return out, nil
}

// FindActiveTenantsWithCosts loads Active tenants among tenantIDs together with
// their room and the room's active cost rows.
func (r *GormBillingReadModel) FindActiveTenantsWithCosts(ctx context.Context, tenantIDs []uuid.UUID) ([]appbilling.TenantWithCosts, error) {
	if len(tenantIDs) == 0 {
		return nil, nil
	}

	activeCosts := func(db *gorm.DB) *gorm.DB {
		return db.Where("status = ?", tenancy.CostStatusActive).Order("created_at ASC")
	}

	var tenantModels []models.TenantModel
	err := r.db.WithContext(ctx).
		Where("id IN ? AND status = ?", tenantIDs, tenancy.TenancyStatusActive).
		Preload("Room").
		Preload("Room.Prices", activeCosts).
		Preload("Room.AdditionalPrices", activeCosts).
		Preload("Room.OtherCosts", activeCosts).
		Find(&tenantModels).Error
	if err != nil {
		return nil, err
	}

	out := make([]appbilling.TenantWithCosts, 0, len(tenantModels))
	for i := range tenantModels {
		m := &tenantModels[i]
		item := appbilling.TenantWithCosts{Tenant: m.ToDomain()}
		if m.Room != nil {
			item.Room = m.Room.ToDomain()
		}
		out = append(out, item)
	}
	return out, nil
}

// FindLatestInvoice returns the tenant's non-void invoice with the latest
// period end, or nil when there is none.
func (r *GormBillingReadModel) FindLatestInvoice(ctx context.Context, tenantID uuid.UUID) (*invoicing.Invoice, error) {
	var model models.InvoiceModel
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND status <> ?", tenantID, invoicing.InvoiceStatusVoid).
		Order("period_end DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}
