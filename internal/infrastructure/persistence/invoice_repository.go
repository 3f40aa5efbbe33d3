package persistence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/kost/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceNumberPrefix prefixes every generated invoice number
const InvoiceNumberPrefix = "INV"

const chargeBatchSize = 100

// GormInvoiceRepository implements invoicing.InvoiceRepository and the
// billing engine's issuance store using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// ExistsNonVoidForPeriodStart reports whether the tenant already has a
// non-void invoice starting on periodStart
func (r *GormInvoiceRepository) ExistsNonVoidForPeriodStart(ctx context.Context, tenantID uuid.UUID, periodStart time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("tenant_id = ? AND period_start = ? AND status <> ?", tenantID, periodStart, invoicing.InvoiceStatusVoid).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// IssueWithCharges writes the invoice header, its charges and the final total
// in a single transaction. Any failure rolls back all three.
func (r *GormInvoiceRepository) IssueWithCharges(ctx context.Context, invoice *invoicing.Invoice, charges []invoicing.Charge) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := generateInvoiceNumber(tx, invoice.IssueDate)
		if err != nil {
			return fmt.Errorf("generate invoice number: %w", err)
		}
		invoice.Number = number

		header := models.InvoiceModelFromDomain(invoice)
		header.TotalAmountDue = decimal.Zero
		if err := tx.Create(header).Error; err != nil {
			return fmt.Errorf("create invoice: %w", translateError(err))
		}

		invoice.AttachCharges(charges)
		if len(invoice.Charges) > 0 {
			rows := make([]models.ChargeModel, len(invoice.Charges))
			for i, c := range invoice.Charges {
				rows[i] = models.ChargeModelFromDomain(c)
			}
			if err := tx.CreateInBatches(rows, chargeBatchSize).Error; err != nil {
				return fmt.Errorf("create charges: %w", err)
			}
		}

		if err := tx.Model(&models.InvoiceModel{}).
			Where("id = ?", invoice.ID).
			Update("total_amount_due", invoice.TotalAmountDue).Error; err != nil {
			return fmt.Errorf("update invoice total: %w", err)
		}
		return nil
	})
}

// generateInvoiceNumber returns the next INV-YYYYMM-xxxxx number for the month of issueDate.
// It continues from the highest numeric suffix in use, so gaps and hand-entered
// numbers in the month never produce a colliding number.
func generateInvoiceNumber(tx *gorm.DB, issueDate time.Time) (string, error) {
	prefix := fmt.Sprintf("%s-%s-", InvoiceNumberPrefix, issueDate.Format("200601"))
	var numbers []string
	if err := tx.Model(&models.InvoiceModel{}).
		Where("number LIKE ?", prefix+"%").
		Pluck("number", &numbers).Error; err != nil {
		return "", err
	}
	highest := 0
	for _, number := range numbers {
		seq, err := strconv.Atoi(strings.TrimPrefix(number, prefix))
		if err != nil {
			continue
		}
		highest = max(highest, seq)
	}
	return fmt.Sprintf("%s%05d", prefix, highest+1), nil
}

// FindByID finds an invoice with its charges
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*invoicing.Invoice, error) {
	var model models.InvoiceModel
	err := r.db.WithContext(ctx).
		Preload("Charges", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		First(&model, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// List returns a page of invoices and the total matching count
func (r *GormInvoiceRepository) List(ctx context.Context, filter invoicing.InvoiceFilter) ([]invoicing.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{})
	if filter.TenantID != nil {
		query = query.Where("tenant_id = ?", *filter.TenantID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	orderBy := ValidateSortField(filter.OrderBy, InvoiceSortFields, "period_start")
	orderDir := ValidateSortOrder(filter.OrderDir)

	var rows []models.InvoiceModel
	if err := query.
		Order(orderBy + " " + orderDir).
		Offset(filter.Offset()).
		Limit(filter.PageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	invoices := make([]invoicing.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices, total, nil
}

// Save updates the invoice header with an optimistic version check.
// Charges are immutable and never rewritten.
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *invoicing.Invoice) error {
	return saveInvoiceHeader(r.db.WithContext(ctx), invoice)
}

func saveInvoiceHeader(db *gorm.DB, invoice *invoicing.Invoice) error {
	expectedVersion := invoice.GetVersion() - 1
	result := db.Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", invoice.ID, expectedVersion).
		Updates(map[string]any{
			"status":            invoice.Status,
			"total_amount_paid": invoice.TotalAmountPaid,
			"update_by":         invoice.UpdateBy,
			"updated_at":        invoice.UpdatedAt,
			"version":           invoice.Version,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrConcurrencyConflict
	}
	return nil
}

// RecordPayment stores the payment and the updated invoice header atomically
func (r *GormInvoiceRepository) RecordPayment(ctx context.Context, invoice *invoicing.Invoice, payment *invoicing.Transaction) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.TransactionModelFromDomain(payment)).Error; err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		return saveInvoiceHeader(tx, invoice)
	})
}

// ListPayments returns the payments recorded against an invoice, oldest first
func (r *GormInvoiceRepository) ListPayments(ctx context.Context, invoiceID uuid.UUID) ([]invoicing.Transaction, error) {
	var rows []models.TransactionModel
	if err := r.db.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("date ASC, created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	payments := make([]invoicing.Transaction, len(rows))
	for i := range rows {
		payments[i] = *rows[i].ToDomain()
	}
	return payments, nil
}
