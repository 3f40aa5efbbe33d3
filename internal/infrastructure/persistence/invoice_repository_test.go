package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/kost/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPeriodInvoice(t *testing.T, s seededTenant, start, end time.Time) *invoicing.Invoice {
	t.Helper()
	inv, err := invoicing.NewIssuedInvoice(invoicing.IssueParams{
		TenantID:    s.tenant.ID,
		RoomID:      s.room.ID,
		PeriodStart: start,
		PeriodEnd:   end,
		IssueDate:   shared.Date(2024, 1, 25),
		DueDate:     shared.Date(2024, 2, 1),
		Actor:       shared.SystemActor,
	})
	require.NoError(t, err)
	return inv
}

func rentCharges() []invoicing.Charge {
	return []invoicing.Charge{
		invoicing.NewDebitCharge("Base Rent", "Monthly room rent", decimal.NewFromInt(500000)),
		invoicing.NewDebitCharge("WiFi", "", decimal.NewFromInt(50000)),
	}
}

func countInvoices(t *testing.T, repo *GormInvoiceRepository, tenantID uuid.UUID) int64 {
	t.Helper()
	_, total, err := repo.List(context.Background(), invoicing.InvoiceFilter{
		Filter:   shared.DefaultFilter(),
		TenantID: &tenantID,
	})
	require.NoError(t, err)
	return total
}

func TestGormInvoiceRepository_IssueWithCharges(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormInvoiceRepository(db)
	s := seedTenant(t, db, "D-01", 500000)

	inv := newPeriodInvoice(t, s, shared.Date(2024, 2, 1), shared.Date(2024, 2, 29))
	require.NoError(t, repo.IssueWithCharges(ctx, inv, rentCharges()))

	assert.Equal(t, "INV-202401-00001", inv.Number)
	assert.True(t, inv.TotalAmountDue.Equal(decimal.NewFromInt(550000)))

	found, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.Number, found.Number)
	assert.Equal(t, invoicing.InvoiceStatusIssued, found.Status)
	assert.True(t, found.TotalAmountDue.Equal(decimal.NewFromInt(550000)), "total = %s", found.TotalAmountDue)
	assert.True(t, found.PeriodStart.Equal(shared.Date(2024, 2, 1)))
	assert.True(t, found.PeriodEnd.Equal(shared.Date(2024, 2, 29)))
	assert.Equal(t, shared.SystemActor.String(), found.CreateBy)
	require.Len(t, found.Charges, 2)
	assert.True(t, found.ChargesTotal().Equal(found.TotalAmountDue))
	for _, c := range found.Charges {
		assert.Equal(t, inv.ID, c.InvoiceID)
		assert.Equal(t, invoicing.TransactionTypeDebit, c.TransactionType)
	}

	second := newPeriodInvoice(t, s, shared.Date(2024, 3, 1), shared.Date(2024, 3, 31))
	require.NoError(t, repo.IssueWithCharges(ctx, second, rentCharges()))
	assert.Equal(t, "INV-202401-00002", second.Number)
}

func TestGormInvoiceRepository_IssueWithCharges_NumberSkipsGaps(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormInvoiceRepository(db)
	old := seedTenant(t, db, "D-05", 500000)
	s := seedTenant(t, db, "D-06", 500000)

	// a hand-numbered invoice leaves 00001 unused and a non-numeric suffix
	seedInvoice(t, db, old, "INV-202401-00002", shared.Date(2023, 12, 1), shared.Date(2023, 12, 31), invoicing.InvoiceStatusPaid)
	seedInvoice(t, db, old, "INV-202401-MANUAL", shared.Date(2023, 11, 1), shared.Date(2023, 11, 30), invoicing.InvoiceStatusPaid)

	inv := newPeriodInvoice(t, s, shared.Date(2024, 2, 1), shared.Date(2024, 2, 29))
	require.NoError(t, repo.IssueWithCharges(ctx, inv, rentCharges()))
	assert.Equal(t, "INV-202401-00003", inv.Number)
}

func TestGormInvoiceRepository_IssueWithCharges_DuplicatePeriod(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormInvoiceRepository(db)
	s := seedTenant(t, db, "D-02", 500000)

	first := newPeriodInvoice(t, s, shared.Date(2024, 2, 1), shared.Date(2024, 2, 29))
	require.NoError(t, repo.IssueWithCharges(ctx, first, rentCharges()))

	dup := newPeriodInvoice(t, s, shared.Date(2024, 2, 1), shared.Date(2024, 2, 29))
	err := repo.IssueWithCharges(ctx, dup, rentCharges())
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrAlreadyExists), "got %v", err)

	assert.Equal(t, int64(1), countInvoices(t, repo, s.tenant.ID))
	var charges int64
	require.NoError(t, db.Model(&models.ChargeModel{}).Count(&charges).Error)
	assert.Equal(t, int64(2), charges)
}

func TestGormInvoiceRepository_IssueWithCharges_AfterVoid(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormInvoiceRepository(db)
	s := seedTenant(t, db, "D-03", 500000)

	first := newPeriodInvoice(t, s, shared.Date(2024, 2, 1), shared.Date(2024, 2, 29))
	require.NoError(t, repo.IssueWithCharges(ctx, first, rentCharges()))
	require.NoError(t, first.Void("admin", time.Now()))
	require.NoError(t, repo.Save(ctx, first))

	exists, err := repo.ExistsNonVoidForPeriodStart(ctx, s.tenant.ID, shared.Date(2024, 2, 1))
	require.NoError(t, err)
	assert.False(t, exists)

	again := newPeriodInvoice(t, s, shared.Date(2024, 2, 1), shared.Date(2024, 2, 29))
	require.NoError(t, repo.IssueWithCharges(ctx, again, rentCharges()))

	exists, err = repo.ExistsNonVoidForPeriodStart(ctx, s.tenant.ID, shared.Date(2024, 2, 1))
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, int64(2), countInvoices(t, repo, s.tenant.ID))
}

func TestGormInvoiceRepository_IssueWithCharges_RollsBackOnChargeFailure(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormInvoiceRepository(db)
	s := seedTenant(t, db, "D-04", 500000)

	require.NoError(t, db.Migrator().DropTable(&models.ChargeModel{}))

	inv := newPeriodInvoice(t, s, shared.Date(2024, 2, 1), shared.Date(2024, 2, 29))
	err := repo.IssueWithCharges(ctx, inv, rentCharges())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create charges")

	assert.Equal(t, int64(0), countInvoices(t, repo, s.tenant.ID))
	exists, err := repo.ExistsNonVoidForPeriodStart(ctx, s.tenant.ID, shared.Date(2024, 2, 1))
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGormInvoiceRepository_IssueWithCharges_NumberQueryFails(t *testing.T) {
	database, mock, _ := newMockDatabase(t)
	repo := NewGormInvoiceRepository(database.DB)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .*number.* FROM "invoices" WHERE number LIKE`).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	inv, err := invoicing.NewIssuedInvoice(invoicing.IssueParams{
		TenantID:    uuid.New(),
		PeriodStart: shared.Date(2024, 2, 1),
		PeriodEnd:   shared.Date(2024, 2, 29),
		IssueDate:   shared.Date(2024, 1, 25),
		DueDate:     shared.Date(2024, 2, 1),
	})
	require.NoError(t, err)

	err = repo.IssueWithCharges(context.Background(), inv, rentCharges())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate invoice number")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormInvoiceRepository_ExistsNonVoidForPeriodStart_Mock(t *testing.T) {
	database, mock, _ := newMockDatabase(t)
	repo := NewGormInvoiceRepository(database.DB)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "invoices" WHERE .*tenant_id = \$1 AND period_start = \$2 AND status <> \$3`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "Void").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	exists, err := repo.ExistsNonVoidForPeriodStart(context.Background(), uuid.New(), shared.Date(2024, 2, 1))
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormInvoiceRepository_FindByID_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := NewGormInvoiceRepository(db).FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormInvoiceRepository_RecordPayment(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormInvoiceRepository(db)
	s := seedTenant(t, db, "E-01", 500000)

	inv := newPeriodInvoice(t, s, shared.Date(2024, 2, 1), shared.Date(2024, 2, 29))
	require.NoError(t, repo.IssueWithCharges(ctx, inv, rentCharges()))

	amount := decimal.NewFromInt(200000)
	require.NoError(t, inv.ApplyPayment(amount, "admin", time.Now()))
	payment, err := invoicing.NewTransaction(inv.ID, amount, shared.Date(2024, 2, 3), invoicing.PaymentMethodTransfer, "proofs/e-01.jpg", "first half", "admin")
	require.NoError(t, err)
	require.NoError(t, repo.RecordPayment(ctx, inv, payment))

	found, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicing.InvoiceStatusPartiallyPaid, found.Status)
	assert.True(t, found.TotalAmountPaid.Equal(amount))
	assert.True(t, found.Outstanding().Equal(decimal.NewFromInt(350000)))
	assert.Equal(t, inv.Version, found.Version)

	payments, err := repo.ListPayments(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Amount.Equal(amount))
	assert.Equal(t, "proofs/e-01.jpg", payments[0].ProofKey)
}

func TestGormInvoiceRepository_Save_VersionConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormInvoiceRepository(db)
	s := seedTenant(t, db, "E-02", 500000)

	inv := newPeriodInvoice(t, s, shared.Date(2024, 2, 1), shared.Date(2024, 2, 29))
	require.NoError(t, repo.IssueWithCharges(ctx, inv, rentCharges()))

	stale, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)

	require.NoError(t, inv.Void("admin", time.Now()))
	require.NoError(t, repo.Save(ctx, inv))

	require.NoError(t, stale.ApplyPayment(decimal.NewFromInt(1000), "admin", time.Now()))
	err = repo.Save(ctx, stale)
	assert.ErrorIs(t, err, shared.ErrConcurrencyConflict)

	found, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invoicing.InvoiceStatusVoid, found.Status)
}

func TestGormInvoiceRepository_List(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	repo := NewGormInvoiceRepository(db)
	a := seedTenant(t, db, "F-01", 500000)
	b := seedTenant(t, db, "F-02", 500000)

	seedInvoice(t, db, a, "INV-202312-00001", shared.Date(2023, 12, 1), shared.Date(2023, 12, 31), invoicing.InvoiceStatusPaid)
	seedInvoice(t, db, a, "INV-202401-00001", shared.Date(2024, 1, 1), shared.Date(2024, 1, 31), invoicing.InvoiceStatusIssued)
	seedInvoice(t, db, b, "INV-202401-00002", shared.Date(2024, 1, 1), shared.Date(2024, 1, 31), invoicing.InvoiceStatusIssued)

	filter := invoicing.InvoiceFilter{Filter: shared.DefaultFilter(), TenantID: &a.tenant.ID}
	filter.OrderBy = "period_start"
	filter.OrderDir = "desc"
	invoices, total, err := repo.List(ctx, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, invoices, 2)
	assert.Equal(t, "INV-202401-00001", invoices[0].Number)

	issued := invoicing.InvoiceStatusIssued
	invoices, total, err = repo.List(ctx, invoicing.InvoiceFilter{Filter: shared.DefaultFilter(), Status: &issued})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, invoices, 2)

	page := shared.DefaultFilter()
	page.PageSize = 1
	page.OrderBy = "number; DROP TABLE invoices"
	invoices, total, err = repo.List(ctx, invoicing.InvoiceFilter{Filter: page})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, invoices, 1)
}
