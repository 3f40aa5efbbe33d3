//go:build integration

package persistence

import (
	"context"
	"database/sql"
	"testing"
	"time"

	appbilling "github.com/kost/backend/internal/application/billing"
	"github.com/kost/backend/internal/domain/billing"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/kost/backend/internal/infrastructure/migration"
	"github.com/kost/backend/migrations"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap/zaptest"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupPostgres starts a throwaway PostgreSQL container, applies the embedded
// migrations and returns a gorm handle on it
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("kost_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// the migrator closes its connection pool, so it gets its own
	migrateDB, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	m, err := migration.New(migrateDB, migrations.FS, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, m.Up())
	require.NoError(t, m.Close())

	db, err := gorm.Open(gormpostgres.Open(dsn), GormConfig(logger.Discard))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func TestPostgres_BillingPassIssuesInvoice(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	db := setupPostgres(t)
	ctx := context.Background()

	s := seedTenant(t, db, "P-01", 750000, additionalCost("Parking", 100000))
	seedInvoice(t, db, s, "INV-202403-00001", shared.Date(2024, 3, 1), shared.Date(2024, 3, 31), invoicing.InvoiceStatusPaid)

	orchestrator := newGormOrchestrator(t, db, time.Date(2024, 3, 26, 1, 0, 0, 0, time.UTC))
	result, err := orchestrator.RunPass(ctx, appbilling.PassOptions{Trigger: billing.TriggerCLI, Force: true})
	require.NoError(t, err)
	require.Equal(t, 1, result.Issued)
	require.NotNil(t, result.Results[0].InvoiceID)

	inv, err := NewGormInvoiceRepository(db).FindByID(ctx, *result.Results[0].InvoiceID)
	require.NoError(t, err)
	assert.True(t, inv.PeriodStart.Equal(shared.Date(2024, 4, 1)), "start = %s", inv.PeriodStart)
	assert.True(t, inv.PeriodEnd.Equal(shared.Date(2024, 4, 30)), "end = %s", inv.PeriodEnd)
	assert.True(t, inv.TotalAmountDue.Equal(decimal.NewFromInt(850000)))
	assert.Len(t, inv.Charges, 2)

	runs, err := orchestrator.RecentRuns(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, billing.RunStatusCompleted, runs[0].Status)
	assert.Equal(t, 1, runs[0].Issued)
}

func TestPostgres_ActivePeriodIndexRejectsDuplicate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	db := setupPostgres(t)
	ctx := context.Background()
	repo := NewGormInvoiceRepository(db)

	s := seedTenant(t, db, "P-02", 500000)
	params := invoicing.IssueParams{
		TenantID:    s.tenant.ID,
		RoomID:      s.room.ID,
		PeriodStart: shared.Date(2024, 5, 1),
		PeriodEnd:   shared.Date(2024, 5, 31),
		IssueDate:   shared.Date(2024, 4, 26),
		DueDate:     shared.Date(2024, 5, 1),
		Actor:       shared.SystemActor,
	}
	charges := []invoicing.Charge{invoicing.NewDebitCharge("Base Rent", "Monthly room rent", decimal.NewFromInt(500000))}

	first, err := invoicing.NewIssuedInvoice(params)
	require.NoError(t, err)
	require.NoError(t, repo.IssueWithCharges(ctx, first, charges))

	dup, err := invoicing.NewIssuedInvoice(params)
	require.NoError(t, err)
	err = repo.IssueWithCharges(ctx, dup, charges)
	assert.ErrorIs(t, err, shared.ErrAlreadyExists)
	assert.Equal(t, int64(1), countInvoices(t, repo, s.tenant.ID))

	// voiding the first frees the period again
	require.NoError(t, first.Void("admin", time.Now()))
	require.NoError(t, repo.Save(ctx, first))

	reissue, err := invoicing.NewIssuedInvoice(params)
	require.NoError(t, err)
	require.NoError(t, repo.IssueWithCharges(ctx, reissue, charges))
	assert.Equal(t, int64(2), countInvoices(t, repo, s.tenant.ID))
}
