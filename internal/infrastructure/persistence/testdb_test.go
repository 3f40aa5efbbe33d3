package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kost/backend/internal/domain/invoicing"
	"github.com/kost/backend/internal/domain/shared"
	"github.com/kost/backend/internal/domain/tenancy"
	"github.com/kost/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens an in-memory SQLite database with every billing table migrated.
// A single connection keeps the in-memory database shared across queries.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), GormConfig(logger.Discard))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.RoomModel{},
		&models.PriceModel{},
		&models.AdditionalPriceModel{},
		&models.OtherCostModel{},
		&models.TenantModel{},
		&models.InvoiceModel{},
		&models.ChargeModel{},
		&models.TransactionModel{},
		&models.BillingRunModel{},
	))
	return db
}

type seededTenant struct {
	room   *tenancy.Room
	tenant *tenancy.Tenant
}

// seedTenant stores a room with a base rent plus the given additional prices
// and an active tenant living in it
func seedTenant(t *testing.T, db *gorm.DB, roomName string, base int64, extras ...tenancy.CostItem) seededTenant {
	t.Helper()
	ctx := context.Background()

	room, err := tenancy.NewRoom(roomName, tenancy.RoomSizeMedium)
	require.NoError(t, err)
	price, err := tenancy.NewCostItem(room.ID, "Base Rent", "Monthly room rent", decimal.NewFromInt(base))
	require.NoError(t, err)
	room.Prices = append(room.Prices, tenancy.Price{CostItem: price})
	for _, extra := range extras {
		extra.RoomID = room.ID
		room.AdditionalPrices = append(room.AdditionalPrices, tenancy.AdditionalPrice{CostItem: extra})
	}
	require.NoError(t, NewGormRoomRepository(db).Save(ctx, room))

	tenant, err := tenancy.NewTenant(room.ID, "Tenant "+roomName, "08123456789", shared.Date(2023, 6, 1))
	require.NoError(t, err)
	require.NoError(t, tenant.Activate(time.Now()))
	require.NoError(t, NewGormTenantRepository(db).Save(ctx, tenant))

	return seededTenant{room: room, tenant: tenant}
}

// seedInvoice stores a historical invoice without charges
func seedInvoice(t *testing.T, db *gorm.DB, s seededTenant, number string, start, end time.Time, status invoicing.InvoiceStatus) *invoicing.Invoice {
	t.Helper()
	inv, err := invoicing.NewIssuedInvoice(invoicing.IssueParams{
		TenantID:    s.tenant.ID,
		RoomID:      s.room.ID,
		PeriodStart: start,
		PeriodEnd:   end,
		IssueDate:   start,
		DueDate:     start.AddDate(0, 0, 7),
		Actor:       "admin",
	})
	require.NoError(t, err)
	inv.Number = number
	inv.Status = status
	require.NoError(t, db.Create(models.InvoiceModelFromDomain(inv)).Error)
	return inv
}

// additionalCost builds an active cost definition; seedTenant fills in the room
func additionalCost(name string, amount int64) tenancy.CostItem {
	return tenancy.CostItem{
		ID:     uuid.New(),
		Name:   name,
		Amount: decimal.NewFromInt(amount),
		Status: tenancy.CostStatusActive,
	}
}
