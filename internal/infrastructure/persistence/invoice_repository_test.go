package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/domain/shared/valueobject"
	"github.com/makao/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupInvoiceTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.InvoiceModel{})
	require.NoError(t, err)

	return db
}

func buildInvoice(t *testing.T, tenantID uuid.UUID, dueDate time.Time, amount string) *ledger.Invoice {
	t.Helper()

	money := valueobject.NewMoneyKES(decimal.RequireFromString(amount))

	item, err := ledger.NewInvoiceLineItem(ledger.LineItemKindRent, "Monthly rent", money)
	require.NoError(t, err)

	periodStart := time.Date(dueDate.Year(), dueDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	inv, err := ledger.NewInvoice(
		uuid.New(),
		"INV-"+periodStart.Format("200601")+"-"+uuid.NewString()[:8],
		tenantID,
		uuid.New(),
		uuid.New(),
		periodStart,
		periodStart.AddDate(0, 1, 0),
		dueDate,
		decimal.Zero,
		[]ledger.InvoiceLineItem{*item},
	)
	require.NoError(t, err)
	return inv
}

func TestGormInvoiceRepository_SaveAndFindByID(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()

	inv := buildInvoice(t, uuid.New(), time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), "12000")
	require.NoError(t, repo.Save(ctx, inv))

	found, err := repo.FindByID(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, inv.InvoiceNumber, found.InvoiceNumber)
	assert.Equal(t, ledger.InvoiceStatusIssued, found.Status)
	assert.True(t, found.Balance.Equal(decimal.RequireFromString("12000")))
	require.Len(t, found.LineItems, 1)
	assert.Equal(t, ledger.LineItemKindRent, found.LineItems[0].Kind)
}

func TestGormInvoiceRepository_FindByID_NotFound(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)

	_, err := repo.FindByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestGormInvoiceRepository_FindByNumber(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()

	inv := buildInvoice(t, uuid.New(), time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), "8000")
	require.NoError(t, repo.Save(ctx, inv))

	t.Run("finds within landlord account", func(t *testing.T) {
		found, err := repo.FindByNumber(ctx, inv.LandlordID, inv.InvoiceNumber)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, inv.ID, found.ID)
	})

	t.Run("nil for unknown number", func(t *testing.T) {
		found, err := repo.FindByNumber(ctx, inv.LandlordID, "INV-NOPE")
		require.NoError(t, err)
		assert.Nil(t, found)
	})

	t.Run("nil for wrong landlord", func(t *testing.T) {
		found, err := repo.FindByNumber(ctx, uuid.New(), inv.InvoiceNumber)
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestGormInvoiceRepository_FindOutstandingByTenant_Ordering(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	march := buildInvoice(t, tenantID, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), "10000")
	february := buildInvoice(t, tenantID, time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), "5000")
	require.NoError(t, repo.Save(ctx, march))
	require.NoError(t, repo.Save(ctx, february))

	// Settled invoices drop out of the outstanding set
	paid := buildInvoice(t, tenantID, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), "4000")
	require.NoError(t, paid.Recalculate(decimal.RequireFromString("4000")))
	require.NoError(t, repo.Save(ctx, paid))

	outstanding, err := repo.FindOutstandingByTenant(ctx, tenantID)
	require.NoError(t, err)
	require.Len(t, outstanding, 2)
	assert.Equal(t, february.ID, outstanding[0].ID)
	assert.Equal(t, march.ID, outstanding[1].ID)
}

func TestGormInvoiceRepository_FindByTenant_Pagination(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	for month := 1; month <= 3; month++ {
		inv := buildInvoice(t, tenantID, time.Date(2026, time.Month(month), 5, 0, 0, 0, 0, time.UTC), "9000")
		require.NoError(t, repo.Save(ctx, inv))
	}

	filter := shared.DefaultFilter()
	filter.PageSize = 2

	invoices, total, err := repo.FindByTenant(ctx, tenantID, filter)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, invoices, 2)
	// Newest period first
	assert.True(t, invoices[0].PeriodStart.After(invoices[1].PeriodStart))
}

func TestGormInvoiceRepository_FindOverdue(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()

	overdue := buildInvoice(t, uuid.New(), time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), "7000")
	require.NoError(t, repo.Save(ctx, overdue))

	current := buildInvoice(t, uuid.New(), time.Date(2026, 4, 5, 0, 0, 0, 0, time.UTC), "7000")
	current.LandlordID = overdue.LandlordID
	require.NoError(t, repo.Save(ctx, current))

	asOf := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	invoices, total, err := repo.FindOverdue(ctx, overdue.LandlordID, asOf, shared.DefaultFilter())
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, invoices, 1)
	assert.Equal(t, overdue.ID, invoices[0].ID)
}

func TestGormInvoiceRepository_ExistsForPeriod(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()

	inv := buildInvoice(t, uuid.New(), time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), "12000")
	require.NoError(t, repo.Save(ctx, inv))

	exists, err := repo.ExistsForPeriod(ctx, inv.TenantID, inv.UnitID, inv.PeriodStart)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = repo.ExistsForPeriod(ctx, inv.TenantID, inv.UnitID, inv.PeriodStart.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.False(t, exists)

	// Voided invoices no longer block the period
	require.NoError(t, inv.Void("issued in error"))
	require.NoError(t, repo.Save(ctx, inv))

	exists, err = repo.ExistsForPeriod(ctx, inv.TenantID, inv.UnitID, inv.PeriodStart)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGormInvoiceRepository_SumOutstandingByTenant(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	first := buildInvoice(t, tenantID, time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), "5000")
	second := buildInvoice(t, tenantID, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), "10000")
	require.NoError(t, repo.Save(ctx, first))
	require.NoError(t, repo.Save(ctx, second))

	total, err := repo.SumOutstandingByTenant(ctx, tenantID)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("15000")), "got %s", total)
}

func TestGormInvoiceRepository_FindIDsPage(t *testing.T) {
	db := setupInvoiceTestDB(t)
	repo := NewGormInvoiceRepository(db)
	ctx := context.Background()

	for month := 1; month <= 3; month++ {
		inv := buildInvoice(t, uuid.New(), time.Date(2026, time.Month(month), 5, 0, 0, 0, 0, time.UTC), "6000")
		require.NoError(t, repo.Save(ctx, inv))
	}

	page1, err := repo.FindIDsPage(ctx, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page1, 2)

	page2, err := repo.FindIDsPage(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, page2, 1)
	assert.NotContains(t, page1, page2[0])
}

func TestGormInvoiceRepository_FindByIDForUpdate(t *testing.T) {
	// Row locking uses SELECT ... FOR UPDATE, which SQLite does not parse.
	// The locking path runs against PostgreSQL in integration tests.
	t.Skip("FOR UPDATE is PostgreSQL-specific, skipping for SQLite")
}
