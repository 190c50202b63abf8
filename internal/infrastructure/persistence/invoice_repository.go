package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/infrastructure/persistence/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormInvoiceRepository implements ledger.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db *gorm.DB
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{db: db}
}

// Save persists an invoice (create or update)
func (r *GormInvoiceRepository) Save(ctx context.Context, invoice *ledger.Invoice) error {
	model := models.InvoiceModelFromDomain(invoice)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds an invoice by its ID
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate finds an invoice by ID and row-locks it for the duration
// of the surrounding transaction
func (r *GormInvoiceRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByNumber finds an invoice by its number within a landlord account.
// Returns nil without error when the number matches nothing.
func (r *GormInvoiceRepository) FindByNumber(ctx context.Context, landlordID uuid.UUID, invoiceNumber string) (*ledger.Invoice, error) {
	var model models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("landlord_id = ? AND invoice_number = ?", landlordID, invoiceNumber).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTenant lists a tenant's invoices, newest period first
func (r *GormInvoiceRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]ledger.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("tenant_id = ?", tenantID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoiceModels []models.InvoiceModel
	if err := query.
		Order("period_start DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&invoiceModels).Error; err != nil {
		return nil, 0, err
	}

	return toDomainInvoices(invoiceModels), total, nil
}

// FindOutstandingByTenant lists open invoices for a tenant ordered oldest due
// date first, invoice ID as tie break
func (r *GormInvoiceRepository) FindOutstandingByTenant(ctx context.Context, tenantID uuid.UUID) ([]ledger.Invoice, error) {
	return r.findOutstanding(r.db.WithContext(ctx), tenantID)
}

// FindOutstandingByTenantForUpdate is FindOutstandingByTenant with row locks,
// for use inside an allocation transaction
func (r *GormInvoiceRepository) FindOutstandingByTenantForUpdate(ctx context.Context, tenantID uuid.UUID) ([]ledger.Invoice, error) {
	return r.findOutstanding(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), tenantID)
}

func (r *GormInvoiceRepository) findOutstanding(db *gorm.DB, tenantID uuid.UUID) ([]ledger.Invoice, error) {
	var invoiceModels []models.InvoiceModel
	if err := db.
		Where("tenant_id = ? AND status IN ? AND balance > 0", tenantID,
			[]ledger.InvoiceStatus{ledger.InvoiceStatusIssued, ledger.InvoiceStatusPartiallyPaid}).
		Order("due_date ASC, id ASC").
		Find(&invoiceModels).Error; err != nil {
		return nil, err
	}
	return toDomainInvoices(invoiceModels), nil
}

// FindOverdue lists unsettled invoices past due as of the given time. A nil
// landlordID lifts the landlord scope for system-wide passes.
func (r *GormInvoiceRepository) FindOverdue(ctx context.Context, landlordID uuid.UUID, asOf time.Time, filter shared.Filter) ([]ledger.Invoice, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("due_date < ? AND status IN ?", asOf,
			[]ledger.InvoiceStatus{ledger.InvoiceStatusIssued, ledger.InvoiceStatusPartiallyPaid})
	if landlordID != uuid.Nil {
		query = query.Where("landlord_id = ?", landlordID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var invoiceModels []models.InvoiceModel
	if err := query.
		Order("due_date ASC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&invoiceModels).Error; err != nil {
		return nil, 0, err
	}

	return toDomainInvoices(invoiceModels), total, nil
}

// FindIDsPage returns a page of invoice IDs for batch recalculation
func (r *GormInvoiceRepository) FindIDsPage(ctx context.Context, offset, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Order("id ASC").
		Offset(offset).
		Limit(limit).
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ExistsForPeriod reports whether an invoice already covers the unit and
// period start. Voided invoices do not count.
func (r *GormInvoiceRepository) ExistsForPeriod(ctx context.Context, tenantID, unitID uuid.UUID, periodStart time.Time) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Where("tenant_id = ? AND unit_id = ? AND period_start = ? AND status <> ?",
			tenantID, unitID, periodStart, ledger.InvoiceStatusVoid).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SumOutstandingByTenant returns the total open balance across a tenant's invoices
func (r *GormInvoiceRepository) SumOutstandingByTenant(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).
		Select("COALESCE(SUM(balance), 0) AS total").
		Where("tenant_id = ? AND status IN ?", tenantID,
			[]ledger.InvoiceStatus{ledger.InvoiceStatusIssued, ledger.InvoiceStatusPartiallyPaid}).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

func toDomainInvoices(invoiceModels []models.InvoiceModel) []ledger.Invoice {
	invoices := make([]ledger.Invoice, len(invoiceModels))
	for i, model := range invoiceModels {
		invoices[i] = *model.ToDomain()
	}
	return invoices
}

// Ensure GormInvoiceRepository implements InvoiceRepository
var _ ledger.InvoiceRepository = (*GormInvoiceRepository)(nil)
