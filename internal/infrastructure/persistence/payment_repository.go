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

// GormPaymentRepository implements ledger.PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewGormPaymentRepository creates a new GormPaymentRepository
func NewGormPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// Save persists a payment together with its allocation records
func (r *GormPaymentRepository) Save(ctx context.Context, payment *ledger.Payment) error {
	model := models.PaymentModelFromDomain(payment)
	return r.db.WithContext(ctx).
		Session(&gorm.Session{FullSaveAssociations: true}).
		Save(model).Error
}

// FindByID finds a payment with its allocations by ID
func (r *GormPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*ledger.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).
		Preload("Allocations").
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate finds a payment by ID and row-locks it. Only the payment
// row itself is locked; allocations follow the aggregate.
func (r *GormPaymentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*ledger.Payment, error) {
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Table: clause.Table{Name: models.PaymentModel{}.TableName()}}).
		Preload("Allocations").
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByExternalReference finds a payment by its provider receipt number.
// Returns nil without error when the reference matches nothing.
func (r *GormPaymentRepository) FindByExternalReference(ctx context.Context, externalReference string) (*ledger.Payment, error) {
	if externalReference == "" {
		return nil, nil
	}
	var model models.PaymentModel
	if err := r.db.WithContext(ctx).
		Preload("Allocations").
		Where("external_reference = ?", externalReference).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByTenant lists a tenant's payments within a date range, newest first
func (r *GormPaymentRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time, filter shared.Filter) ([]ledger.Payment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.PaymentModel{}).
		Where("tenant_id = ?", tenantID)
	if !from.IsZero() {
		query = query.Where("payment_date >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("payment_date <= ?", to)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var paymentModels []models.PaymentModel
	if err := query.
		Preload("Allocations").
		Order("payment_date DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&paymentModels).Error; err != nil {
		return nil, 0, err
	}

	return toDomainPayments(paymentModels), total, nil
}

// FindWithUnallocatedFunds lists payments carrying credit for a tenant,
// oldest first so credits are consumed in arrival order
func (r *GormPaymentRepository) FindWithUnallocatedFunds(ctx context.Context, tenantID uuid.UUID) ([]ledger.Payment, error) {
	var paymentModels []models.PaymentModel
	if err := r.db.WithContext(ctx).
		Preload("Allocations").
		Where("tenant_id = ? AND unallocated_amount > 0 AND status = ?", tenantID, ledger.PaymentStatusCompleted).
		Order("payment_date ASC").
		Find(&paymentModels).Error; err != nil {
		return nil, err
	}
	return toDomainPayments(paymentModels), nil
}

// SumActiveAllocationsByInvoice returns the active allocation total against one invoice
func (r *GormPaymentRepository) SumActiveAllocationsByInvoice(ctx context.Context, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var result struct {
		Total decimal.Decimal
	}
	if err := r.db.WithContext(ctx).Model(&models.PaymentAllocationModel{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("invoice_id = ? AND status = ?", invoiceID, ledger.AllocationStatusActive).
		Scan(&result).Error; err != nil {
		return decimal.Zero, err
	}
	return result.Total, nil
}

// SumActiveAllocationsByInvoices returns active allocation totals for a set
// of invoices in one query
func (r *GormPaymentRepository) SumActiveAllocationsByInvoices(ctx context.Context, invoiceIDs []uuid.UUID) (map[uuid.UUID]decimal.Decimal, error) {
	totals := make(map[uuid.UUID]decimal.Decimal, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return totals, nil
	}

	var rows []struct {
		InvoiceID uuid.UUID
		Total     decimal.Decimal
	}
	if err := r.db.WithContext(ctx).Model(&models.PaymentAllocationModel{}).
		Select("invoice_id, COALESCE(SUM(amount), 0) AS total").
		Where("invoice_id IN ? AND status = ?", invoiceIDs, ledger.AllocationStatusActive).
		Group("invoice_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	for _, row := range rows {
		totals[row.InvoiceID] = row.Total
	}
	// Invoices with no active allocations still get an entry
	for _, id := range invoiceIDs {
		if _, ok := totals[id]; !ok {
			totals[id] = decimal.Zero
		}
	}
	return totals, nil
}

// CountActiveAllocationsByInvoice counts active allocations against an
// invoice, used to guard voiding
func (r *GormPaymentRepository) CountActiveAllocationsByInvoice(ctx context.Context, invoiceID uuid.UUID) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PaymentAllocationModel{}).
		Where("invoice_id = ? AND status = ?", invoiceID, ledger.AllocationStatusActive).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func toDomainPayments(paymentModels []models.PaymentModel) []ledger.Payment {
	payments := make([]ledger.Payment, len(paymentModels))
	for i, model := range paymentModels {
		payments[i] = *model.ToDomain()
	}
	return payments
}

// Ensure GormPaymentRepository implements PaymentRepository
var _ ledger.PaymentRepository = (*GormPaymentRepository)(nil)
