package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormMpesaTransactionRepository implements mpesa.TransactionRepository using GORM
type GormMpesaTransactionRepository struct {
	db *gorm.DB
}

// NewGormMpesaTransactionRepository creates a new GormMpesaTransactionRepository
func NewGormMpesaTransactionRepository(db *gorm.DB) *GormMpesaTransactionRepository {
	return &GormMpesaTransactionRepository{db: db}
}

// Save persists a transaction (create or update)
func (r *GormMpesaTransactionRepository) Save(ctx context.Context, tx *mpesa.Transaction) error {
	model := models.MpesaTransactionModelFromDomain(tx)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a transaction by its ID
func (r *GormMpesaTransactionRepository) FindByID(ctx context.Context, id uuid.UUID) (*mpesa.Transaction, error) {
	var model models.MpesaTransactionModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate finds a transaction by ID and row-locks it
func (r *GormMpesaTransactionRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*mpesa.Transaction, error) {
	var model models.MpesaTransactionModel
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

// FindByCheckoutID finds a push transaction by the provider's in-flight
// identifier. Returns nil without error when the identifier matches nothing.
func (r *GormMpesaTransactionRepository) FindByCheckoutID(ctx context.Context, checkoutID string) (*mpesa.Transaction, error) {
	return r.findByCheckoutID(r.db.WithContext(ctx), checkoutID)
}

// FindByCheckoutIDForUpdate is FindByCheckoutID with a row lock, for callback
// processing
func (r *GormMpesaTransactionRepository) FindByCheckoutIDForUpdate(ctx context.Context, checkoutID string) (*mpesa.Transaction, error) {
	return r.findByCheckoutID(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), checkoutID)
}

func (r *GormMpesaTransactionRepository) findByCheckoutID(db *gorm.DB, checkoutID string) (*mpesa.Transaction, error) {
	if checkoutID == "" {
		return nil, nil
	}
	var model models.MpesaTransactionModel
	if err := db.Where("checkout_id = ?", checkoutID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByProviderReference finds a transaction by its receipt number.
// Returns nil without error when the receipt matches nothing.
func (r *GormMpesaTransactionRepository) FindByProviderReference(ctx context.Context, providerReference string) (*mpesa.Transaction, error) {
	if providerReference == "" {
		return nil, nil
	}
	var model models.MpesaTransactionModel
	if err := r.db.WithContext(ctx).
		Where("provider_reference = ?", providerReference).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindStuckOlderThan lists transactions that have waited on a provider
// result since before the cutoff, oldest first. Initiated rows count too:
// they cover send attempts the provider never answered.
func (r *GormMpesaTransactionRepository) FindStuckOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]mpesa.Transaction, error) {
	var txModels []models.MpesaTransactionModel
	statuses := []mpesa.TransactionStatus{mpesa.TransactionStatusInitiated, mpesa.TransactionStatusPending}
	query := r.db.WithContext(ctx).
		Where("status IN ? AND initiated_at < ?", statuses, cutoff).
		Order("initiated_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&txModels).Error; err != nil {
		return nil, err
	}
	return toDomainTransactions(txModels), nil
}

// FindByLandlord lists a landlord's transactions newest first
func (r *GormMpesaTransactionRepository) FindByLandlord(ctx context.Context, landlordID uuid.UUID, filter shared.Filter) ([]mpesa.Transaction, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.MpesaTransactionModel{}).
		Where("landlord_id = ?", landlordID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txModels []models.MpesaTransactionModel
	if err := query.
		Order("initiated_at DESC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&txModels).Error; err != nil {
		return nil, 0, err
	}

	return toDomainTransactions(txModels), total, nil
}

func toDomainTransactions(txModels []models.MpesaTransactionModel) []mpesa.Transaction {
	txs := make([]mpesa.Transaction, len(txModels))
	for i, model := range txModels {
		txs[i] = *model.ToDomain()
	}
	return txs
}

// Ensure GormMpesaTransactionRepository implements TransactionRepository
var _ mpesa.TransactionRepository = (*GormMpesaTransactionRepository)(nil)
