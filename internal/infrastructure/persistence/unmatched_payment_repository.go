package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormUnmatchedPaymentRepository implements mpesa.UnmatchedPaymentRepository using GORM
type GormUnmatchedPaymentRepository struct {
	db *gorm.DB
}

// NewGormUnmatchedPaymentRepository creates a new GormUnmatchedPaymentRepository
func NewGormUnmatchedPaymentRepository(db *gorm.DB) *GormUnmatchedPaymentRepository {
	return &GormUnmatchedPaymentRepository{db: db}
}

// Save persists an unmatched payment (create or update)
func (r *GormUnmatchedPaymentRepository) Save(ctx context.Context, up *mpesa.UnmatchedPayment) error {
	model := models.UnmatchedPaymentModelFromDomain(up)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds an unmatched payment by its ID
func (r *GormUnmatchedPaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*mpesa.UnmatchedPayment, error) {
	var model models.UnmatchedPaymentModel
	if err := r.db.WithContext(ctx).
		First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByIDForUpdate finds an unmatched payment by ID and row-locks it
func (r *GormUnmatchedPaymentRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*mpesa.UnmatchedPayment, error) {
	var model models.UnmatchedPaymentModel
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

// FindByExternalReference finds an unmatched payment by receipt number.
// Returns nil without error when the receipt matches nothing.
func (r *GormUnmatchedPaymentRepository) FindByExternalReference(ctx context.Context, externalReference string) (*mpesa.UnmatchedPayment, error) {
	if externalReference == "" {
		return nil, nil
	}
	var model models.UnmatchedPaymentModel
	if err := r.db.WithContext(ctx).
		Where("external_reference = ?", externalReference).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByStatus lists unmatched payments in a given status, oldest first
func (r *GormUnmatchedPaymentRepository) FindByStatus(ctx context.Context, status mpesa.UnmatchedStatus, filter shared.Filter) ([]mpesa.UnmatchedPayment, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.UnmatchedPaymentModel{}).
		Where("status = ?", status)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var upModels []models.UnmatchedPaymentModel
	if err := query.
		Order("received_at ASC").
		Offset(filter.Offset()).
		Limit(filter.Limit()).
		Find(&upModels).Error; err != nil {
		return nil, 0, err
	}

	ups := make([]mpesa.UnmatchedPayment, len(upModels))
	for i, model := range upModels {
		ups[i] = *model.ToDomain()
	}
	return ups, total, nil
}

// CountOpen counts deposits still awaiting attention
func (r *GormUnmatchedPaymentRepository) CountOpen(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.UnmatchedPaymentModel{}).
		Where("status IN ?", []mpesa.UnmatchedStatus{mpesa.UnmatchedStatusOpen, mpesa.UnmatchedStatusUnderReview}).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Ensure GormUnmatchedPaymentRepository implements UnmatchedPaymentRepository
var _ mpesa.UnmatchedPaymentRepository = (*GormUnmatchedPaymentRepository)(nil)
