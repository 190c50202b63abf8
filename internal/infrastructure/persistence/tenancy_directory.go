package persistence

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormTenancyDirectory implements ledger.TenancyDirectory over the
// tenancies read table. The ledger never writes through it.
type GormTenancyDirectory struct {
	db *gorm.DB
}

// NewGormTenancyDirectory creates a new GormTenancyDirectory
func NewGormTenancyDirectory(db *gorm.DB) *GormTenancyDirectory {
	return &GormTenancyDirectory{db: db}
}

// FindByTenantID retrieves the active tenancy for a tenant
func (d *GormTenancyDirectory) FindByTenantID(ctx context.Context, tenantID uuid.UUID) (*ledger.Tenancy, error) {
	var model models.TenancyModel
	if err := d.db.WithContext(ctx).
		Where("tenant_id = ? AND active", tenantID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByUnitCode resolves a paybill account reference to a tenancy.
// Matching ignores case and surrounding whitespace since payers type the
// code by hand. Returns nil without error when the code matches nothing.
func (d *GormTenancyDirectory) FindByUnitCode(ctx context.Context, unitCode string) (*ledger.Tenancy, error) {
	unitCode = strings.TrimSpace(unitCode)
	if unitCode == "" {
		return nil, nil
	}
	var model models.TenancyModel
	if err := d.db.WithContext(ctx).
		Where("UPPER(unit_code) = UPPER(?) AND active", unitCode).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByPhone resolves a payer phone number to a tenancy.
// Returns nil without error when the number matches nothing.
func (d *GormTenancyDirectory) FindByPhone(ctx context.Context, phone string) (*ledger.Tenancy, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, nil
	}
	var model models.TenancyModel
	if err := d.db.WithContext(ctx).
		Where("tenant_phone = ? AND active", phone).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ListActive lists every active tenancy, optionally scoped to a landlord
func (d *GormTenancyDirectory) ListActive(ctx context.Context, landlordID *uuid.UUID) ([]ledger.Tenancy, error) {
	query := d.db.WithContext(ctx).Where("active")
	if landlordID != nil && *landlordID != uuid.Nil {
		query = query.Where("landlord_id = ?", *landlordID)
	}

	var rows []models.TenancyModel
	if err := query.Order("unit_code ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	tenancies := make([]ledger.Tenancy, 0, len(rows))
	for i := range rows {
		tenancies = append(tenancies, *rows[i].ToDomain())
	}
	return tenancies, nil
}
