package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// TenancyModel is the persistence model backing the tenancy directory.
// It is a read model maintained by the property management side; the
// ledger only queries it.
type TenancyModel struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	CreatedAt   time.Time       `gorm:"not null"`
	UpdatedAt   time.Time       `gorm:"not null"`
	LandlordID  uuid.UUID       `gorm:"type:uuid;not null;index"`
	TenantID    uuid.UUID       `gorm:"type:uuid;not null;index"`
	PropertyID  uuid.UUID       `gorm:"type:uuid;not null"`
	UnitID      uuid.UUID       `gorm:"type:uuid;not null"`
	UnitCode    string          `gorm:"type:varchar(30);not null;index"`
	TenantName  string          `gorm:"type:varchar(255);not null;default:''"`
	TenantPhone string          `gorm:"type:varchar(20);not null;default:'';index"`
	MonthlyRent decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	StartDate   time.Time       `gorm:"not null"`
	Active      bool            `gorm:"not null;default:true;index"`
}

// TableName returns the table name for GORM
func (TenancyModel) TableName() string {
	return "tenancies"
}

// ToDomain converts the persistence model to a tenancy read model
func (m *TenancyModel) ToDomain() *ledger.Tenancy {
	return &ledger.Tenancy{
		TenantID:    m.TenantID,
		LandlordID:  m.LandlordID,
		PropertyID:  m.PropertyID,
		UnitID:      m.UnitID,
		UnitCode:    m.UnitCode,
		TenantName:  m.TenantName,
		TenantPhone: m.TenantPhone,
		MonthlyRent: m.MonthlyRent,
		StartDate:   m.StartDate,
	}
}
