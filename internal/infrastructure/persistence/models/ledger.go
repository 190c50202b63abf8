package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/ledger"
	"github.com/shopspring/decimal"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// Line items are value objects and ride along as a JSONB column.
type InvoiceModel struct {
	LandlordAggregateModel
	InvoiceNumber  string                  `gorm:"type:varchar(50);not null;uniqueIndex:idx_invoice_landlord_number,priority:2"`
	TenantID       uuid.UUID               `gorm:"type:uuid;not null;index"`
	PropertyID     uuid.UUID               `gorm:"type:uuid;index"`
	UnitID         uuid.UUID               `gorm:"type:uuid;not null;index"`
	PeriodStart    time.Time               `gorm:"not null;index"`
	PeriodEnd      time.Time               `gorm:"not null"`
	DueDate        time.Time               `gorm:"not null;index"`
	Amount         decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	OpeningBalance decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	Balance        decimal.Decimal         `gorm:"type:decimal(18,4);not null;index"`
	Status         ledger.InvoiceStatus    `gorm:"type:varchar(20);not null;default:'ISSUED';index"`
	LineItems      ledger.InvoiceLineItems `gorm:"type:jsonb;default:'[]'"`
	PaidAt         *time.Time
	VoidedAt       *time.Time
	VoidReason     string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice entity.
func (m *InvoiceModel) ToDomain() *ledger.Invoice {
	return &ledger.Invoice{
		LandlordAggregateRoot: m.ToDomainLandlordAggregateRoot(),
		InvoiceNumber:         m.InvoiceNumber,
		TenantID:              m.TenantID,
		PropertyID:            m.PropertyID,
		UnitID:                m.UnitID,
		PeriodStart:           m.PeriodStart,
		PeriodEnd:             m.PeriodEnd,
		DueDate:               m.DueDate,
		Amount:                m.Amount,
		OpeningBalance:        m.OpeningBalance,
		Balance:               m.Balance,
		Status:                m.Status,
		LineItems:             m.LineItems,
		PaidAt:                m.PaidAt,
		VoidedAt:              m.VoidedAt,
		VoidReason:            m.VoidReason,
	}
}

// FromDomain populates the persistence model from a domain Invoice entity.
func (m *InvoiceModel) FromDomain(inv *ledger.Invoice) {
	m.FromDomainLandlordAggregateRoot(inv.LandlordAggregateRoot)
	m.InvoiceNumber = inv.InvoiceNumber
	m.TenantID = inv.TenantID
	m.PropertyID = inv.PropertyID
	m.UnitID = inv.UnitID
	m.PeriodStart = inv.PeriodStart
	m.PeriodEnd = inv.PeriodEnd
	m.DueDate = inv.DueDate
	m.Amount = inv.Amount
	m.OpeningBalance = inv.OpeningBalance
	m.Balance = inv.Balance
	m.Status = inv.Status
	m.LineItems = inv.LineItems
	m.PaidAt = inv.PaidAt
	m.VoidedAt = inv.VoidedAt
	m.VoidReason = inv.VoidReason
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *ledger.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// PaymentModel is the persistence model for the Payment aggregate root.
// Allocations are child rows so invoice balance recalculation can aggregate
// them without loading whole payments.
type PaymentModel struct {
	LandlordAggregateModel
	PaymentNumber     string                    `gorm:"type:varchar(50);not null;uniqueIndex:idx_payment_landlord_number,priority:2"`
	Status            ledger.PaymentStatus      `gorm:"type:varchar(20);not null;default:'COMPLETED';index"`
	TenantID          uuid.UUID                 `gorm:"type:uuid;not null;index"`
	Amount            decimal.Decimal           `gorm:"type:decimal(18,4);not null"`
	UnallocatedAmount decimal.Decimal           `gorm:"type:decimal(18,4);not null;index"`
	Method            ledger.PaymentMethod      `gorm:"type:varchar(20);not null"`
	ExternalReference *string                   `gorm:"type:varchar(100);uniqueIndex"`
	PayerPhone        string                    `gorm:"type:varchar(20)"`
	Narrative         string                    `gorm:"type:varchar(500)"`
	PaymentDate       time.Time                 `gorm:"not null;index"`
	Allocations       []*PaymentAllocationModel `gorm:"foreignKey:PaymentID;references:ID"`
}

// TableName returns the table name for GORM
func (PaymentModel) TableName() string {
	return "payments"
}

// ToDomain converts the persistence model to a domain Payment entity.
func (m *PaymentModel) ToDomain() *ledger.Payment {
	allocations := make([]*ledger.PaymentAllocation, len(m.Allocations))
	for i, alloc := range m.Allocations {
		allocations[i] = alloc.ToDomain()
	}

	externalReference := ""
	if m.ExternalReference != nil {
		externalReference = *m.ExternalReference
	}

	return &ledger.Payment{
		LandlordAggregateRoot: m.ToDomainLandlordAggregateRoot(),
		PaymentNumber:         m.PaymentNumber,
		Status:                m.Status,
		TenantID:              m.TenantID,
		Amount:                m.Amount,
		UnallocatedAmount:     m.UnallocatedAmount,
		Method:                m.Method,
		ExternalReference:     externalReference,
		PayerPhone:            m.PayerPhone,
		Narrative:             m.Narrative,
		PaymentDate:           m.PaymentDate,
		Allocations:           allocations,
	}
}

// FromDomain populates the persistence model from a domain Payment entity.
func (m *PaymentModel) FromDomain(p *ledger.Payment) {
	m.FromDomainLandlordAggregateRoot(p.LandlordAggregateRoot)
	m.PaymentNumber = p.PaymentNumber
	m.Status = p.Status
	m.TenantID = p.TenantID
	m.Amount = p.Amount
	m.UnallocatedAmount = p.UnallocatedAmount
	m.Method = p.Method
	// Empty references are stored as NULL so the unique index only bites
	// when a real receipt number repeats
	if p.ExternalReference != "" {
		ref := p.ExternalReference
		m.ExternalReference = &ref
	} else {
		m.ExternalReference = nil
	}
	m.PayerPhone = p.PayerPhone
	m.Narrative = p.Narrative
	m.PaymentDate = p.PaymentDate

	m.Allocations = make([]*PaymentAllocationModel, len(p.Allocations))
	for i, alloc := range p.Allocations {
		m.Allocations[i] = PaymentAllocationModelFromDomain(alloc)
	}
}

// PaymentModelFromDomain creates a new persistence model from a domain Payment.
func PaymentModelFromDomain(p *ledger.Payment) *PaymentModel {
	m := &PaymentModel{}
	m.FromDomain(p)
	return m
}

// PaymentAllocationModel is the persistence model for payment allocations.
// Rows are never deleted; a reversal flips the status in place.
type PaymentAllocationModel struct {
	ID             uuid.UUID               `gorm:"type:uuid;primary_key"`
	PaymentID      uuid.UUID               `gorm:"type:uuid;not null;index"`
	InvoiceID      uuid.UUID               `gorm:"type:uuid;not null;index"`
	Amount         decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	Status         ledger.AllocationStatus `gorm:"type:varchar(20);not null;default:'ACTIVE';index"`
	Remark         string                  `gorm:"type:varchar(500)"`
	AllocatedAt    time.Time               `gorm:"not null"`
	ReversedAt     *time.Time
	ReversalReason string `gorm:"type:varchar(500)"`
}

// TableName returns the table name for GORM
func (PaymentAllocationModel) TableName() string {
	return "payment_allocations"
}

// ToDomain converts the persistence model to a domain PaymentAllocation.
func (m *PaymentAllocationModel) ToDomain() *ledger.PaymentAllocation {
	return &ledger.PaymentAllocation{
		ID:             m.ID,
		PaymentID:      m.PaymentID,
		InvoiceID:      m.InvoiceID,
		Amount:         m.Amount,
		Status:         m.Status,
		Remark:         m.Remark,
		AllocatedAt:    m.AllocatedAt,
		ReversedAt:     m.ReversedAt,
		ReversalReason: m.ReversalReason,
	}
}

// PaymentAllocationModelFromDomain creates a persistence model from a domain allocation.
func PaymentAllocationModelFromDomain(a *ledger.PaymentAllocation) *PaymentAllocationModel {
	return &PaymentAllocationModel{
		ID:             a.ID,
		PaymentID:      a.PaymentID,
		InvoiceID:      a.InvoiceID,
		Amount:         a.Amount,
		Status:         a.Status,
		Remark:         a.Remark,
		AllocatedAt:    a.AllocatedAt,
		ReversedAt:     a.ReversedAt,
		ReversalReason: a.ReversalReason,
	}
}
