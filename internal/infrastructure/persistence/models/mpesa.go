package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/shopspring/decimal"
)

// MpesaTransactionModel is the persistence model for provider transactions.
type MpesaTransactionModel struct {
	LandlordAggregateModel
	Type              mpesa.TransactionType   `gorm:"type:varchar(20);not null;index"`
	Status            mpesa.TransactionStatus `gorm:"type:varchar(20);not null;index:idx_mpesa_tx_status_initiated,priority:1"`
	Amount            decimal.Decimal         `gorm:"type:decimal(18,4);not null"`
	Phone             string                  `gorm:"type:varchar(20);not null"`
	AccountReference  string                  `gorm:"type:varchar(100)"`
	CheckoutID        *string                 `gorm:"type:varchar(100);uniqueIndex"`
	ProviderReference *string                 `gorm:"type:varchar(100);uniqueIndex"`
	ResultCode        string                  `gorm:"type:varchar(20)"`
	ResultDescription string                  `gorm:"type:varchar(500)"`
	Remarks           string                  `gorm:"type:varchar(200)"`
	SettlementID      *uuid.UUID              `gorm:"type:uuid;index"`
	TenantID          *uuid.UUID              `gorm:"type:uuid;index"`
	PaymentID         *uuid.UUID              `gorm:"type:uuid;index"`
	InitiatedAt       time.Time               `gorm:"not null;index:idx_mpesa_tx_status_initiated,priority:2"`
	CompletedAt       *time.Time
}

// TableName returns the table name for GORM
func (MpesaTransactionModel) TableName() string {
	return "mpesa_transactions"
}

// ToDomain converts the persistence model to a domain Transaction entity.
// The stored type column picks which operation variant to rebuild.
func (m *MpesaTransactionModel) ToDomain() *mpesa.Transaction {
	checkoutID := ""
	if m.CheckoutID != nil {
		checkoutID = *m.CheckoutID
	}
	providerReference := ""
	if m.ProviderReference != nil {
		providerReference = *m.ProviderReference
	}

	var op mpesa.Operation
	switch m.Type {
	case mpesa.TransactionTypeStkPush:
		push := mpesa.PushPayment{AccountReference: m.AccountReference}
		if m.TenantID != nil {
			push.TenantID = *m.TenantID
		}
		op = push
	case mpesa.TransactionTypeDisbursement:
		op = mpesa.Disbursement{Remarks: m.Remarks, SettlementID: m.SettlementID}
	default:
		op = mpesa.InboundDeposit{AccountReference: m.AccountReference, TenantID: m.TenantID}
	}

	return &mpesa.Transaction{
		LandlordAggregateRoot: m.ToDomainLandlordAggregateRoot(),
		Op:                    op,
		Status:                m.Status,
		Amount:                m.Amount,
		Phone:                 m.Phone,
		CheckoutID:            checkoutID,
		ProviderReference:     providerReference,
		ResultCode:            m.ResultCode,
		ResultDescription:     m.ResultDescription,
		PaymentID:             m.PaymentID,
		InitiatedAt:           m.InitiatedAt,
		CompletedAt:           m.CompletedAt,
	}
}

// FromDomain populates the persistence model from a domain Transaction entity.
func (m *MpesaTransactionModel) FromDomain(tx *mpesa.Transaction) {
	m.FromDomainLandlordAggregateRoot(tx.LandlordAggregateRoot)
	m.Type = tx.Type()
	m.Status = tx.Status
	m.Amount = tx.Amount
	m.Phone = tx.Phone
	m.AccountReference = tx.AccountReference()
	m.Remarks = ""
	m.SettlementID = nil
	if op, ok := tx.Op.(mpesa.Disbursement); ok {
		m.Remarks = op.Remarks
		m.SettlementID = op.SettlementID
	}
	// Provider identifiers are NULL until assigned so the unique indexes
	// only compare real values
	if tx.CheckoutID != "" {
		id := tx.CheckoutID
		m.CheckoutID = &id
	} else {
		m.CheckoutID = nil
	}
	if tx.ProviderReference != "" {
		ref := tx.ProviderReference
		m.ProviderReference = &ref
	} else {
		m.ProviderReference = nil
	}
	m.ResultCode = tx.ResultCode
	m.ResultDescription = tx.ResultDescription
	m.TenantID = tx.TenantID()
	m.PaymentID = tx.PaymentID
	m.InitiatedAt = tx.InitiatedAt
	m.CompletedAt = tx.CompletedAt
}

// MpesaTransactionModelFromDomain creates a new persistence model from a domain Transaction.
func MpesaTransactionModelFromDomain(tx *mpesa.Transaction) *MpesaTransactionModel {
	m := &MpesaTransactionModel{}
	m.FromDomain(tx)
	return m
}

// UnmatchedPaymentModel is the persistence model for quarantined deposits.
type UnmatchedPaymentModel struct {
	LandlordAggregateModel
	ExternalReference string                `gorm:"type:varchar(100);not null;uniqueIndex"`
	Amount            decimal.Decimal       `gorm:"type:decimal(18,4);not null"`
	PayerPhone        string                `gorm:"type:varchar(20)"`
	PayerName         string                `gorm:"type:varchar(200)"`
	AccountReference  string                `gorm:"type:varchar(100)"`
	Reason            mpesa.UnmatchedReason `gorm:"type:varchar(30);not null"`
	Status            mpesa.UnmatchedStatus `gorm:"type:varchar(20);not null;default:'OPEN';index"`
	Notes             string                `gorm:"type:text"`
	ReceivedAt        time.Time             `gorm:"not null;index"`
	ResolvedAt        *time.Time
	ResolvedBy        *uuid.UUID `gorm:"type:uuid"`
	ResolvedTenantID  *uuid.UUID `gorm:"type:uuid;index"`
	ResolvedPaymentID *uuid.UUID `gorm:"type:uuid"`
}

// TableName returns the table name for GORM
func (UnmatchedPaymentModel) TableName() string {
	return "unmatched_payments"
}

// ToDomain converts the persistence model to a domain UnmatchedPayment entity.
func (m *UnmatchedPaymentModel) ToDomain() *mpesa.UnmatchedPayment {
	return &mpesa.UnmatchedPayment{
		LandlordAggregateRoot: m.ToDomainLandlordAggregateRoot(),
		ExternalReference:     m.ExternalReference,
		Amount:                m.Amount,
		PayerPhone:            m.PayerPhone,
		PayerName:             m.PayerName,
		AccountReference:      m.AccountReference,
		Reason:                m.Reason,
		Status:                m.Status,
		Notes:                 m.Notes,
		ReceivedAt:            m.ReceivedAt,
		ResolvedAt:            m.ResolvedAt,
		ResolvedBy:            m.ResolvedBy,
		ResolvedTenantID:      m.ResolvedTenantID,
		ResolvedPaymentID:     m.ResolvedPaymentID,
	}
}

// FromDomain populates the persistence model from a domain UnmatchedPayment entity.
func (m *UnmatchedPaymentModel) FromDomain(up *mpesa.UnmatchedPayment) {
	m.FromDomainLandlordAggregateRoot(up.LandlordAggregateRoot)
	m.ExternalReference = up.ExternalReference
	m.Amount = up.Amount
	m.PayerPhone = up.PayerPhone
	m.PayerName = up.PayerName
	m.AccountReference = up.AccountReference
	m.Reason = up.Reason
	m.Status = up.Status
	m.Notes = up.Notes
	m.ReceivedAt = up.ReceivedAt
	m.ResolvedAt = up.ResolvedAt
	m.ResolvedBy = up.ResolvedBy
	m.ResolvedTenantID = up.ResolvedTenantID
	m.ResolvedPaymentID = up.ResolvedPaymentID
}

// UnmatchedPaymentModelFromDomain creates a new persistence model from a domain UnmatchedPayment.
func UnmatchedPaymentModelFromDomain(up *mpesa.UnmatchedPayment) *UnmatchedPaymentModel {
	m := &UnmatchedPaymentModel{}
	m.FromDomain(up)
	return m
}
