package mpesa

import (
	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type constants for the mobile money context
const (
	EventTypeTransactionInitiated  = "mpesa.transaction.initiated"
	EventTypeTransactionCompleted  = "mpesa.transaction.completed"
	EventTypeTransactionFailed     = "mpesa.transaction.failed"
	EventTypeTransactionCancelled  = "mpesa.transaction.cancelled"
	EventTypeDisbursementCompleted = "mpesa.disbursement.completed"
	EventTypePaymentQuarantined    = "mpesa.payment.quarantined"
	EventTypeUnmatchedResolved     = "mpesa.payment.unmatched_resolved"
)

// TransactionInitiatedEvent is raised when a provider interaction starts
type TransactionInitiatedEvent struct {
	shared.BaseDomainEvent
	TransactionType TransactionType `json:"transaction_type"`
	Amount          decimal.Decimal `json:"amount"`
	Phone           string          `json:"phone"`
}

// NewTransactionInitiatedEvent creates a new TransactionInitiatedEvent
func NewTransactionInitiatedEvent(tx *Transaction) *TransactionInitiatedEvent {
	return &TransactionInitiatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTransactionInitiated, "Transaction", tx.ID, tx.LandlordID),
		TransactionType: tx.Type(),
		Amount:          tx.Amount,
		Phone:           tx.Phone,
	}
}

// TransactionCompletedEvent is raised when the provider confirms success
type TransactionCompletedEvent struct {
	shared.BaseDomainEvent
	TransactionType   TransactionType `json:"transaction_type"`
	Amount            decimal.Decimal `json:"amount"`
	ProviderReference string          `json:"provider_reference"`
}

// NewTransactionCompletedEvent creates a new TransactionCompletedEvent
func NewTransactionCompletedEvent(tx *Transaction) *TransactionCompletedEvent {
	return &TransactionCompletedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeTransactionCompleted, "Transaction", tx.ID, tx.LandlordID),
		TransactionType:   tx.Type(),
		Amount:            tx.Amount,
		ProviderReference: tx.ProviderReference,
	}
}

// TransactionFailedEvent is raised when the provider reports failure
type TransactionFailedEvent struct {
	shared.BaseDomainEvent
	TransactionType   TransactionType `json:"transaction_type"`
	ResultCode        string          `json:"result_code"`
	ResultDescription string          `json:"result_description"`
}

// NewTransactionFailedEvent creates a new TransactionFailedEvent
func NewTransactionFailedEvent(tx *Transaction) *TransactionFailedEvent {
	return &TransactionFailedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeTransactionFailed, "Transaction", tx.ID, tx.LandlordID),
		TransactionType:   tx.Type(),
		ResultCode:        tx.ResultCode,
		ResultDescription: tx.ResultDescription,
	}
}

// TransactionCancelledEvent is raised when a transaction is abandoned
type TransactionCancelledEvent struct {
	shared.BaseDomainEvent
	TransactionType TransactionType `json:"transaction_type"`
	Reason          string          `json:"reason"`
}

// NewTransactionCancelledEvent creates a new TransactionCancelledEvent
func NewTransactionCancelledEvent(tx *Transaction) *TransactionCancelledEvent {
	return &TransactionCancelledEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTransactionCancelled, "Transaction", tx.ID, tx.LandlordID),
		TransactionType: tx.Type(),
		Reason:          tx.ResultDescription,
	}
}

// DisbursementCompletedEvent is raised when the provider confirms a payout.
// Settlement bookkeeping listens for it to mark the originating settlement
// as disbursed.
type DisbursementCompletedEvent struct {
	shared.BaseDomainEvent
	SettlementID      *uuid.UUID      `json:"settlement_id"`
	Amount            decimal.Decimal `json:"amount"`
	Phone             string          `json:"phone"`
	ProviderReference string          `json:"provider_reference"`
}

// NewDisbursementCompletedEvent creates a new DisbursementCompletedEvent
func NewDisbursementCompletedEvent(tx *Transaction, op Disbursement) *DisbursementCompletedEvent {
	return &DisbursementCompletedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeDisbursementCompleted, "Transaction", tx.ID, tx.LandlordID),
		SettlementID:      op.SettlementID,
		Amount:            tx.Amount,
		Phone:             tx.Phone,
		ProviderReference: tx.ProviderReference,
	}
}

// PaymentQuarantinedEvent is raised when a deposit cannot be routed
type PaymentQuarantinedEvent struct {
	shared.BaseDomainEvent
	ExternalReference string          `json:"external_reference"`
	Amount            decimal.Decimal `json:"amount"`
	AccountReference  string          `json:"account_reference"`
	Reason            UnmatchedReason `json:"reason"`
}

// NewPaymentQuarantinedEvent creates a new PaymentQuarantinedEvent
func NewPaymentQuarantinedEvent(up *UnmatchedPayment) *PaymentQuarantinedEvent {
	return &PaymentQuarantinedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypePaymentQuarantined, "UnmatchedPayment", up.ID, up.LandlordID),
		ExternalReference: up.ExternalReference,
		Amount:            up.Amount,
		AccountReference:  up.AccountReference,
		Reason:            up.Reason,
	}
}

// UnmatchedResolvedEvent is raised when a quarantined deposit is routed to a tenant
type UnmatchedResolvedEvent struct {
	shared.BaseDomainEvent
	ExternalReference string     `json:"external_reference"`
	TenantID          *uuid.UUID `json:"tenant_id"`
	PaymentID         *uuid.UUID `json:"payment_id"`
}

// NewUnmatchedResolvedEvent creates a new UnmatchedResolvedEvent
func NewUnmatchedResolvedEvent(up *UnmatchedPayment) *UnmatchedResolvedEvent {
	return &UnmatchedResolvedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypeUnmatchedResolved, "UnmatchedPayment", up.ID, up.LandlordID),
		ExternalReference: up.ExternalReference,
		TenantID:          up.ResolvedTenantID,
		PaymentID:         up.ResolvedPaymentID,
	}
}
