package mpesa

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/makao/backend/internal/domain/shared"
)

// TransactionType classifies the money movement a transaction tracks
type TransactionType string

const (
	TransactionTypeStkPush      TransactionType = "STK_PUSH"         // Push payment to a tenant's phone
	TransactionTypeC2BDeposit   TransactionType = "C2B_DEPOSIT"      // Tenant-initiated paybill deposit
	TransactionTypeDisbursement TransactionType = "B2C_DISBURSEMENT" // Payout to a landlord
)

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	switch t {
	case TransactionTypeStkPush, TransactionTypeC2BDeposit, TransactionTypeDisbursement:
		return true
	}
	return false
}

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsInbound returns true for money coming into the paybill
func (t TransactionType) IsInbound() bool {
	return t == TransactionTypeStkPush || t == TransactionTypeC2BDeposit
}

// Operation is the variant payload of a transaction. Exactly one variant
// applies for the transaction's whole life, and each variant carries only
// the fields that exist for that kind of money movement.
type Operation interface {
	Type() TransactionType
	isOperation()
}

// PushPayment is a payment request pushed to a tenant's phone. The tenant
// is known up front because the landlord chose who to charge.
type PushPayment struct {
	TenantID         uuid.UUID
	AccountReference string // Paybill account quoted on the prompt
}

// InboundDeposit is a tenant-initiated paybill deposit. The tenant is
// resolved from the quoted account, and stays unknown when no match exists.
type InboundDeposit struct {
	AccountReference string // Account the payer typed at the paybill
	TenantID         *uuid.UUID
}

// Disbursement is a payout from the paybill to a landlord's phone,
// normally originating from a settlement of collected rent.
type Disbursement struct {
	Remarks      string
	SettlementID *uuid.UUID
}

// Type returns the transaction type for a push payment
func (PushPayment) Type() TransactionType { return TransactionTypeStkPush }

// Type returns the transaction type for an inbound deposit
func (InboundDeposit) Type() TransactionType { return TransactionTypeC2BDeposit }

// Type returns the transaction type for a disbursement
func (Disbursement) Type() TransactionType { return TransactionTypeDisbursement }

func (PushPayment) isOperation()    {}
func (InboundDeposit) isOperation() {}
func (Disbursement) isOperation()   {}

// TransactionStatus represents the lifecycle state of an external transaction
type TransactionStatus string

const (
	TransactionStatusInitiated TransactionStatus = "INITIATED" // Accepted locally, not yet sent
	TransactionStatusPending   TransactionStatus = "PENDING"   // Sent to the provider, awaiting result
	TransactionStatusCompleted TransactionStatus = "COMPLETED" // Provider confirmed success
	TransactionStatusFailed    TransactionStatus = "FAILED"    // Provider reported failure
	TransactionStatusCancelled TransactionStatus = "CANCELLED" // Abandoned before a provider result
)

// IsValid checks if the status is a valid TransactionStatus
func (s TransactionStatus) IsValid() bool {
	switch s {
	case TransactionStatusInitiated, TransactionStatusPending,
		TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// String returns the string representation of TransactionStatus
func (s TransactionStatus) String() string {
	return string(s)
}

// IsFinal returns true if no further transitions are allowed
func (s TransactionStatus) IsFinal() bool {
	switch s {
	case TransactionStatusCompleted, TransactionStatusFailed, TransactionStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows the move
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case TransactionStatusInitiated:
		return next == TransactionStatusPending || next == TransactionStatusFailed || next == TransactionStatusCancelled
	case TransactionStatusPending:
		return next == TransactionStatusCompleted || next == TransactionStatusFailed || next == TransactionStatusCancelled
	}
	return false
}

// Transaction tracks one interaction with the mobile money provider from
// initiation to its terminal result. It is the system's only record of
// in-flight money; the ledger only sees funds once a transaction completes.
type Transaction struct {
	shared.LandlordAggregateRoot
	Op                Operation
	Status            TransactionStatus
	Amount            decimal.Decimal
	Phone             string
	CheckoutID        string // Provider's in-flight identifier
	ProviderReference string // Provider receipt, set on completion
	ResultCode        string
	ResultDescription string
	PaymentID         *uuid.UUID // Ledger payment created on completion
	InitiatedAt       time.Time
	CompletedAt       *time.Time
}

// Type returns the transaction type of the operation variant
func (tx *Transaction) Type() TransactionType {
	return tx.Op.Type()
}

// TenantID returns the tenant the money movement belongs to, when known.
// Disbursements go to the landlord and never carry a tenant.
func (tx *Transaction) TenantID() *uuid.UUID {
	switch op := tx.Op.(type) {
	case PushPayment:
		id := op.TenantID
		return &id
	case InboundDeposit:
		return op.TenantID
	case Disbursement:
		return nil
	}
	return nil
}

// AccountReference returns the paybill account quoted for inbound money.
// Disbursements have no payer-side account and return empty.
func (tx *Transaction) AccountReference() string {
	switch op := tx.Op.(type) {
	case PushPayment:
		return op.AccountReference
	case InboundDeposit:
		return op.AccountReference
	case Disbursement:
		return ""
	}
	return ""
}

// NewStkPushTransaction starts tracking a push payment request to a tenant's phone
func NewStkPushTransaction(
	landlordID uuid.UUID,
	tenantID uuid.UUID,
	amount decimal.Decimal,
	phone string,
	accountReference string,
) (*Transaction, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	if err := validateAmountPhone(amount, phone); err != nil {
		return nil, err
	}
	if accountReference == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Account reference cannot be empty")
	}

	tx := newTransaction(landlordID, PushPayment{TenantID: tenantID, AccountReference: accountReference}, amount, phone)
	tx.AddDomainEvent(NewTransactionInitiatedEvent(tx))
	return tx, nil
}

// NewC2BTransaction records a tenant-initiated paybill deposit. The provider
// only announces these after the money has moved, so the transaction is born
// completed.
func NewC2BTransaction(
	landlordID uuid.UUID,
	amount decimal.Decimal,
	phone string,
	accountReference string,
	providerReference string,
	receivedAt time.Time,
) (*Transaction, error) {
	if err := validateAmountPhone(amount, phone); err != nil {
		return nil, err
	}
	if providerReference == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Provider reference cannot be empty")
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	tx := newTransaction(landlordID, InboundDeposit{AccountReference: accountReference}, amount, phone)
	tx.Status = TransactionStatusCompleted
	tx.ProviderReference = providerReference
	tx.CompletedAt = &receivedAt
	tx.AddDomainEvent(NewTransactionCompletedEvent(tx))
	return tx, nil
}

// NewDisbursementTransaction starts tracking a payout to a landlord's phone.
// The settlement ID links the payout back to the settlement being paid out,
// and may be nil for ad-hoc payouts.
func NewDisbursementTransaction(
	landlordID uuid.UUID,
	amount decimal.Decimal,
	phone string,
	remarks string,
	settlementID *uuid.UUID,
) (*Transaction, error) {
	if err := validateAmountPhone(amount, phone); err != nil {
		return nil, err
	}

	tx := newTransaction(landlordID, Disbursement{Remarks: remarks, SettlementID: settlementID}, amount, phone)
	tx.AddDomainEvent(NewTransactionInitiatedEvent(tx))
	return tx, nil
}

func newTransaction(landlordID uuid.UUID, op Operation, amount decimal.Decimal, phone string) *Transaction {
	return &Transaction{
		LandlordAggregateRoot: shared.NewLandlordAggregateRoot(landlordID),
		Op:                    op,
		Status:                TransactionStatusInitiated,
		Amount:                amount,
		Phone:                 phone,
		InitiatedAt:           time.Now(),
	}
}

func validateAmountPhone(amount decimal.Decimal, phone string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("VALIDATION_ERROR", "Transaction amount must be positive")
	}
	if phone == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Phone number cannot be empty")
	}
	return nil
}

// MarkPending records that the provider accepted the request
func (tx *Transaction) MarkPending(checkoutID string) error {
	if !tx.Status.CanTransitionTo(TransactionStatusPending) {
		return tx.transitionError(TransactionStatusPending)
	}
	if checkoutID == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Checkout ID cannot be empty")
	}

	tx.Status = TransactionStatusPending
	tx.CheckoutID = checkoutID
	tx.touch()
	return nil
}

// Complete records the provider's success result. Replaying the same result
// against an already completed transaction reports no change instead of an
// error, so callback retries stay harmless. A success carrying a different
// receipt than the recorded one is a conflict.
func (tx *Transaction) Complete(providerReference string, resultCode, resultDescription string, completedAt time.Time) (bool, error) {
	if providerReference == "" {
		return false, shared.NewDomainError("VALIDATION_ERROR", "Provider reference cannot be empty")
	}
	if tx.Status == TransactionStatusCompleted {
		if tx.ProviderReference == providerReference {
			return false, nil
		}
		return false, shared.NewDomainError("CONFLICT",
			fmt.Sprintf("Transaction already completed with receipt %s, got %s", tx.ProviderReference, providerReference))
	}
	if !tx.Status.CanTransitionTo(TransactionStatusCompleted) {
		return false, tx.transitionError(TransactionStatusCompleted)
	}
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	tx.Status = TransactionStatusCompleted
	tx.ProviderReference = providerReference
	tx.ResultCode = resultCode
	tx.ResultDescription = resultDescription
	tx.CompletedAt = &completedAt
	tx.touch()

	tx.AddDomainEvent(NewTransactionCompletedEvent(tx))
	if op, ok := tx.Op.(Disbursement); ok {
		tx.AddDomainEvent(NewDisbursementCompletedEvent(tx, op))
	}
	return true, nil
}

// Fail records the provider's failure result. Replays against an already
// failed transaction report no change.
func (tx *Transaction) Fail(resultCode, resultDescription string) (bool, error) {
	if tx.Status == TransactionStatusFailed {
		return false, nil
	}
	if !tx.Status.CanTransitionTo(TransactionStatusFailed) {
		return false, tx.transitionError(TransactionStatusFailed)
	}

	tx.Status = TransactionStatusFailed
	tx.ResultCode = resultCode
	tx.ResultDescription = resultDescription
	tx.touch()

	tx.AddDomainEvent(NewTransactionFailedEvent(tx))
	return true, nil
}

// Cancel abandons a transaction that never reached a provider result
func (tx *Transaction) Cancel(reason string) error {
	if !tx.Status.CanTransitionTo(TransactionStatusCancelled) {
		return tx.transitionError(TransactionStatusCancelled)
	}

	tx.Status = TransactionStatusCancelled
	tx.ResultDescription = reason
	tx.touch()

	tx.AddDomainEvent(NewTransactionCancelledEvent(tx))
	return nil
}

// LinkPayment attaches the ledger payment created from this transaction
func (tx *Transaction) LinkPayment(paymentID uuid.UUID) error {
	if tx.Status != TransactionStatusCompleted {
		return shared.NewDomainError("INVALID_STATE", "Only completed transactions can link a payment")
	}
	if paymentID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Payment ID cannot be empty")
	}
	tx.PaymentID = &paymentID
	tx.touch()
	return nil
}

// LinkTenant attaches the tenant an inbound deposit was resolved to. Push
// payments name their tenant at creation and disbursements never have one.
func (tx *Transaction) LinkTenant(tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	op, ok := tx.Op.(InboundDeposit)
	if !ok {
		return shared.NewDomainError("INVALID_STATE", "Only inbound deposits can be resolved to a tenant")
	}
	op.TenantID = &tenantID
	tx.Op = op
	tx.touch()
	return nil
}

// IsStuck reports whether the transaction has waited on a provider result
// longer than the given cutoff. Initiated counts as waiting too, covering
// rows whose send attempt never got an answer from the provider.
func (tx *Transaction) IsStuck(cutoff time.Time) bool {
	if tx.Status != TransactionStatusPending && tx.Status != TransactionStatusInitiated {
		return false
	}
	return tx.InitiatedAt.Before(cutoff)
}

// MarshalJSON flattens the operation variant into the transaction's wire
// shape, so API clients see one object per transaction regardless of kind.
func (tx *Transaction) MarshalJSON() ([]byte, error) {
	out := struct {
		ID                uuid.UUID         `json:"id"`
		LandlordID        uuid.UUID         `json:"landlord_id"`
		Type              TransactionType   `json:"type"`
		Status            TransactionStatus `json:"status"`
		Amount            decimal.Decimal   `json:"amount"`
		Phone             string            `json:"phone"`
		AccountReference  string            `json:"account_reference,omitempty"`
		Remarks           string            `json:"remarks,omitempty"`
		SettlementID      *uuid.UUID        `json:"settlement_id,omitempty"`
		CheckoutID        string            `json:"checkout_id"`
		ProviderReference string            `json:"provider_reference"`
		ResultCode        string            `json:"result_code"`
		ResultDescription string            `json:"result_description"`
		TenantID          *uuid.UUID        `json:"tenant_id"`
		PaymentID         *uuid.UUID        `json:"payment_id"`
		InitiatedAt       time.Time         `json:"initiated_at"`
		CompletedAt       *time.Time        `json:"completed_at"`
		CreatedAt         time.Time         `json:"created_at"`
		UpdatedAt         time.Time         `json:"updated_at"`
	}{
		ID:                tx.ID,
		LandlordID:        tx.LandlordID,
		Type:              tx.Type(),
		Status:            tx.Status,
		Amount:            tx.Amount,
		Phone:             tx.Phone,
		AccountReference:  tx.AccountReference(),
		CheckoutID:        tx.CheckoutID,
		ProviderReference: tx.ProviderReference,
		ResultCode:        tx.ResultCode,
		ResultDescription: tx.ResultDescription,
		TenantID:          tx.TenantID(),
		PaymentID:         tx.PaymentID,
		InitiatedAt:       tx.InitiatedAt,
		CompletedAt:       tx.CompletedAt,
		CreatedAt:         tx.CreatedAt,
		UpdatedAt:         tx.UpdatedAt,
	}
	if op, ok := tx.Op.(Disbursement); ok {
		out.Remarks = op.Remarks
		out.SettlementID = op.SettlementID
	}
	return json.Marshal(out)
}

func (tx *Transaction) transitionError(next TransactionStatus) error {
	return shared.NewDomainError("INVALID_STATE",
		fmt.Sprintf("Cannot transition transaction from %s to %s", tx.Status, next))
}

func (tx *Transaction) touch() {
	tx.UpdatedAt = time.Now()
	tx.IncrementVersion()
}
