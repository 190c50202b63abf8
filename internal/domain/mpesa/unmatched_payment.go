package mpesa

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// UnmatchedReason explains why a deposit could not be routed to a tenant
type UnmatchedReason string

const (
	UnmatchedReasonUnknownReference UnmatchedReason = "UNKNOWN_REFERENCE" // Account reference matched no unit
	UnmatchedReasonNoActiveTenancy  UnmatchedReason = "NO_ACTIVE_TENANCY" // Unit exists but stands vacant
	UnmatchedReasonAmbiguous        UnmatchedReason = "AMBIGUOUS"         // Reference resolves to more than one tenancy
)

// IsValid checks if the reason is valid
func (r UnmatchedReason) IsValid() bool {
	switch r {
	case UnmatchedReasonUnknownReference, UnmatchedReasonNoActiveTenancy, UnmatchedReasonAmbiguous:
		return true
	}
	return false
}

// UnmatchedStatus represents the review state of a quarantined deposit
type UnmatchedStatus string

const (
	UnmatchedStatusOpen        UnmatchedStatus = "OPEN"
	UnmatchedStatusUnderReview UnmatchedStatus = "UNDER_REVIEW"
	UnmatchedStatusResolved    UnmatchedStatus = "RESOLVED" // Routed to a tenant as a payment
	UnmatchedStatusRefunded    UnmatchedStatus = "REFUNDED" // Returned to the payer
)

// IsValid checks if the status is valid
func (s UnmatchedStatus) IsValid() bool {
	switch s {
	case UnmatchedStatusOpen, UnmatchedStatusUnderReview, UnmatchedStatusResolved, UnmatchedStatusRefunded:
		return true
	}
	return false
}

// String returns the string representation of UnmatchedStatus
func (s UnmatchedStatus) String() string {
	return string(s)
}

// IsTerminal returns true once the deposit has been dealt with
func (s UnmatchedStatus) IsTerminal() bool {
	return s == UnmatchedStatusResolved || s == UnmatchedStatusRefunded
}

// UnmatchedPayment quarantines a confirmed deposit that could not be routed
// to any tenant. The money is real and already in the paybill; it must never
// be dropped, only resolved to a tenant or refunded.
type UnmatchedPayment struct {
	shared.LandlordAggregateRoot
	ExternalReference string          `json:"external_reference"` // Provider receipt, unique
	Amount            decimal.Decimal `json:"amount"`
	PayerPhone        string          `json:"payer_phone"`
	PayerName         string          `json:"payer_name"`
	AccountReference  string          `json:"account_reference"` // What the payer actually typed
	Reason            UnmatchedReason `json:"reason"`
	Status            UnmatchedStatus `json:"status"`
	Notes             string          `json:"notes"`
	ReceivedAt        time.Time       `json:"received_at"`
	ResolvedAt        *time.Time      `json:"resolved_at"`
	ResolvedBy        *uuid.UUID      `json:"resolved_by"`
	ResolvedTenantID  *uuid.UUID      `json:"resolved_tenant_id"`
	ResolvedPaymentID *uuid.UUID      `json:"resolved_payment_id"`
}

// NewUnmatchedPayment quarantines a deposit
func NewUnmatchedPayment(
	landlordID uuid.UUID,
	externalReference string,
	amount decimal.Decimal,
	payerPhone string,
	payerName string,
	accountReference string,
	reason UnmatchedReason,
	receivedAt time.Time,
) (*UnmatchedPayment, error) {
	if externalReference == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "External reference cannot be empty")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Amount must be positive")
	}
	if !reason.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Unmatched reason is not valid")
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	up := &UnmatchedPayment{
		LandlordAggregateRoot: shared.NewLandlordAggregateRoot(landlordID),
		ExternalReference:     externalReference,
		Amount:                amount,
		PayerPhone:            payerPhone,
		PayerName:             payerName,
		AccountReference:      accountReference,
		Reason:                reason,
		Status:                UnmatchedStatusOpen,
		ReceivedAt:            receivedAt,
	}

	up.AddDomainEvent(NewPaymentQuarantinedEvent(up))

	return up, nil
}

// MarkUnderReview flags the deposit as being worked on
func (up *UnmatchedPayment) MarkUnderReview(notes string) error {
	if up.Status != UnmatchedStatusOpen {
		return up.stateError(UnmatchedStatusUnderReview)
	}
	up.Status = UnmatchedStatusUnderReview
	if notes != "" {
		up.Notes = notes
	}
	up.touch()
	return nil
}

// Resolve routes the deposit to a tenant. The caller creates the ledger
// payment in the same transaction and passes its ID here.
func (up *UnmatchedPayment) Resolve(tenantID, paymentID, resolvedBy uuid.UUID, notes string) error {
	if up.Status.IsTerminal() {
		return up.terminalError()
	}
	if tenantID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	if paymentID == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Payment ID cannot be empty")
	}
	if resolvedBy == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Resolver user ID cannot be empty")
	}

	now := time.Now()
	up.Status = UnmatchedStatusResolved
	up.ResolvedAt = &now
	up.ResolvedBy = &resolvedBy
	up.ResolvedTenantID = &tenantID
	up.ResolvedPaymentID = &paymentID
	if notes != "" {
		up.Notes = notes
	}
	up.touch()

	up.AddDomainEvent(NewUnmatchedResolvedEvent(up))

	return nil
}

// MarkRefunded records that the deposit was returned to the payer
func (up *UnmatchedPayment) MarkRefunded(refundedBy uuid.UUID, notes string) error {
	if up.Status.IsTerminal() {
		return up.terminalError()
	}
	if refundedBy == uuid.Nil {
		return shared.NewDomainError("VALIDATION_ERROR", "Refunder user ID cannot be empty")
	}

	now := time.Now()
	up.Status = UnmatchedStatusRefunded
	up.ResolvedAt = &now
	up.ResolvedBy = &refundedBy
	if notes != "" {
		up.Notes = notes
	}
	up.touch()

	return nil
}

// terminalError reports an attempt to redo triage on a settled record. The
// record already has an outcome, so the second decision conflicts with the
// first rather than arriving out of order.
func (up *UnmatchedPayment) terminalError() error {
	return shared.NewDomainError("CONFLICT",
		fmt.Sprintf("Unmatched payment was already %s", up.Status))
}

func (up *UnmatchedPayment) stateError(next UnmatchedStatus) error {
	return shared.NewDomainError("INVALID_STATE",
		fmt.Sprintf("Cannot move unmatched payment from %s to %s", up.Status, next))
}

func (up *UnmatchedPayment) touch() {
	up.UpdatedAt = time.Now()
	up.IncrementVersion()
}
