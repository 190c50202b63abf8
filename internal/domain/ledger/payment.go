package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PaymentMethod represents how a payment reached the business
type PaymentMethod string

const (
	PaymentMethodMpesa        PaymentMethod = "MPESA"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodCheque       PaymentMethod = "CHEQUE"
	PaymentMethodOther        PaymentMethod = "OTHER"
)

// IsValid checks if the payment method is valid
func (m PaymentMethod) IsValid() bool {
	switch m {
	case PaymentMethodMpesa, PaymentMethodBankTransfer, PaymentMethodCash, PaymentMethodCheque, PaymentMethodOther:
		return true
	}
	return false
}

// String returns the string representation of PaymentMethod
func (m PaymentMethod) String() string {
	return string(m)
}

// PaymentStatus represents the confirmation state of received money
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"   // Recorded but not yet confirmed cleared
	PaymentStatusCompleted PaymentStatus = "COMPLETED" // Funds confirmed, eligible for allocation
	PaymentStatusFailed    PaymentStatus = "FAILED"    // Confirmation failed, funds never arrived
)

// IsValid checks if the payment status is valid
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed:
		return true
	}
	return false
}

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// AllocationStatus represents the status of a payment allocation
type AllocationStatus string

const (
	AllocationStatusActive   AllocationStatus = "ACTIVE"
	AllocationStatusReversed AllocationStatus = "REVERSED"
)

// PaymentAllocation links part of a payment to one invoice.
// Allocations are child entities of the Payment aggregate; a reversal flips
// the status in place rather than deleting the row, so the audit trail of
// where money went is never lost.
type PaymentAllocation struct {
	ID             uuid.UUID        `json:"id"`
	PaymentID      uuid.UUID        `json:"payment_id"`
	InvoiceID      uuid.UUID        `json:"invoice_id"`
	Amount         decimal.Decimal  `json:"amount"`
	Status         AllocationStatus `json:"status"`
	Remark         string           `json:"remark"`
	AllocatedAt    time.Time        `json:"allocated_at"`
	ReversedAt     *time.Time       `json:"reversed_at"`
	ReversalReason string           `json:"reversal_reason"`
}

// IsActive returns true if the allocation still counts toward invoice balances
func (a *PaymentAllocation) IsActive() bool {
	return a.Status == AllocationStatusActive
}

// Payment represents money received from a tenant.
// UnallocatedAmount tracks the portion not yet applied to any invoice;
// Amount == UnallocatedAmount + sum of active allocation amounts holds at
// every commit point.
type Payment struct {
	shared.LandlordAggregateRoot
	PaymentNumber     string               `json:"payment_number"`
	Status            PaymentStatus        `json:"status"`
	TenantID          uuid.UUID            `json:"tenant_id"`
	Amount            decimal.Decimal      `json:"amount"`
	UnallocatedAmount decimal.Decimal      `json:"unallocated_amount"`
	Method            PaymentMethod        `json:"method"`
	ExternalReference string               `json:"external_reference"` // Provider receipt number, unique when present
	PayerPhone        string               `json:"payer_phone"`
	Narrative         string               `json:"narrative"`
	PaymentDate       time.Time            `json:"payment_date"`
	Allocations       []*PaymentAllocation `json:"allocations"`
}

// NewPayment records a confirmed payment and so starts it Completed.
// In-flight provider transactions live in their own aggregate; the Pending
// status exists for instruments that clear after recording, such as cheques.
func NewPayment(
	landlordID uuid.UUID,
	paymentNumber string,
	tenantID uuid.UUID,
	amount valueobject.Money,
	method PaymentMethod,
	externalReference string,
	payerPhone string,
	paymentDate time.Time,
) (*Payment, error) {
	if paymentNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Payment number cannot be empty")
	}
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Payment amount must be positive")
	}
	if !method.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Payment method is not valid")
	}
	if method == PaymentMethodMpesa && externalReference == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "M-Pesa payments require an external reference")
	}
	if paymentDate.IsZero() {
		paymentDate = time.Now()
	}

	p := &Payment{
		LandlordAggregateRoot: shared.NewLandlordAggregateRoot(landlordID),
		PaymentNumber:         paymentNumber,
		Status:                PaymentStatusCompleted,
		TenantID:              tenantID,
		Amount:                amount.Amount(),
		UnallocatedAmount:     amount.Amount(),
		Method:                method,
		ExternalReference:     externalReference,
		PayerPhone:            payerPhone,
		PaymentDate:           paymentDate,
		Allocations:           []*PaymentAllocation{},
	}

	p.AddDomainEvent(NewPaymentReceivedEvent(p))

	return p, nil
}

// Allocate applies part of the payment to an invoice. The caller must have
// verified the invoice can receive the amount; this method only guards the
// payment side of the invariant.
func (p *Payment) Allocate(invoiceID uuid.UUID, amount decimal.Decimal, remark string) (*PaymentAllocation, error) {
	if p.Status != PaymentStatusCompleted {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Payment %s is %s; only completed payments can be allocated", p.PaymentNumber, p.Status))
	}
	if invoiceID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice ID cannot be empty")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Allocation amount must be positive")
	}
	if amount.GreaterThan(p.UnallocatedAmount) {
		return nil, shared.NewDomainError("OVER_ALLOCATION",
			fmt.Sprintf("Allocation %s exceeds unallocated amount %s on payment %s",
				amount, p.UnallocatedAmount, p.PaymentNumber))
	}

	alloc := &PaymentAllocation{
		ID:          uuid.New(),
		PaymentID:   p.ID,
		InvoiceID:   invoiceID,
		Amount:      amount,
		Status:      AllocationStatusActive,
		Remark:      remark,
		AllocatedAt: time.Now(),
	}

	p.Allocations = append(p.Allocations, alloc)
	p.UnallocatedAmount = p.UnallocatedAmount.Sub(amount)
	p.UpdatedAt = time.Now()
	p.IncrementVersion()

	p.AddDomainEvent(NewPaymentAllocatedEvent(p, alloc))

	return alloc, nil
}

// ReverseAllocations voids every active allocation on the payment and returns
// the whole amount to the unallocated pool. Returns the distinct invoice IDs
// touched so the caller can recalculate their balances in the same
// transaction.
func (p *Payment) ReverseAllocations(reason string) ([]uuid.UUID, error) {
	if reason == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Reversal reason is required")
	}

	var invoiceIDs []uuid.UUID
	seen := make(map[uuid.UUID]bool)
	now := time.Now()
	restored := decimal.Zero

	for _, alloc := range p.Allocations {
		if !alloc.IsActive() {
			continue
		}
		alloc.Status = AllocationStatusReversed
		alloc.ReversedAt = &now
		alloc.ReversalReason = reason
		restored = restored.Add(alloc.Amount)
		if !seen[alloc.InvoiceID] {
			seen[alloc.InvoiceID] = true
			invoiceIDs = append(invoiceIDs, alloc.InvoiceID)
		}
	}

	if len(invoiceIDs) == 0 {
		return nil, shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Payment %s has no active allocations to reverse", p.PaymentNumber))
	}

	p.UnallocatedAmount = p.UnallocatedAmount.Add(restored)
	p.UpdatedAt = now
	p.IncrementVersion()

	p.AddDomainEvent(NewPaymentReversedEvent(p, reason, invoiceIDs))

	return invoiceIDs, nil
}

// MarkCompleted confirms a pending payment cleared, making its funds
// eligible for allocation
func (p *Payment) MarkCompleted() error {
	if p.Status != PaymentStatusPending {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Payment %s is %s, not pending", p.PaymentNumber, p.Status))
	}
	p.Status = PaymentStatusCompleted
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// MarkFailed records that a pending payment never cleared
func (p *Payment) MarkFailed(reason string) error {
	if p.Status != PaymentStatusPending {
		return shared.NewDomainError("INVALID_STATE",
			fmt.Sprintf("Payment %s is %s, not pending", p.PaymentNumber, p.Status))
	}
	p.Status = PaymentStatusFailed
	p.Narrative = reason
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// ActiveAllocatedTotal returns the sum of active allocation amounts
func (p *Payment) ActiveAllocatedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, alloc := range p.Allocations {
		if alloc.IsActive() {
			total = total.Add(alloc.Amount)
		}
	}
	return total
}

// HasUnallocatedFunds returns true if part of the payment is still unapplied
func (p *Payment) HasUnallocatedFunds() bool {
	return p.UnallocatedAmount.GreaterThan(decimal.Zero)
}

// CheckConsistency verifies the payment conservation invariant
func (p *Payment) CheckConsistency() error {
	if !p.UnallocatedAmount.Add(p.ActiveAllocatedTotal()).Equal(p.Amount) {
		return shared.NewDomainError("INTEGRITY_ERROR",
			fmt.Sprintf("Payment %s violates conservation: amount=%s unallocated=%s allocated=%s",
				p.PaymentNumber, p.Amount, p.UnallocatedAmount, p.ActiveAllocatedTotal()))
	}
	return nil
}

// GetUnallocatedMoney returns the unallocated amount as Money
func (p *Payment) GetUnallocatedMoney() valueobject.Money {
	return valueobject.NewMoneyKES(p.UnallocatedAmount)
}
