package ledger

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// InvoiceStatus represents the status of a rent invoice
type InvoiceStatus string

const (
	InvoiceStatusIssued        InvoiceStatus = "ISSUED"         // Unpaid, full balance outstanding
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID" // Some allocations applied, balance > 0
	InvoiceStatusPaid          InvoiceStatus = "PAID"           // Balance settled in full
	InvoiceStatusVoid          InvoiceStatus = "VOID"           // Cancelled before any payment
)

// IsValid checks if the status is a valid InvoiceStatus
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceStatusIssued, InvoiceStatusPartiallyPaid, InvoiceStatusPaid, InvoiceStatusVoid:
		return true
	}
	return false
}

// String returns the string representation of InvoiceStatus
func (s InvoiceStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the invoice is in a terminal state
func (s InvoiceStatus) IsTerminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusVoid
}

// CanReceiveAllocation returns true if allocations can be applied in this status
func (s InvoiceStatus) CanReceiveAllocation() bool {
	return s == InvoiceStatusIssued || s == InvoiceStatusPartiallyPaid
}

// LineItemKind classifies an invoice line item
type LineItemKind string

const (
	LineItemKindRent    LineItemKind = "RENT"
	LineItemKindUtility LineItemKind = "UTILITY"
	LineItemKindOther   LineItemKind = "OTHER"
)

// IsValid checks if the line item kind is valid
func (k LineItemKind) IsValid() bool {
	switch k {
	case LineItemKindRent, LineItemKindUtility, LineItemKindOther:
		return true
	}
	return false
}

// InvoiceLineItem is a charge on an invoice.
// It is a value object within the Invoice aggregate, stored as JSONB.
type InvoiceLineItem struct {
	ID          uuid.UUID       `json:"id"`
	Kind        LineItemKind    `json:"kind"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// NewInvoiceLineItem creates a new line item
func NewInvoiceLineItem(kind LineItemKind, description string, amount valueobject.Money) (*InvoiceLineItem, error) {
	if !kind.IsValid() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Line item kind is not valid")
	}
	if amount.Amount().LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Line item amount must be positive")
	}
	return &InvoiceLineItem{
		ID:          uuid.New(),
		Kind:        kind,
		Description: description,
		Amount:      amount.Amount(),
	}, nil
}

// InvoiceLineItems is a slice of InvoiceLineItem that implements GORM Scanner/Valuer for JSONB storage
type InvoiceLineItems []InvoiceLineItem

// Value implements driver.Valuer interface for GORM to store as JSONB
func (l InvoiceLineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner interface for GORM to read from JSONB
func (l *InvoiceLineItems) Scan(value interface{}) error {
	if value == nil {
		*l = InvoiceLineItems{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan InvoiceLineItems: unsupported type")
	}

	if len(bytes) == 0 {
		*l = InvoiceLineItems{}
		return nil
	}

	return json.Unmarshal(bytes, l)
}

// Total returns the sum of all line item amounts
func (l InvoiceLineItems) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range l {
		total = total.Add(item.Amount)
	}
	return total
}

// Invoice represents one tenant's bill for one billing period.
// Balance is always derivable from the line items and the active allocations
// against the invoice; cached balances are never trusted across a transaction
// boundary - Recalculate is the only writer.
type Invoice struct {
	shared.LandlordAggregateRoot
	InvoiceNumber  string           `json:"invoice_number"`
	TenantID       uuid.UUID        `json:"tenant_id"`
	PropertyID     uuid.UUID        `json:"property_id"`
	UnitID         uuid.UUID        `json:"unit_id"`
	PeriodStart    time.Time        `json:"period_start"`
	PeriodEnd      time.Time        `json:"period_end"`
	DueDate        time.Time        `json:"due_date"`
	Amount         decimal.Decimal  `json:"amount"`          // Billed total for the period
	OpeningBalance decimal.Decimal  `json:"opening_balance"` // Carried-forward arrears
	Balance        decimal.Decimal  `json:"balance"`         // Current amount owed
	Status         InvoiceStatus    `json:"status"`
	LineItems      InvoiceLineItems `json:"line_items"`
	PaidAt         *time.Time       `json:"paid_at"`
	VoidedAt       *time.Time       `json:"voided_at"`
	VoidReason     string           `json:"void_reason"`
}

// NewInvoice creates a new invoice for a billing period
func NewInvoice(
	landlordID uuid.UUID,
	invoiceNumber string,
	tenantID uuid.UUID,
	propertyID uuid.UUID,
	unitID uuid.UUID,
	periodStart time.Time,
	periodEnd time.Time,
	dueDate time.Time,
	openingBalance decimal.Decimal,
	lineItems []InvoiceLineItem,
) (*Invoice, error) {
	if invoiceNumber == "" {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice number cannot be empty")
	}
	if len(invoiceNumber) > 50 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice number cannot exceed 50 characters")
	}
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	if unitID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Unit ID cannot be empty")
	}
	if periodStart.IsZero() || periodEnd.IsZero() || !periodEnd.After(periodStart) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Billing period is not valid")
	}
	if dueDate.IsZero() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Due date is required")
	}
	if openingBalance.IsNegative() {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Opening balance cannot be negative")
	}
	if len(lineItems) == 0 {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice requires at least one line item")
	}

	items := InvoiceLineItems(lineItems)
	amount := items.Total()
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Invoice amount must be positive")
	}

	inv := &Invoice{
		LandlordAggregateRoot: shared.NewLandlordAggregateRoot(landlordID),
		InvoiceNumber:         invoiceNumber,
		TenantID:              tenantID,
		PropertyID:            propertyID,
		UnitID:                unitID,
		PeriodStart:           periodStart,
		PeriodEnd:             periodEnd,
		DueDate:               dueDate,
		Amount:                amount,
		OpeningBalance:        openingBalance,
		Balance:               openingBalance.Add(amount),
		Status:                InvoiceStatusIssued,
		LineItems:             items,
	}

	inv.AddDomainEvent(NewInvoiceIssuedEvent(inv))

	return inv, nil
}

// TotalDue returns the maximum amount allocatable to this invoice
func (inv *Invoice) TotalDue() decimal.Decimal {
	return inv.OpeningBalance.Add(inv.Amount)
}

// Recalculate sets the balance and status from the given total of active
// allocations against this invoice. The caller reads the allocation sum from
// the store inside the same transaction as the write. Totals that violate the
// invoice invariant are rejected without mutating the aggregate.
func (inv *Invoice) Recalculate(totalAllocated decimal.Decimal) error {
	if inv.Status == InvoiceStatusVoid {
		return nil
	}
	if totalAllocated.IsNegative() {
		return shared.NewDomainError("INTEGRITY_ERROR",
			fmt.Sprintf("Invoice %s has negative allocation total %s", inv.InvoiceNumber, totalAllocated))
	}
	if totalAllocated.GreaterThan(inv.TotalDue()) {
		return shared.NewDomainError("INTEGRITY_ERROR",
			fmt.Sprintf("Invoice %s allocations %s exceed total due %s", inv.InvoiceNumber, totalAllocated, inv.TotalDue()))
	}

	previousStatus := inv.Status
	inv.Balance = inv.TotalDue().Sub(totalAllocated)

	switch {
	case inv.Balance.LessThanOrEqual(decimal.Zero):
		inv.Status = InvoiceStatusPaid
		if inv.PaidAt == nil {
			now := time.Now()
			inv.PaidAt = &now
		}
	case totalAllocated.GreaterThan(decimal.Zero):
		inv.Status = InvoiceStatusPartiallyPaid
		inv.PaidAt = nil
	default:
		inv.Status = InvoiceStatusIssued
		inv.PaidAt = nil
	}

	if inv.Status != previousStatus {
		switch inv.Status {
		case InvoiceStatusPaid:
			inv.AddDomainEvent(NewInvoicePaidEvent(inv))
		case InvoiceStatusPartiallyPaid:
			inv.AddDomainEvent(NewInvoicePartiallyPaidEvent(inv))
		}
	}

	inv.UpdatedAt = time.Now()
	inv.IncrementVersion()

	return nil
}

// Void cancels the invoice. Only allowed while nothing has been allocated
// against it; the caller verifies allocation absence within the transaction.
func (inv *Invoice) Void(reason string) error {
	if inv.Status.IsTerminal() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot void invoice in %s status", inv.Status))
	}
	if inv.Status == InvoiceStatusPartiallyPaid {
		return shared.NewDomainError("INVALID_STATE", "Cannot void invoice with existing allocations")
	}
	if reason == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Void reason is required")
	}

	now := time.Now()
	inv.Status = InvoiceStatusVoid
	inv.VoidedAt = &now
	inv.VoidReason = reason
	inv.Balance = decimal.Zero
	inv.UpdatedAt = now
	inv.IncrementVersion()

	inv.AddDomainEvent(NewInvoiceVoidedEvent(inv))

	return nil
}

// GetBalanceMoney returns the balance as Money
func (inv *Invoice) GetBalanceMoney() valueobject.Money {
	return valueobject.NewMoneyKES(inv.Balance)
}

// IsOutstanding returns true if the invoice still owes money
func (inv *Invoice) IsOutstanding() bool {
	return inv.Status.CanReceiveAllocation() && inv.Balance.GreaterThan(decimal.Zero)
}

// IsOverdue returns true if the invoice is past its due date and not settled
func (inv *Invoice) IsOverdue(asOf time.Time) bool {
	if inv.Status.IsTerminal() {
		return false
	}
	return asOf.After(inv.DueDate)
}

// DaysOverdue returns the number of days past due (0 if not overdue)
func (inv *Invoice) DaysOverdue(asOf time.Time) int {
	if !inv.IsOverdue(asOf) {
		return 0
	}
	return int(asOf.Sub(inv.DueDate).Hours() / 24)
}
