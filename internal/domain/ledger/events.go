package ledger

import (
	"github.com/google/uuid"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Event type constants for the ledger context
const (
	EventTypeInvoiceIssued        = "ledger.invoice.issued"
	EventTypeInvoicePartiallyPaid = "ledger.invoice.partially_paid"
	EventTypeInvoicePaid          = "ledger.invoice.paid"
	EventTypeInvoiceVoided        = "ledger.invoice.voided"
	EventTypeInvoiceOverdue       = "ledger.invoice.overdue"
	EventTypePaymentReceived      = "ledger.payment.received"
	EventTypePaymentAllocated     = "ledger.payment.allocated"
	EventTypePaymentReversed      = "ledger.payment.reversed"
)

// InvoiceIssuedEvent is raised when a new invoice enters the ledger
type InvoiceIssuedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	UnitID        uuid.UUID       `json:"unit_id"`
	Amount        decimal.Decimal `json:"amount"`
	Balance       decimal.Decimal `json:"balance"`
}

// NewInvoiceIssuedEvent creates a new InvoiceIssuedEvent
func NewInvoiceIssuedEvent(inv *Invoice) *InvoiceIssuedEvent {
	return &InvoiceIssuedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceIssued, "Invoice", inv.ID, inv.LandlordID),
		InvoiceNumber:   inv.InvoiceNumber,
		TenantID:        inv.TenantID,
		UnitID:          inv.UnitID,
		Amount:          inv.Amount,
		Balance:         inv.Balance,
	}
}

// InvoicePartiallyPaidEvent is raised when an invoice balance drops but stays positive
type InvoicePartiallyPaidEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	Balance       decimal.Decimal `json:"balance"`
}

// NewInvoicePartiallyPaidEvent creates a new InvoicePartiallyPaidEvent
func NewInvoicePartiallyPaidEvent(inv *Invoice) *InvoicePartiallyPaidEvent {
	return &InvoicePartiallyPaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePartiallyPaid, "Invoice", inv.ID, inv.LandlordID),
		InvoiceNumber:   inv.InvoiceNumber,
		TenantID:        inv.TenantID,
		Balance:         inv.Balance,
	}
}

// InvoicePaidEvent is raised when an invoice is settled in full
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string    `json:"invoice_number"`
	TenantID      uuid.UUID `json:"tenant_id"`
}

// NewInvoicePaidEvent creates a new InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice) *InvoicePaidEvent {
	return &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaid, "Invoice", inv.ID, inv.LandlordID),
		InvoiceNumber:   inv.InvoiceNumber,
		TenantID:        inv.TenantID,
	}
}

// InvoiceVoidedEvent is raised when an invoice is cancelled
type InvoiceVoidedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string `json:"invoice_number"`
	Reason        string `json:"reason"`
}

// NewInvoiceVoidedEvent creates a new InvoiceVoidedEvent
func NewInvoiceVoidedEvent(inv *Invoice) *InvoiceVoidedEvent {
	return &InvoiceVoidedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceVoided, "Invoice", inv.ID, inv.LandlordID),
		InvoiceNumber:   inv.InvoiceNumber,
		Reason:          inv.VoidReason,
	}
}

// InvoiceOverdueEvent is raised when an unsettled invoice is noticed past
// its due date
type InvoiceOverdueEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	Balance       decimal.Decimal `json:"balance"`
	DaysOverdue   int             `json:"days_overdue"`
}

// NewInvoiceOverdueEvent creates a new InvoiceOverdueEvent
func NewInvoiceOverdueEvent(inv *Invoice, daysOverdue int) *InvoiceOverdueEvent {
	return &InvoiceOverdueEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceOverdue, "Invoice", inv.ID, inv.LandlordID),
		InvoiceNumber:   inv.InvoiceNumber,
		TenantID:        inv.TenantID,
		Balance:         inv.Balance,
		DaysOverdue:     daysOverdue,
	}
}

// PaymentReceivedEvent is raised when money is recorded against a tenant
type PaymentReceivedEvent struct {
	shared.BaseDomainEvent
	PaymentNumber     string          `json:"payment_number"`
	TenantID          uuid.UUID       `json:"tenant_id"`
	Amount            decimal.Decimal `json:"amount"`
	Method            PaymentMethod   `json:"method"`
	ExternalReference string          `json:"external_reference"`
}

// NewPaymentReceivedEvent creates a new PaymentReceivedEvent
func NewPaymentReceivedEvent(p *Payment) *PaymentReceivedEvent {
	return &PaymentReceivedEvent{
		BaseDomainEvent:   shared.NewBaseDomainEvent(EventTypePaymentReceived, "Payment", p.ID, p.LandlordID),
		PaymentNumber:     p.PaymentNumber,
		TenantID:          p.TenantID,
		Amount:            p.Amount,
		Method:            p.Method,
		ExternalReference: p.ExternalReference,
	}
}

// PaymentAllocatedEvent is raised for each allocation applied to an invoice
type PaymentAllocatedEvent struct {
	shared.BaseDomainEvent
	PaymentNumber string          `json:"payment_number"`
	TenantID      uuid.UUID       `json:"tenant_id"`
	InvoiceID     uuid.UUID       `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	Unallocated   decimal.Decimal `json:"unallocated"`
}

// NewPaymentAllocatedEvent creates a new PaymentAllocatedEvent
func NewPaymentAllocatedEvent(p *Payment, alloc *PaymentAllocation) *PaymentAllocatedEvent {
	return &PaymentAllocatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentAllocated, "Payment", p.ID, p.LandlordID),
		PaymentNumber:   p.PaymentNumber,
		TenantID:        p.TenantID,
		InvoiceID:       alloc.InvoiceID,
		Amount:          alloc.Amount,
		Unallocated:     p.UnallocatedAmount,
	}
}

// PaymentReversedEvent is raised when a payment's allocations are voided
type PaymentReversedEvent struct {
	shared.BaseDomainEvent
	PaymentNumber string      `json:"payment_number"`
	Reason        string      `json:"reason"`
	InvoiceIDs    []uuid.UUID `json:"invoice_ids"`
}

// NewPaymentReversedEvent creates a new PaymentReversedEvent
func NewPaymentReversedEvent(p *Payment, reason string, invoiceIDs []uuid.UUID) *PaymentReversedEvent {
	return &PaymentReversedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePaymentReversed, "Payment", p.ID, p.LandlordID),
		PaymentNumber:   p.PaymentNumber,
		Reason:          reason,
		InvoiceIDs:      invoiceIDs,
	}
}
