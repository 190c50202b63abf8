// Package notification delivers SMS notices to tenants. Delivery is
// fire-and-forget: a failed send is logged and never affects ledger state.
package notification

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentReceipt is the notice sent after funds are applied to an invoice
type PaymentReceipt struct {
	Phone         string
	TenantName    string
	PaymentNumber string
	Amount        decimal.Decimal
	Unallocated   decimal.Decimal
}

// OverdueNotice is the notice sent for an invoice past its due date
type OverdueNotice struct {
	Phone         string
	TenantName    string
	InvoiceNumber string
	Balance       decimal.Decimal
	DaysOverdue   int
}

// Notifier sends tenant notices through some delivery channel
type Notifier interface {
	SendPaymentReceipt(ctx context.Context, receipt PaymentReceipt) error
	SendOverdueNotice(ctx context.Context, notice OverdueNotice) error
}
