package notification

import (
	"context"

	"go.uber.org/zap"

	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/shared"
)

// Dispatcher turns ledger events into tenant notices. It resolves the
// tenant's phone through the tenancy directory and hands the notice to the
// configured Notifier.
type Dispatcher struct {
	notifier  Notifier
	tenancies ledger.TenancyDirectory
	logger    *zap.Logger
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(notifier Notifier, tenancies ledger.TenancyDirectory, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		notifier:  notifier,
		tenancies: tenancies,
		logger:    logger,
	}
}

// EventTypes lists the events the dispatcher reacts to
func (d *Dispatcher) EventTypes() []string {
	return []string{
		ledger.EventTypePaymentAllocated,
		ledger.EventTypeInvoiceOverdue,
	}
}

// Handle sends the notice for a single event
func (d *Dispatcher) Handle(ctx context.Context, evt shared.DomainEvent) error {
	switch e := evt.(type) {
	case *ledger.PaymentAllocatedEvent:
		return d.sendReceipt(ctx, e)
	case *ledger.InvoiceOverdueEvent:
		return d.sendOverdueNotice(ctx, e)
	default:
		return nil
	}
}

func (d *Dispatcher) sendReceipt(ctx context.Context, evt *ledger.PaymentAllocatedEvent) error {
	tenancy, err := d.tenancies.FindByTenantID(ctx, evt.TenantID)
	if err != nil || tenancy == nil {
		d.logger.Warn("cannot resolve tenant for receipt",
			zap.String("tenant_id", evt.TenantID.String()),
			zap.Error(err))
		return nil
	}

	return d.notifier.SendPaymentReceipt(ctx, PaymentReceipt{
		Phone:         tenancy.TenantPhone,
		TenantName:    tenancy.TenantName,
		PaymentNumber: evt.PaymentNumber,
		Amount:        evt.Amount,
		Unallocated:   evt.Unallocated,
	})
}

func (d *Dispatcher) sendOverdueNotice(ctx context.Context, evt *ledger.InvoiceOverdueEvent) error {
	tenancy, err := d.tenancies.FindByTenantID(ctx, evt.TenantID)
	if err != nil || tenancy == nil {
		d.logger.Warn("cannot resolve tenant for overdue notice",
			zap.String("tenant_id", evt.TenantID.String()),
			zap.Error(err))
		return nil
	}

	return d.notifier.SendOverdueNotice(ctx, OverdueNotice{
		Phone:         tenancy.TenantPhone,
		TenantName:    tenancy.TenantName,
		InvoiceNumber: evt.InvoiceNumber,
		Balance:       evt.Balance,
		DaysOverdue:   evt.DaysOverdue,
	})
}

var _ shared.EventHandler = (*Dispatcher)(nil)
