package notification

import (
	"context"

	"go.uber.org/zap"
)

// LogNotifier writes notices to the log instead of sending them. Used in
// development and whenever no SMS provider is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("notify")}
}

// SendPaymentReceipt logs a payment receipt notice
func (n *LogNotifier) SendPaymentReceipt(_ context.Context, receipt PaymentReceipt) error {
	n.logger.Info("payment receipt",
		zap.String("phone", receipt.Phone),
		zap.String("payment_number", receipt.PaymentNumber),
		zap.String("amount", receipt.Amount.String()),
		zap.String("unallocated", receipt.Unallocated.String()))
	return nil
}

// SendOverdueNotice logs an overdue invoice notice
func (n *LogNotifier) SendOverdueNotice(_ context.Context, notice OverdueNotice) error {
	n.logger.Info("overdue notice",
		zap.String("phone", notice.Phone),
		zap.String("invoice_number", notice.InvoiceNumber),
		zap.String("balance", notice.Balance.String()),
		zap.Int("days_overdue", notice.DaysOverdue))
	return nil
}

var _ Notifier = (*LogNotifier)(nil)
