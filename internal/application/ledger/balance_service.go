package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/shared"
)

// BalanceService re-derives invoice balances from allocation rows. Routine
// flows keep balances correct on their own; this service backs the
// reconciliation sweep and manual repair after an integrity alert.
type BalanceService struct {
	scope       TransactionScope
	invoiceRepo ledger.InvoiceRepository
	logger      *zap.Logger
}

// NewBalanceService creates a new BalanceService
func NewBalanceService(scope TransactionScope, invoiceRepo ledger.InvoiceRepository, logger *zap.Logger) *BalanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceService{
		scope:       scope,
		invoiceRepo: invoiceRepo,
		logger:      logger,
	}
}

// RecalculationReport summarizes a recalculation batch
type RecalculationReport struct {
	Checked   int         `json:"checked"`
	Corrected int         `json:"corrected"`
	Failed    []uuid.UUID `json:"failed,omitempty"`
}

// RecalculateInvoice re-derives one invoice's balance and status. Returns
// true when the stored balance was wrong and got corrected.
func (s *BalanceService) RecalculateInvoice(ctx context.Context, invoiceID uuid.UUID) (bool, error) {
	corrected := false

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		invoice, err := repos.InvoiceRepo().FindByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		total, err := repos.PaymentRepo().SumActiveAllocationsByInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}

		balanceBefore := invoice.Balance
		statusBefore := invoice.Status
		if err := invoice.Recalculate(total); err != nil {
			return err
		}

		if !invoice.Balance.Equal(balanceBefore) || invoice.Status != statusBefore {
			corrected = true
			s.logger.Warn("invoice balance drifted from allocation rows",
				zap.String("invoice_id", invoiceID.String()),
				zap.String("invoice_number", invoice.InvoiceNumber),
				zap.String("balance_before", balanceBefore.String()),
				zap.String("balance_after", invoice.Balance.String()),
				zap.String("status_before", statusBefore.String()),
				zap.String("status_after", invoice.Status.String()))
			return repos.InvoiceRepo().Save(ctx, invoice)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return corrected, nil
}

// RecalculateForTenant re-derives every non-void invoice for a tenant. The
// walk covers settled invoices too: an invoice wrongly sitting at Paid with
// a zero balance only gets repaired by rechecking it.
func (s *BalanceService) RecalculateForTenant(ctx context.Context, tenantID uuid.UUID) (*RecalculationReport, error) {
	report := &RecalculationReport{}

	filter := shared.DefaultFilter()
	filter.PageSize = 100
	for page := 1; ; page++ {
		filter.Page = page
		invoices, total, err := s.invoiceRepo.FindByTenant(ctx, tenantID, filter)
		if err != nil {
			return nil, err
		}
		for _, invoice := range invoices {
			if invoice.Status == ledger.InvoiceStatusVoid {
				continue
			}
			report.Checked++
			corrected, err := s.RecalculateInvoice(ctx, invoice.ID)
			if err != nil {
				report.Failed = append(report.Failed, invoice.ID)
				s.logger.Error("invoice recalculation failed",
					zap.String("invoice_id", invoice.ID.String()),
					zap.Error(err))
				continue
			}
			if corrected {
				report.Corrected++
			}
		}
		if int64(page*filter.PageSize) >= total || len(invoices) == 0 {
			break
		}
	}
	return report, nil
}

// RecalculateAll walks every invoice in batches. Each invoice gets its own
// short transaction so the walk never holds long locks.
func (s *BalanceService) RecalculateAll(ctx context.Context, batchSize int) (*RecalculationReport, error) {
	if batchSize <= 0 {
		batchSize = 200
	}

	report := &RecalculationReport{}
	offset := 0
	for {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		ids, err := s.invoiceRepo.FindIDsPage(ctx, offset, batchSize)
		if err != nil {
			return report, err
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			report.Checked++
			corrected, err := s.RecalculateInvoice(ctx, id)
			if err != nil {
				report.Failed = append(report.Failed, id)
				continue
			}
			if corrected {
				report.Corrected++
			}
		}
		offset += len(ids)
	}

	return report, nil
}

// OutstandingBalance returns the total open balance across a tenant's invoices
func (s *BalanceService) OutstandingBalance(ctx context.Context, tenantID uuid.UUID) (decimal.Decimal, error) {
	if tenantID == uuid.Nil {
		return decimal.Zero, shared.NewDomainError("VALIDATION_ERROR", "Tenant ID cannot be empty")
	}
	return s.invoiceRepo.SumOutstandingByTenant(ctx, tenantID)
}
