package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/domain/shared/valueobject"
)

// BillingService issues invoices. Monthly runs walk the active tenancies and
// are idempotent per unit and period, so a rerun after a partial failure only
// fills the gaps.
type BillingService struct {
	scope       TransactionScope
	invoiceRepo ledger.InvoiceRepository
	paymentRepo ledger.PaymentRepository
	tenancies   ledger.TenancyDirectory
	allocation  *AllocationService
	logger      *zap.Logger
}

// NewBillingService creates a new BillingService
func NewBillingService(
	scope TransactionScope,
	invoiceRepo ledger.InvoiceRepository,
	paymentRepo ledger.PaymentRepository,
	tenancies ledger.TenancyDirectory,
	allocation *AllocationService,
	logger *zap.Logger,
) *BillingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BillingService{
		scope:       scope,
		invoiceRepo: invoiceRepo,
		paymentRepo: paymentRepo,
		tenancies:   tenancies,
		allocation:  allocation,
		logger:      logger,
	}
}

// CreateInvoiceCommand carries the inputs for issuing a single invoice
type CreateInvoiceCommand struct {
	LandlordID     uuid.UUID
	TenantID       uuid.UUID
	PropertyID     uuid.UUID
	UnitID         uuid.UUID
	PeriodStart    time.Time
	PeriodEnd      time.Time
	DueDate        time.Time
	OpeningBalance decimal.Decimal // Arrears carried in from outside the system
	LineItems      []ledger.InvoiceLineItem
}

// CreateInvoice issues one invoice. A second invoice for the same unit and
// period is rejected.
func (s *BillingService) CreateInvoice(ctx context.Context, cmd CreateInvoiceCommand) (*ledger.Invoice, error) {
	var invoice *ledger.Invoice

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		exists, err := repos.InvoiceRepo().ExistsForPeriod(ctx, cmd.TenantID, cmd.UnitID, cmd.PeriodStart)
		if err != nil {
			return err
		}
		if exists {
			return shared.NewDomainError("ALREADY_EXISTS", "An invoice already covers this unit and period")
		}

		invoice, err = ledger.NewInvoice(
			cmd.LandlordID,
			NewInvoiceNumber(cmd.PeriodStart),
			cmd.TenantID,
			cmd.PropertyID,
			cmd.UnitID,
			cmd.PeriodStart,
			cmd.PeriodEnd,
			cmd.DueDate,
			cmd.OpeningBalance,
			cmd.LineItems,
		)
		if err != nil {
			return err
		}
		return repos.InvoiceRepo().Save(ctx, invoice)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("invoice issued",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_number", invoice.InvoiceNumber),
		zap.String("tenant_id", invoice.TenantID.String()),
		zap.String("amount", invoice.Amount.String()))

	return invoice, nil
}

// VoidInvoice cancels an invoice that has nothing allocated against it
func (s *BillingService) VoidInvoice(ctx context.Context, invoiceID uuid.UUID, reason string) error {
	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		invoice, err := repos.InvoiceRepo().FindByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		count, err := repos.PaymentRepo().CountActiveAllocationsByInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if count > 0 {
			return shared.NewDomainError("INVALID_STATE", "Cannot void an invoice with active allocations")
		}
		if err := invoice.Void(reason); err != nil {
			return err
		}
		return repos.InvoiceRepo().Save(ctx, invoice)
	})
	if err != nil {
		return err
	}

	s.logger.Info("invoice voided",
		zap.String("invoice_id", invoiceID.String()),
		zap.String("reason", reason))
	return nil
}

// BillingRunReport summarizes a monthly generation run
type BillingRunReport struct {
	PeriodStart   time.Time   `json:"period_start"`
	Tenancies     int         `json:"tenancies"`
	Issued        int         `json:"issued"`
	Skipped       int         `json:"skipped"`
	CreditApplied int         `json:"credit_applied"`   // Tenants whose held credit settled new invoices
	Failed        []uuid.UUID `json:"failed,omitempty"` // Tenant IDs that errored
}

// GenerateForPeriod issues rent invoices for every active tenancy for the
// month starting at periodStart. Units already invoiced for the period are
// skipped. New invoices carry no opening balance; earlier arrears already
// live on the older open invoices. Tenants holding unallocated credit from
// earlier overpayments get it applied to the freshly issued invoice.
func (s *BillingService) GenerateForPeriod(ctx context.Context, periodStart time.Time, dueDays int) (*BillingRunReport, error) {
	if dueDays <= 0 {
		dueDays = 5
	}
	periodStart = time.Date(periodStart.Year(), periodStart.Month(), 1, 0, 0, 0, 0, periodStart.Location())
	periodEnd := periodStart.AddDate(0, 1, 0)
	dueDate := periodStart.AddDate(0, 0, dueDays)

	tenancies, err := s.tenancies.ListActive(ctx, nil)
	if err != nil {
		return nil, err
	}

	report := &BillingRunReport{PeriodStart: periodStart, Tenancies: len(tenancies)}

	for _, tenancy := range tenancies {
		if tenancy.MonthlyRent.LessThanOrEqual(decimal.Zero) {
			report.Skipped++
			continue
		}

		rent, err := ledger.NewInvoiceLineItem(ledger.LineItemKindRent,
			fmt.Sprintf("Rent %s unit %s", periodStart.Format("January 2006"), tenancy.UnitCode),
			moneyFromDecimal(tenancy.MonthlyRent))
		if err != nil {
			report.Failed = append(report.Failed, tenancy.TenantID)
			continue
		}

		_, err = s.CreateInvoice(ctx, CreateInvoiceCommand{
			LandlordID:     tenancy.LandlordID,
			TenantID:       tenancy.TenantID,
			PropertyID:     tenancy.PropertyID,
			UnitID:         tenancy.UnitID,
			PeriodStart:    periodStart,
			PeriodEnd:      periodEnd,
			DueDate:        dueDate,
			OpeningBalance: decimal.Zero,
			LineItems:      []ledger.InvoiceLineItem{*rent},
		})
		if err != nil {
			if domainErr, ok := err.(*shared.DomainError); ok && domainErr.Code == "ALREADY_EXISTS" {
				report.Skipped++
				continue
			}
			report.Failed = append(report.Failed, tenancy.TenantID)
			s.logger.Error("invoice generation failed for tenancy",
				zap.String("tenant_id", tenancy.TenantID.String()),
				zap.String("unit_code", tenancy.UnitCode),
				zap.Error(err))
			continue
		}
		report.Issued++

		if s.applyHeldCredit(ctx, tenancy.TenantID) {
			report.CreditApplied++
		}
	}

	s.logger.Info("billing run finished",
		zap.Time("period_start", periodStart),
		zap.Int("tenancies", report.Tenancies),
		zap.Int("issued", report.Issued),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", len(report.Failed)))

	return report, nil
}

// applyHeldCredit spreads a tenant's unallocated payment funds over their
// open invoices. Failures are logged, not returned; credit application is
// bookkeeping that the next run or sweep can retry.
func (s *BillingService) applyHeldCredit(ctx context.Context, tenantID uuid.UUID) bool {
	if s.allocation == nil {
		return false
	}
	credits, err := s.paymentRepo.FindWithUnallocatedFunds(ctx, tenantID)
	if err != nil {
		s.logger.Warn("could not list held credit for tenant",
			zap.String("tenant_id", tenantID.String()),
			zap.Error(err))
		return false
	}

	applied := false
	for i := range credits {
		outcome, err := s.allocation.AllocateToOutstanding(ctx, credits[i].ID)
		if err != nil {
			s.logger.Warn("applying held credit failed",
				zap.String("payment_id", credits[i].ID.String()),
				zap.String("tenant_id", tenantID.String()),
				zap.Error(err))
			continue
		}
		if outcome.TotalAllocated.GreaterThan(decimal.Zero) {
			applied = true
		}
	}
	return applied
}

// GetInvoice retrieves an invoice by ID
func (s *BillingService) GetInvoice(ctx context.Context, id uuid.UUID) (*ledger.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Invoice not found")
	}
	return invoice, nil
}

// ListByTenant lists a tenant's invoices
func (s *BillingService) ListByTenant(ctx context.Context, tenantID uuid.UUID, filter shared.Filter) ([]ledger.Invoice, int64, error) {
	return s.invoiceRepo.FindByTenant(ctx, tenantID, filter)
}

// ListOverdue lists a landlord's overdue invoices
func (s *BillingService) ListOverdue(ctx context.Context, landlordID uuid.UUID, asOf time.Time, filter shared.Filter) ([]ledger.Invoice, int64, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	return s.invoiceRepo.FindOverdue(ctx, landlordID, asOf, filter)
}

func moneyFromDecimal(amount decimal.Decimal) valueobject.Money {
	return valueobject.NewMoneyKES(amount)
}

// NewInvoiceNumber builds a human-readable invoice number
func NewInvoiceNumber(periodStart time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("INV-%s-%s", periodStart.Format("200601"), suffix)
}
