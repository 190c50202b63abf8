package mpesa

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ledgerapp "github.com/makao/backend/internal/application/ledger"
	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/domain/shared/valueobject"
)

// UnmatchedService works the quarantine queue. Resolving a deposit creates
// the ledger payment and closes the quarantine record in one transaction, so
// the money is either quarantined or on a tenant's account, never both and
// never neither.
type UnmatchedService struct {
	scope      ledgerapp.TransactionScope
	unmatched  mpesa.UnmatchedPaymentRepository
	tenancies  ledger.TenancyDirectory
	allocation *ledgerapp.AllocationService
	logger     *zap.Logger
}

// NewUnmatchedService creates a new UnmatchedService
func NewUnmatchedService(
	scope ledgerapp.TransactionScope,
	unmatched mpesa.UnmatchedPaymentRepository,
	tenancies ledger.TenancyDirectory,
	allocation *ledgerapp.AllocationService,
	logger *zap.Logger,
) *UnmatchedService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UnmatchedService{
		scope:      scope,
		unmatched:  unmatched,
		tenancies:  tenancies,
		allocation: allocation,
		logger:     logger,
	}
}

// List pages through unmatched payments in a given status, oldest first
func (s *UnmatchedService) List(ctx context.Context, status mpesa.UnmatchedStatus, filter shared.Filter) ([]mpesa.UnmatchedPayment, int64, error) {
	if !status.IsValid() {
		return nil, 0, shared.NewDomainError("VALIDATION_ERROR", "Unmatched status is not valid")
	}
	return s.unmatched.FindByStatus(ctx, status, filter)
}

// Get retrieves one unmatched payment
func (s *UnmatchedService) Get(ctx context.Context, id uuid.UUID) (*mpesa.UnmatchedPayment, error) {
	up, err := s.unmatched.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if up == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Unmatched payment not found")
	}
	return up, nil
}

// CountOpen counts deposits still awaiting attention
func (s *UnmatchedService) CountOpen(ctx context.Context) (int64, error) {
	return s.unmatched.CountOpen(ctx)
}

// MarkUnderReview flags a deposit as being worked on
func (s *UnmatchedService) MarkUnderReview(ctx context.Context, id uuid.UUID, notes string) error {
	return s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
		up, err := repos.UnmatchedRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if up == nil {
			return shared.NewDomainError("NOT_FOUND", "Unmatched payment not found")
		}
		if err := up.MarkUnderReview(notes); err != nil {
			return err
		}
		return repos.UnmatchedRepo().Save(ctx, up)
	})
}

// ResolveCommand carries the inputs for routing a quarantined deposit.
// InvoiceID pins the money to one named invoice; when nil the payment is
// spread over the tenant's outstanding invoices oldest first.
type ResolveCommand struct {
	UnmatchedID uuid.UUID
	TenantID    uuid.UUID
	ResolvedBy  uuid.UUID
	Notes       string
	InvoiceID   *uuid.UUID
}

// Resolve routes a quarantined deposit to a tenant as a payment and applies
// it to the tenant's invoices. An allocation failure still leaves the
// deposit resolved; the money stays on the account as credit.
func (s *UnmatchedService) Resolve(ctx context.Context, cmd ResolveCommand) (*ledger.Payment, error) {
	tenancy, err := s.tenancies.FindByTenantID(ctx, cmd.TenantID)
	if err != nil {
		return nil, err
	}
	if tenancy == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "No active tenancy for tenant")
	}

	var payment *ledger.Payment

	err = s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
		up, err := repos.UnmatchedRepo().FindByIDForUpdate(ctx, cmd.UnmatchedID)
		if err != nil {
			return err
		}
		if up == nil {
			return shared.NewDomainError("NOT_FOUND", "Unmatched payment not found")
		}

		payment, err = ledger.NewPayment(
			tenancy.LandlordID,
			ledgerapp.NewPaymentNumber(time.Now()),
			cmd.TenantID,
			valueobject.NewMoneyKES(up.Amount),
			ledger.PaymentMethodMpesa,
			up.ExternalReference,
			up.PayerPhone,
			up.ReceivedAt,
		)
		if err != nil {
			return err
		}
		payment.Narrative = fmt.Sprintf("Resolved from quarantined deposit (payer reference %q)", up.AccountReference)

		if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
			return err
		}
		if err := up.Resolve(cmd.TenantID, payment.ID, cmd.ResolvedBy, cmd.Notes); err != nil {
			return err
		}
		return repos.UnmatchedRepo().Save(ctx, up)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("unmatched payment resolved",
		zap.String("unmatched_id", cmd.UnmatchedID.String()),
		zap.String("payment_id", payment.ID.String()),
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("resolved_by", cmd.ResolvedBy.String()))

	s.allocateResolved(ctx, payment.ID, cmd.InvoiceID)

	return payment, nil
}

// allocateResolved applies a freshly resolved payment to invoices, either
// the one named or whatever is outstanding
func (s *UnmatchedService) allocateResolved(ctx context.Context, paymentID uuid.UUID, invoiceID *uuid.UUID) {
	var err error
	if invoiceID != nil {
		// A zero request amount takes as much as the invoice can absorb.
		_, err = s.allocation.AllocateExplicit(ctx, paymentID, []ledger.AllocationRequest{{InvoiceID: *invoiceID}})
	} else {
		_, err = s.allocation.AllocateToOutstanding(ctx, paymentID)
	}
	if err != nil {
		s.logger.Warn("allocation after resolution failed",
			zap.String("payment_id", paymentID.String()),
			zap.Error(err))
	}
}

// MarkRefunded records that a quarantined deposit was returned to the payer
func (s *UnmatchedService) MarkRefunded(ctx context.Context, id, refundedBy uuid.UUID, notes string) error {
	err := s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
		up, err := repos.UnmatchedRepo().FindByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if up == nil {
			return shared.NewDomainError("NOT_FOUND", "Unmatched payment not found")
		}
		if err := up.MarkRefunded(refundedBy, notes); err != nil {
			return err
		}
		return repos.UnmatchedRepo().Save(ctx, up)
	})
	if err != nil {
		return err
	}

	s.logger.Info("unmatched payment refunded",
		zap.String("unmatched_id", id.String()),
		zap.String("refunded_by", refundedBy.String()))
	return nil
}
