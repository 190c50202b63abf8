package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/domain/shared/valueobject"
)

// PaymentService records money received from tenants and answers payment
// queries. Recording is idempotent on the external reference: replaying a
// receipt that already exists returns the stored payment untouched.
type PaymentService struct {
	scope       TransactionScope
	paymentRepo ledger.PaymentRepository
	allocation  *AllocationService
	logger      *zap.Logger
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(scope TransactionScope, paymentRepo ledger.PaymentRepository, allocation *AllocationService, logger *zap.Logger) *PaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		scope:       scope,
		paymentRepo: paymentRepo,
		allocation:  allocation,
		logger:      logger,
	}
}

// RecordPaymentCommand carries the inputs for recording a payment
type RecordPaymentCommand struct {
	LandlordID        uuid.UUID
	TenantID          uuid.UUID
	Amount            valueobject.Money
	Method            ledger.PaymentMethod
	ExternalReference string
	PayerPhone        string
	Narrative         string
	PaymentDate       time.Time
	AutoAllocate      bool // Spread the funds across open invoices immediately
}

// RecordResult reports the stored payment and whether this call created it
type RecordResult struct {
	Payment    *ledger.Payment    `json:"payment"`
	Created    bool               `json:"created"`
	Allocation *AllocationOutcome `json:"allocation,omitempty"`
}

// Record stores a payment. A duplicate external reference short-circuits to
// the already stored payment so provider retries and double manual entry
// cannot double-credit a tenant.
func (s *PaymentService) Record(ctx context.Context, cmd RecordPaymentCommand) (*RecordResult, error) {
	var result *RecordResult

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		if cmd.ExternalReference != "" {
			existing, err := repos.PaymentRepo().FindByExternalReference(ctx, cmd.ExternalReference)
			if err != nil {
				return err
			}
			if existing != nil {
				result = &RecordResult{Payment: existing, Created: false}
				return nil
			}
		}

		payment, err := ledger.NewPayment(
			cmd.LandlordID,
			NewPaymentNumber(cmd.PaymentDate),
			cmd.TenantID,
			cmd.Amount,
			cmd.Method,
			cmd.ExternalReference,
			cmd.PayerPhone,
			cmd.PaymentDate,
		)
		if err != nil {
			return err
		}
		payment.Narrative = cmd.Narrative

		if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
			return err
		}

		result = &RecordResult{Payment: payment, Created: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		s.logger.Info("payment recorded",
			zap.String("payment_id", result.Payment.ID.String()),
			zap.String("tenant_id", cmd.TenantID.String()),
			zap.String("amount", cmd.Amount.Amount().String()),
			zap.String("method", cmd.Method.String()),
			zap.String("external_reference", cmd.ExternalReference))
	} else {
		s.logger.Info("duplicate payment reference, returning stored payment",
			zap.String("payment_id", result.Payment.ID.String()),
			zap.String("external_reference", cmd.ExternalReference))
		return result, nil
	}

	// Allocation runs in its own transaction; a failure here leaves the
	// payment recorded with its funds unallocated rather than losing it.
	if cmd.AutoAllocate {
		outcome, err := s.allocation.AllocateToOutstanding(ctx, result.Payment.ID)
		if err != nil {
			s.logger.Warn("auto-allocation after recording failed",
				zap.String("payment_id", result.Payment.ID.String()),
				zap.Error(err))
		} else {
			result.Allocation = outcome
			refreshed, err := s.paymentRepo.FindByID(ctx, result.Payment.ID)
			if err == nil {
				result.Payment = refreshed
			}
		}
	}

	return result, nil
}

// GetByID retrieves a payment with its allocations
func (s *PaymentService) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Payment, error) {
	payment, err := s.paymentRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "Payment not found")
	}
	return payment, nil
}

// ListByTenant lists a tenant's payments within a date range
func (s *PaymentService) ListByTenant(ctx context.Context, tenantID uuid.UUID, from, to time.Time, filter shared.Filter) ([]ledger.Payment, int64, error) {
	return s.paymentRepo.FindByTenant(ctx, tenantID, from, to, filter)
}

// ListCredits lists payments still carrying unallocated funds for a tenant
func (s *PaymentService) ListCredits(ctx context.Context, tenantID uuid.UUID) ([]ledger.Payment, error) {
	return s.paymentRepo.FindWithUnallocatedFunds(ctx, tenantID)
}

// NewPaymentNumber builds a human-readable payment number
func NewPaymentNumber(at time.Time) string {
	if at.IsZero() {
		at = time.Now()
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("PAY-%s-%s", at.Format("20060102"), suffix)
}
