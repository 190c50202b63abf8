package mpesa

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	ledgerapp "github.com/makao/backend/internal/application/ledger"
	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/internal/domain/shared"
)

// PushPaymentService starts rent collection prompts on tenants' phones.
// The transaction row is written before the provider is called, so a crash
// between the two leaves a record the sweep can finish or abandon.
type PushPaymentService struct {
	scope     ledgerapp.TransactionScope
	gateway   mpesa.Gateway
	tenancies ledger.TenancyDirectory
	logger    *zap.Logger
}

// NewPushPaymentService creates a new PushPaymentService
func NewPushPaymentService(
	scope ledgerapp.TransactionScope,
	gateway mpesa.Gateway,
	tenancies ledger.TenancyDirectory,
	logger *zap.Logger,
) *PushPaymentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PushPaymentService{
		scope:     scope,
		gateway:   gateway,
		tenancies: tenancies,
		logger:    logger,
	}
}

// InitiatePushCommand carries the inputs for a push payment
type InitiatePushCommand struct {
	TenantID uuid.UUID
	Amount   decimal.Decimal
	Phone    string // Overrides the tenancy phone when set
}

// InitiatePush creates the tracking transaction and asks the provider to
// prompt the phone. The returned transaction is Pending on success and
// Failed when the provider rejected the request.
func (s *PushPaymentService) InitiatePush(ctx context.Context, cmd InitiatePushCommand) (*mpesa.Transaction, error) {
	tenancy, err := s.tenancies.FindByTenantID(ctx, cmd.TenantID)
	if err != nil {
		return nil, err
	}
	if tenancy == nil {
		return nil, shared.NewDomainError("NOT_FOUND", "No active tenancy for tenant")
	}

	phone := cmd.Phone
	if phone == "" {
		phone = tenancy.TenantPhone
	}

	tx, err := mpesa.NewStkPushTransaction(tenancy.LandlordID, cmd.TenantID, cmd.Amount, phone, tenancy.UnitCode)
	if err != nil {
		return nil, err
	}

	if err := s.saveTransaction(ctx, tx); err != nil {
		return nil, err
	}

	req := &mpesa.StkPushRequest{
		Phone:            phone,
		Amount:           cmd.Amount,
		AccountReference: tenancy.UnitCode,
		Description:      "Rent payment",
	}
	resp, err := s.gateway.StkPush(ctx, req)
	if err != nil {
		// An unreachable provider may still have received the request, so
		// the row stays Initiated for the sweep to finish or abandon. Only
		// a definite rejection is terminal.
		if errors.Is(err, mpesa.ErrGatewayUnavailable) {
			s.logger.Warn("stk push dispatch unconfirmed, leaving transaction for sweep",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("tenant_id", cmd.TenantID.String()),
				zap.Error(err))
			return nil, shared.NewDomainError("EXTERNAL_SERVICE_ERROR", "Mobile money provider is unavailable")
		}
		if _, failErr := tx.Fail("REQUEST_FAILED", err.Error()); failErr == nil {
			_ = s.saveTransaction(ctx, tx)
		}
		s.logger.Error("stk push dispatch failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("tenant_id", cmd.TenantID.String()),
			zap.Error(err))
		if errors.Is(err, mpesa.ErrInvalidPhone) || errors.Is(err, mpesa.ErrInvalidAmount) {
			return nil, shared.NewDomainError("VALIDATION_ERROR", err.Error())
		}
		return nil, shared.NewDomainError("EXTERNAL_SERVICE_ERROR", "Mobile money provider rejected the push request")
	}

	if err := tx.MarkPending(resp.CheckoutID); err != nil {
		return nil, err
	}
	if err := s.saveTransaction(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.Info("stk push dispatched",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("tenant_id", cmd.TenantID.String()),
		zap.String("checkout_id", resp.CheckoutID),
		zap.String("amount", cmd.Amount.String()))

	return tx, nil
}

// Cancel abandons a push that never reached a provider result
func (s *PushPaymentService) Cancel(ctx context.Context, transactionID uuid.UUID, reason string) error {
	return s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
		tx, err := repos.TransactionRepo().FindByIDForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if err := tx.Cancel(reason); err != nil {
			return err
		}
		return repos.TransactionRepo().Save(ctx, tx)
	})
}

func (s *PushPaymentService) saveTransaction(ctx context.Context, tx *mpesa.Transaction) error {
	return s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
		return repos.TransactionRepo().Save(ctx, tx)
	})
}
