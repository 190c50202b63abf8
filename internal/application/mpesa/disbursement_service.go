package mpesa

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	ledgerapp "github.com/makao/backend/internal/application/ledger"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/internal/domain/shared"
)

// DisbursementService pays collected rent out to landlords. The payout is
// tracked through the same transaction state machine as collections; the
// result arrives through the B2C callback.
type DisbursementService struct {
	scope   ledgerapp.TransactionScope
	gateway mpesa.Gateway
	logger  *zap.Logger
}

// NewDisbursementService creates a new DisbursementService
func NewDisbursementService(scope ledgerapp.TransactionScope, gateway mpesa.Gateway, logger *zap.Logger) *DisbursementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DisbursementService{
		scope:   scope,
		gateway: gateway,
		logger:  logger,
	}
}

// InitiateDisbursementCommand carries the inputs for a payout. SettlementID
// links the payout to the settlement being paid out, when there is one.
type InitiateDisbursementCommand struct {
	LandlordID   uuid.UUID
	Amount       decimal.Decimal
	Phone        string
	Remarks      string
	SettlementID *uuid.UUID
}

// Initiate dispatches a payout to a landlord's phone
func (s *DisbursementService) Initiate(ctx context.Context, cmd InitiateDisbursementCommand) (*mpesa.Transaction, error) {
	if cmd.LandlordID == uuid.Nil {
		return nil, shared.NewDomainError("VALIDATION_ERROR", "Landlord ID cannot be empty")
	}

	tx, err := mpesa.NewDisbursementTransaction(cmd.LandlordID, cmd.Amount, cmd.Phone, cmd.Remarks, cmd.SettlementID)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, tx); err != nil {
		return nil, err
	}

	resp, err := s.gateway.B2CPayment(ctx, &mpesa.B2CRequest{
		Phone:   cmd.Phone,
		Amount:  cmd.Amount,
		Remarks: cmd.Remarks,
	})
	if err != nil {
		// The provider may have accepted a payout we never got an answer
		// for. Failing the row here could double-pay once the real result
		// lands, so unconfirmed sends stay Initiated for the sweep.
		if errors.Is(err, mpesa.ErrGatewayUnavailable) {
			s.logger.Warn("disbursement dispatch unconfirmed, leaving transaction for sweep",
				zap.String("transaction_id", tx.ID.String()),
				zap.String("landlord_id", cmd.LandlordID.String()),
				zap.Error(err))
			return nil, shared.NewDomainError("EXTERNAL_SERVICE_ERROR", "Mobile money provider is unavailable")
		}
		if _, failErr := tx.Fail("REQUEST_FAILED", err.Error()); failErr == nil {
			_ = s.save(ctx, tx)
		}
		s.logger.Error("disbursement dispatch failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("landlord_id", cmd.LandlordID.String()),
			zap.Error(err))
		return nil, shared.NewDomainError("EXTERNAL_SERVICE_ERROR", "Mobile money provider rejected the payout request")
	}

	if err := tx.MarkPending(resp.ConversationID); err != nil {
		return nil, err
	}
	if err := s.save(ctx, tx); err != nil {
		return nil, err
	}

	s.logger.Info("disbursement dispatched",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("landlord_id", cmd.LandlordID.String()),
		zap.String("conversation_id", resp.ConversationID),
		zap.String("amount", cmd.Amount.String()))

	return tx, nil
}

// ListByLandlord lists a landlord's transactions newest first
func (s *DisbursementService) ListByLandlord(ctx context.Context, landlordID uuid.UUID, filter shared.Filter) ([]mpesa.Transaction, int64, error) {
	var (
		result []mpesa.Transaction
		total  int64
	)
	err := s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
		var err error
		result, total, err = repos.TransactionRepo().FindByLandlord(ctx, landlordID, filter)
		return err
	})
	return result, total, err
}

func (s *DisbursementService) save(ctx context.Context, tx *mpesa.Transaction) error {
	return s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
		return repos.TransactionRepo().Save(ctx, tx)
	})
}
