package mpesa

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	ledgerapp "github.com/makao/backend/internal/application/ledger"
	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/domain/shared/valueobject"
)

// CallbackService turns provider callbacks into ledger facts. Every handler
// is safe to replay: a short-circuit on the idempotency store catches exact
// duplicates cheaply, and the state machine plus the unique external
// reference catch replays that slip past it.
type CallbackService struct {
	scope       ledgerapp.TransactionScope
	tenancies   ledger.TenancyDirectory
	allocation  *ledgerapp.AllocationService
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
	publisher   shared.EventPublisher
	logger      *zap.Logger
}

// NewCallbackService creates a new CallbackService
func NewCallbackService(
	scope ledgerapp.TransactionScope,
	tenancies ledger.TenancyDirectory,
	allocation *ledgerapp.AllocationService,
	idempotency shared.IdempotencyStore,
	idemConfig shared.IdempotencyConfig,
	logger *zap.Logger,
) *CallbackService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CallbackService{
		scope:       scope,
		tenancies:   tenancies,
		allocation:  allocation,
		idempotency: idempotency,
		idemConfig:  idemConfig,
		logger:      logger,
	}
}

// SetEventPublisher attaches a publisher for the domain events raised while
// applying callbacks. Events go out after the enclosing transaction commits.
func (s *CallbackService) SetEventPublisher(publisher shared.EventPublisher) {
	s.publisher = publisher
}

// publishEvents pushes collected aggregate events after commit. Publish
// failures are logged, never returned; the committed state is the truth.
func (s *CallbackService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish callback events",
			zap.Int("event_count", len(events)),
			zap.Error(err))
	}
}

// HandleStkCallback processes the result of a push payment prompt
func (s *CallbackService) HandleStkCallback(ctx context.Context, result *mpesa.StkCallbackResult) error {
	if result.CheckoutID == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Callback is missing the checkout ID")
	}

	key := fmt.Sprintf("stk:%s:%d", result.CheckoutID, result.ResultCode)
	first, err := s.idempotency.MarkProcessed(ctx, key, s.idemConfig.TTL)
	if err != nil {
		// The store being down must not drop a callback; the state machine
		// still rejects true duplicates.
		s.logger.Warn("idempotency store unavailable, proceeding",
			zap.String("key", key), zap.Error(err))
	} else if !first {
		s.logger.Info("duplicate stk callback ignored",
			zap.String("checkout_id", result.CheckoutID))
		return nil
	}

	var (
		paymentID *uuid.UUID
		events    []shared.DomainEvent
	)

	err = s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
		tx, err := repos.TransactionRepo().FindByCheckoutIDForUpdate(ctx, result.CheckoutID)
		if err != nil {
			return err
		}
		if tx == nil {
			return shared.NewDomainError("NOT_FOUND",
				fmt.Sprintf("No transaction tracks checkout %s", result.CheckoutID))
		}

		if !result.Succeeded() {
			changed, err := tx.Fail(fmt.Sprintf("%d", result.ResultCode), result.ResultDescription)
			if err != nil {
				return err
			}
			if changed {
				if err := repos.TransactionRepo().Save(ctx, tx); err != nil {
					return err
				}
				events = append(events, tx.GetDomainEvents()...)
				tx.ClearDomainEvents()
			}
			return nil
		}

		changed, err := tx.Complete(result.ProviderReference,
			fmt.Sprintf("%d", result.ResultCode), result.ResultDescription, result.TransactionDate)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		tenantID := tx.TenantID()
		if tenantID == nil {
			return shared.NewDomainError("INTEGRITY_ERROR", "Push transaction lost its tenant link")
		}

		payment, err := s.recordPayment(ctx, repos, tx.LandlordID, *tenantID, result.ProviderReference,
			result.Amount, result.Phone, fmt.Sprintf("STK push %s", result.CheckoutID))
		if err != nil {
			return err
		}
		if err := tx.LinkPayment(payment.ID); err != nil {
			return err
		}
		if err := repos.TransactionRepo().Save(ctx, tx); err != nil {
			return err
		}
		events = append(events, tx.GetDomainEvents()...)
		tx.ClearDomainEvents()
		paymentID = &payment.ID
		return nil
	})
	if err != nil {
		if releaseErr := s.idempotency.Release(ctx, key); releaseErr != nil {
			s.logger.Warn("failed to release idempotency key after error",
				zap.String("key", key), zap.Error(releaseErr))
		}
		return err
	}

	s.publishEvents(ctx, events)
	s.allocateInBackground(ctx, paymentID)
	return nil
}

// HandleC2BConfirmation processes a tenant-initiated paybill deposit.
// Deposits that resolve to a tenancy become payments; the rest are
// quarantined, never dropped.
func (s *CallbackService) HandleC2BConfirmation(ctx context.Context, conf *mpesa.C2BConfirmation) error {
	if conf.ProviderReference == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Confirmation is missing the receipt number")
	}

	key := "c2b:" + conf.ProviderReference
	first, err := s.idempotency.MarkProcessed(ctx, key, s.idemConfig.TTL)
	if err != nil {
		s.logger.Warn("idempotency store unavailable, proceeding",
			zap.String("key", key), zap.Error(err))
	} else if !first {
		s.logger.Info("duplicate c2b confirmation ignored",
			zap.String("provider_reference", conf.ProviderReference))
		return nil
	}

	tenancy, err := s.tenancies.FindByUnitCode(ctx, conf.AccountReference)
	if err != nil {
		if releaseErr := s.idempotency.Release(ctx, key); releaseErr != nil {
			s.logger.Warn("failed to release idempotency key after error",
				zap.String("key", key), zap.Error(releaseErr))
		}
		return err
	}

	var (
		paymentID *uuid.UUID
		events    []shared.DomainEvent
	)

	err = s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
		// Replays that beat the idempotency store land here.
		existing, err := repos.PaymentRepo().FindByExternalReference(ctx, conf.ProviderReference)
		if err != nil {
			return err
		}
		if existing != nil {
			return nil
		}
		quarantined, err := repos.UnmatchedRepo().FindByExternalReference(ctx, conf.ProviderReference)
		if err != nil {
			return err
		}
		if quarantined != nil {
			return nil
		}

		if tenancy == nil {
			return s.quarantine(ctx, repos, conf, mpesa.UnmatchedReasonUnknownReference)
		}

		tx, err := mpesa.NewC2BTransaction(tenancy.LandlordID, conf.Amount, conf.Phone,
			conf.AccountReference, conf.ProviderReference, conf.TransactionDate)
		if err != nil {
			return err
		}
		if err := tx.LinkTenant(tenancy.TenantID); err != nil {
			return err
		}

		payment, err := s.recordPayment(ctx, repos, tenancy.LandlordID, tenancy.TenantID,
			conf.ProviderReference, conf.Amount, conf.Phone,
			fmt.Sprintf("Paybill deposit to %s", conf.AccountReference))
		if err != nil {
			return err
		}
		if err := tx.LinkPayment(payment.ID); err != nil {
			return err
		}
		if err := repos.TransactionRepo().Save(ctx, tx); err != nil {
			return err
		}
		events = append(events, tx.GetDomainEvents()...)
		tx.ClearDomainEvents()
		paymentID = &payment.ID
		return nil
	})
	if err != nil {
		if releaseErr := s.idempotency.Release(ctx, key); releaseErr != nil {
			s.logger.Warn("failed to release idempotency key after error",
				zap.String("key", key), zap.Error(releaseErr))
		}
		return err
	}

	s.publishEvents(ctx, events)
	s.allocateInBackground(ctx, paymentID)
	return nil
}

// HandleB2CResult processes the result of a landlord payout.
// A successful payout raises a disbursement completion event so settlement
// bookkeeping can mark the originating settlement as disbursed.
func (s *CallbackService) HandleB2CResult(ctx context.Context, result *mpesa.B2CResult) error {
	if result.ConversationID == "" {
		return shared.NewDomainError("VALIDATION_ERROR", "Result is missing the conversation ID")
	}

	key := fmt.Sprintf("b2c:%s:%d", result.ConversationID, result.ResultCode)
	first, err := s.idempotency.MarkProcessed(ctx, key, s.idemConfig.TTL)
	if err != nil {
		s.logger.Warn("idempotency store unavailable, proceeding",
			zap.String("key", key), zap.Error(err))
	} else if !first {
		return nil
	}

	var events []shared.DomainEvent

	err = s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
		tx, err := repos.TransactionRepo().FindByCheckoutIDForUpdate(ctx, result.ConversationID)
		if err != nil {
			return err
		}
		if tx == nil {
			return shared.NewDomainError("NOT_FOUND",
				fmt.Sprintf("No transaction tracks conversation %s", result.ConversationID))
		}

		var changed bool
		if result.Succeeded() {
			changed, err = tx.Complete(result.ProviderReference,
				fmt.Sprintf("%d", result.ResultCode), result.ResultDescription, result.TransactionDate)
		} else {
			changed, err = tx.Fail(fmt.Sprintf("%d", result.ResultCode), result.ResultDescription)
		}
		if err != nil {
			return err
		}
		if changed {
			if err := repos.TransactionRepo().Save(ctx, tx); err != nil {
				return err
			}
			events = append(events, tx.GetDomainEvents()...)
			tx.ClearDomainEvents()
		}
		return nil
	})
	if err != nil {
		if releaseErr := s.idempotency.Release(ctx, key); releaseErr != nil {
			s.logger.Warn("failed to release idempotency key after error",
				zap.String("key", key), zap.Error(releaseErr))
		}
		return err
	}

	s.publishEvents(ctx, events)

	s.logger.Info("b2c result applied",
		zap.String("conversation_id", result.ConversationID),
		zap.Int("result_code", result.ResultCode))
	return nil
}

// recordPayment creates the ledger payment for a confirmed deposit inside
// the caller's transaction
func (s *CallbackService) recordPayment(
	ctx context.Context,
	repos ledgerapp.TransactionalRepositories,
	landlordID, tenantID uuid.UUID,
	providerReference string,
	amount decimal.Decimal,
	phone, narrative string,
) (*ledger.Payment, error) {
	money := valueobject.NewMoneyKES(amount)

	payment, err := ledger.NewPayment(
		landlordID,
		ledgerapp.NewPaymentNumber(time.Now()),
		tenantID,
		money,
		ledger.PaymentMethodMpesa,
		providerReference,
		phone,
		time.Now(),
	)
	if err != nil {
		return nil, err
	}
	payment.Narrative = narrative

	if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
		return nil, err
	}

	s.logger.Info("provider deposit recorded as payment",
		zap.String("payment_id", payment.ID.String()),
		zap.String("tenant_id", tenantID.String()),
		zap.String("external_reference", providerReference),
		zap.String("amount", money.Amount().String()))

	return payment, nil
}

// quarantine stores a deposit that resolved to nothing
func (s *CallbackService) quarantine(ctx context.Context, repos ledgerapp.TransactionalRepositories, conf *mpesa.C2BConfirmation, reason mpesa.UnmatchedReason) error {
	up, err := mpesa.NewUnmatchedPayment(
		uuid.Nil,
		conf.ProviderReference,
		conf.Amount,
		conf.Phone,
		conf.PayerName,
		conf.AccountReference,
		reason,
		conf.TransactionDate,
	)
	if err != nil {
		return err
	}
	if err := repos.UnmatchedRepo().Save(ctx, up); err != nil {
		return err
	}

	s.logger.Warn("deposit quarantined",
		zap.String("external_reference", conf.ProviderReference),
		zap.String("account_reference", conf.AccountReference),
		zap.String("amount", conf.Amount.String()),
		zap.String("reason", string(reason)))
	return nil
}

// allocateInBackground spreads a fresh payment over open invoices in its own
// transaction. An allocation failure leaves the money as tenant credit.
func (s *CallbackService) allocateInBackground(ctx context.Context, paymentID *uuid.UUID) {
	if paymentID == nil {
		return
	}
	if _, err := s.allocation.AllocateToOutstanding(ctx, *paymentID); err != nil {
		s.logger.Warn("auto-allocation after callback failed",
			zap.String("payment_id", paymentID.String()),
			zap.Error(err))
	}
}
