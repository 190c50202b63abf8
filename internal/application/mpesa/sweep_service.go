package mpesa

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	ledgerapp "github.com/makao/backend/internal/application/ledger"
	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/internal/domain/shared"
)

// SweepConfig tunes the reconciliation sweep
type SweepConfig struct {
	PendingCutoff    time.Duration // Age before a pending transaction counts as stuck
	AbandonAfter     time.Duration // Age before a stuck transaction is cancelled outright
	BatchSize        int           // Max stuck transactions handled per run
	LockTTL          time.Duration // Run lock lifetime, bounds a crashed run
	OverdueNoticeTTL time.Duration // Damping window between notices for one invoice
}

// DefaultSweepConfig returns sensible sweep settings
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		PendingCutoff:    15 * time.Minute,
		AbandonAfter:     24 * time.Hour,
		BatchSize:        100,
		LockTTL:          10 * time.Minute,
		OverdueNoticeTTL: 24 * time.Hour,
	}
}

const (
	sweepLockKey           = "sweep:run-lock"
	overdueNoticeKeyPrefix = "overdue:"
)

// SweepReport summarizes one sweep run
type SweepReport struct {
	StartedAt      time.Time                      `json:"started_at"`
	Duration       time.Duration                  `json:"duration"`
	StuckChecked   int                            `json:"stuck_checked"`
	Recovered      int                            `json:"recovered"` // Terminal provider result applied
	Abandoned      int                            `json:"abandoned"` // Cancelled past the abandon cutoff
	StillPending   int                            `json:"still_pending"`
	QueryFailures  int                            `json:"query_failures"`
	Balances       *ledgerapp.RecalculationReport `json:"balances"`
	OpenUnmatched  int64                          `json:"open_unmatched"`
	OverdueNotices int                            `json:"overdue_notices"`
}

// SweepService is the periodic safety net. It chases transactions stuck
// waiting on a provider result, re-derives invoice balances, and surfaces
// the size of the quarantine queue. A distributed lock keeps concurrent
// deployments from sweeping twice.
type SweepService struct {
	scope     ledgerapp.TransactionScope
	gateway   mpesa.Gateway
	callbacks *CallbackService
	balances  *ledgerapp.BalanceService
	unmatched mpesa.UnmatchedPaymentRepository
	locks     shared.IdempotencyStore
	publisher shared.EventPublisher
	config    SweepConfig
	logger    *zap.Logger
}

// NewSweepService creates a new SweepService
func NewSweepService(
	scope ledgerapp.TransactionScope,
	gateway mpesa.Gateway,
	callbacks *CallbackService,
	balances *ledgerapp.BalanceService,
	unmatched mpesa.UnmatchedPaymentRepository,
	locks shared.IdempotencyStore,
	config SweepConfig,
	logger *zap.Logger,
) *SweepService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.BatchSize <= 0 {
		config = DefaultSweepConfig()
	}
	if config.OverdueNoticeTTL <= 0 {
		config.OverdueNoticeTTL = DefaultSweepConfig().OverdueNoticeTTL
	}
	return &SweepService{
		scope:     scope,
		gateway:   gateway,
		callbacks: callbacks,
		balances:  balances,
		unmatched: unmatched,
		locks:     locks,
		config:    config,
		logger:    logger,
	}
}

// SetEventPublisher attaches a publisher for overdue invoice events.
// Without one the overdue pass is skipped entirely.
func (s *SweepService) SetEventPublisher(publisher shared.EventPublisher) {
	s.publisher = publisher
}

// RunOnce executes one sweep. A second caller while a run holds the lock
// gets a conflict instead of a duplicate sweep.
func (s *SweepService) RunOnce(ctx context.Context) (*SweepReport, error) {
	acquired, err := s.locks.MarkProcessed(ctx, sweepLockKey, s.config.LockTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, shared.NewDomainError("CONFLICT", "A sweep is already running")
	}
	defer func() {
		if releaseErr := s.locks.Release(context.WithoutCancel(ctx), sweepLockKey); releaseErr != nil {
			s.logger.Warn("failed to release sweep lock", zap.Error(releaseErr))
		}
	}()

	report := &SweepReport{StartedAt: time.Now()}

	s.chaseStuckTransactions(ctx, report)

	balanceReport, err := s.balances.RecalculateAll(ctx, s.config.BatchSize)
	if err != nil {
		s.logger.Error("balance recalculation pass failed", zap.Error(err))
	}
	report.Balances = balanceReport

	if open, err := s.unmatched.CountOpen(ctx); err == nil {
		report.OpenUnmatched = open
	} else {
		s.logger.Warn("could not count open unmatched payments", zap.Error(err))
	}

	s.emitOverdueNotices(ctx, report)

	report.Duration = time.Since(report.StartedAt)

	s.logger.Info("sweep finished",
		zap.Duration("duration", report.Duration),
		zap.Int("stuck_checked", report.StuckChecked),
		zap.Int("recovered", report.Recovered),
		zap.Int("abandoned", report.Abandoned),
		zap.Int("still_pending", report.StillPending),
		zap.Int64("open_unmatched", report.OpenUnmatched),
		zap.Int("overdue_notices", report.OverdueNotices))

	return report, nil
}

// chaseStuckTransactions queries the provider once per stuck transaction and
// applies whatever terminal result it reports
func (s *SweepService) chaseStuckTransactions(ctx context.Context, report *SweepReport) {
	cutoff := time.Now().Add(-s.config.PendingCutoff)

	var stuck []mpesa.Transaction
	err := s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
		var err error
		stuck, err = repos.TransactionRepo().FindStuckOlderThan(ctx, cutoff, s.config.BatchSize)
		return err
	})
	if err != nil {
		s.logger.Error("could not list stuck transactions", zap.Error(err))
		return
	}

	abandonCutoff := time.Now().Add(-s.config.AbandonAfter)

	for i := range stuck {
		tx := &stuck[i]
		report.StuckChecked++

		switch tx.Op.(type) {
		case mpesa.PushPayment:
			// A row still Initiated never got a checkout ID, so there is
			// nothing to query; it can only age out.
			if tx.CheckoutID == "" {
				s.abandonWhenPast(ctx, tx, abandonCutoff, report)
			} else {
				s.chaseStkPush(ctx, tx, abandonCutoff, report)
			}
		case mpesa.Disbursement:
			// No query API for payouts; only abandon ones past the cutoff.
			s.abandonWhenPast(ctx, tx, abandonCutoff, report)
		default:
			report.StillPending++
		}
	}
}

func (s *SweepService) abandonWhenPast(ctx context.Context, tx *mpesa.Transaction, abandonCutoff time.Time, report *SweepReport) {
	if tx.InitiatedAt.Before(abandonCutoff) {
		s.abandon(ctx, tx, report)
	} else {
		report.StillPending++
	}
}

func (s *SweepService) chaseStkPush(ctx context.Context, tx *mpesa.Transaction, abandonCutoff time.Time, report *SweepReport) {
	status, err := s.gateway.QueryStkStatus(ctx, tx.CheckoutID)
	if err != nil {
		report.QueryFailures++
		s.logger.Warn("stuck transaction query failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.String("checkout_id", tx.CheckoutID),
			zap.Error(err))
		s.abandonWhenPast(ctx, tx, abandonCutoff, report)
		return
	}

	if !status.Completed {
		s.abandonWhenPast(ctx, tx, abandonCutoff, report)
		return
	}

	// Feed the queried result through the same path a live callback takes.
	result := &mpesa.StkCallbackResult{
		CheckoutID:        status.CheckoutID,
		ResultDescription: status.ResultDescription,
		Amount:            tx.Amount,
		ProviderReference: status.ProviderReference,
		Phone:             tx.Phone,
		TransactionDate:   time.Now(),
	}
	if status.Success {
		result.ResultCode = 0
	} else {
		result.ResultCode = 1
		if code, parseErr := strconv.Atoi(status.ResultCode); parseErr == nil && code != 0 {
			result.ResultCode = code
		}
	}

	if err := s.callbacks.HandleStkCallback(ctx, result); err != nil {
		s.logger.Error("applying queried result failed",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
		report.StillPending++
		return
	}
	report.Recovered++
}

func (s *SweepService) abandon(ctx context.Context, tx *mpesa.Transaction, report *SweepReport) {
	err := s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
		locked, err := repos.TransactionRepo().FindByIDForUpdate(ctx, tx.ID)
		if err != nil {
			return err
		}
		if err := locked.Cancel("abandoned by sweep after waiting past cutoff"); err != nil {
			return err
		}
		return repos.TransactionRepo().Save(ctx, locked)
	})
	if err != nil {
		s.logger.Error("could not abandon stuck transaction",
			zap.String("transaction_id", tx.ID.String()),
			zap.Error(err))
		report.StillPending++
		return
	}
	report.Abandoned++

	s.logger.Warn("stuck transaction abandoned",
		zap.String("transaction_id", tx.ID.String()),
		zap.String("checkout_id", tx.CheckoutID),
		zap.Time("initiated_at", tx.InitiatedAt))
}

// emitOverdueNotices publishes an InvoiceOverdueEvent for every unsettled
// invoice past due. The idempotency store damps repeats, so one invoice
// raises at most one event per notice window even though sweeps run far
// more often.
func (s *SweepService) emitOverdueNotices(ctx context.Context, report *SweepReport) {
	if s.publisher == nil {
		return
	}

	now := time.Now()
	filter := shared.Filter{Page: 1, PageSize: s.config.BatchSize}

	for {
		var overdue []ledger.Invoice
		err := s.scope.Execute(ctx, func(repos ledgerapp.TransactionalRepositories) error {
			var err error
			overdue, _, err = repos.InvoiceRepo().FindOverdue(ctx, uuid.Nil, now, filter)
			return err
		})
		if err != nil {
			s.logger.Error("could not list overdue invoices", zap.Error(err))
			return
		}
		if len(overdue) == 0 {
			return
		}

		for i := range overdue {
			invoice := &overdue[i]

			fresh, err := s.locks.MarkProcessed(ctx, overdueNoticeKeyPrefix+invoice.ID.String(), s.config.OverdueNoticeTTL)
			if err != nil {
				s.logger.Warn("overdue notice damping check failed",
					zap.String("invoice_id", invoice.ID.String()),
					zap.Error(err))
				continue
			}
			if !fresh {
				continue
			}

			daysOverdue := int(now.Sub(invoice.DueDate).Hours() / 24)
			event := ledger.NewInvoiceOverdueEvent(invoice, daysOverdue)
			if err := s.publisher.Publish(ctx, event); err != nil {
				s.logger.Error("could not publish overdue event",
					zap.String("invoice_number", invoice.InvoiceNumber),
					zap.Error(err))
				continue
			}
			report.OverdueNotices++
		}

		if len(overdue) < s.config.BatchSize {
			return
		}
		filter.Page++
	}
}
