package ledger

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/shared"
)

// AllocationService applies payment funds to invoices and undoes the
// application when a payment turns out to be wrong. Every operation runs in
// one transaction with the payment row locked first, then the invoice rows,
// so concurrent allocations for the same tenant serialize instead of
// double-spending.
type AllocationService struct {
	scope     TransactionScope
	policy    ledger.AllocationPolicy
	publisher shared.EventPublisher
	logger    *zap.Logger
}

// NewAllocationService creates a new AllocationService
func NewAllocationService(scope TransactionScope, logger *zap.Logger) *AllocationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AllocationService{
		scope:  scope,
		policy: ledger.NewOldestDueFirstPolicy(),
		logger: logger,
	}
}

// SetEventPublisher attaches a publisher for the domain events raised by
// payment aggregates. Without one the events are silently dropped.
func (s *AllocationService) SetEventPublisher(publisher shared.EventPublisher) {
	s.publisher = publisher
}

// publishEvents pushes collected aggregate events after the enclosing
// transaction committed. Publish failures are logged, never returned, since
// the ledger change is already durable.
func (s *AllocationService) publishEvents(ctx context.Context, events []shared.DomainEvent) {
	if s.publisher == nil || len(events) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, events...); err != nil {
		s.logger.Error("failed to publish allocation events",
			zap.Int("event_count", len(events)),
			zap.Error(err))
	}
}

// AllocationOutcome reports what an allocation run did
type AllocationOutcome struct {
	PaymentID            uuid.UUID                `json:"payment_id"`
	Entries              []ledger.AllocationEntry `json:"entries"`
	TotalAllocated       decimal.Decimal          `json:"total_allocated"`
	RemainingUnallocated decimal.Decimal          `json:"remaining_unallocated"`
	InvoicesSettled      []uuid.UUID              `json:"invoices_settled"`
}

// ReversalOutcome reports what a reversal did
type ReversalOutcome struct {
	PaymentID      uuid.UUID       `json:"payment_id"`
	AmountRestored decimal.Decimal `json:"amount_restored"`
	InvoiceIDs     []uuid.UUID     `json:"invoice_ids"`
}

// AllocateToOutstanding spreads a payment's unallocated funds across the
// tenant's open invoices, oldest due date first. Funds left over after every
// invoice is settled stay on the payment as credit.
func (s *AllocationService) AllocateToOutstanding(ctx context.Context, paymentID uuid.UUID) (*AllocationOutcome, error) {
	var outcome *AllocationOutcome
	var events []shared.DomainEvent

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		payment, err := repos.PaymentRepo().FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != ledger.PaymentStatusCompleted {
			return shared.NewDomainError("INVALID_STATE",
				fmt.Sprintf("Payment is %s; only completed payments can be allocated", payment.Status))
		}
		if !payment.HasUnallocatedFunds() {
			return shared.NewDomainError("INVALID_STATE", "Payment has no unallocated funds")
		}

		invoices, err := repos.InvoiceRepo().FindOutstandingByTenantForUpdate(ctx, payment.TenantID)
		if err != nil {
			return err
		}

		plan, err := s.policy.Plan(payment.GetUnallocatedMoney(), ledger.TargetsFromInvoices(invoices))
		if err != nil {
			return err
		}

		if outcome, err = s.applyPlan(ctx, repos, payment, plan); err != nil {
			return err
		}
		events = payment.GetDomainEvents()
		payment.ClearDomainEvents()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishEvents(ctx, events)

	s.logger.Info("payment auto-allocated",
		zap.String("payment_id", paymentID.String()),
		zap.String("total_allocated", outcome.TotalAllocated.String()),
		zap.String("remaining", outcome.RemainingUnallocated.String()),
		zap.Int("invoices_touched", len(outcome.Entries)))

	return outcome, nil
}

// AllocateExplicit applies a payment to caller-named invoices. Requests that
// do not fit, an invoice that cannot take the amount or funds that run out,
// fail the whole batch.
func (s *AllocationService) AllocateExplicit(ctx context.Context, paymentID uuid.UUID, requests []ledger.AllocationRequest) (*AllocationOutcome, error) {
	policy, err := ledger.NewExplicitPolicy(requests)
	if err != nil {
		return nil, err
	}

	var outcome *AllocationOutcome
	var events []shared.DomainEvent

	err = s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		payment, err := repos.PaymentRepo().FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}
		if payment.Status != ledger.PaymentStatusCompleted {
			return shared.NewDomainError("INVALID_STATE",
				fmt.Sprintf("Payment is %s; only completed payments can be allocated", payment.Status))
		}
		if !payment.HasUnallocatedFunds() {
			return shared.NewDomainError("INVALID_STATE", "Payment has no unallocated funds")
		}

		// Lock every named invoice in ID order to keep lock acquisition
		// deterministic across concurrent explicit allocations.
		targets := make([]ledger.AllocationTarget, 0, len(requests))
		for _, req := range sortedRequests(requests) {
			invoice, err := repos.InvoiceRepo().FindByIDForUpdate(ctx, req.InvoiceID)
			if err != nil {
				return err
			}
			if invoice.TenantID != payment.TenantID {
				return shared.NewDomainError("FORBIDDEN", "Invoice belongs to a different tenant than the payment")
			}
			if !invoice.IsOutstanding() {
				return shared.NewDomainError("INVALID_STATE", "Invoice is not open for allocation")
			}
			targets = append(targets, ledger.AllocationTarget{
				InvoiceID:     invoice.ID,
				InvoiceNumber: invoice.InvoiceNumber,
				Outstanding:   invoice.Balance,
				DueDate:       invoice.DueDate,
			})
		}

		plan, err := policy.Plan(payment.GetUnallocatedMoney(), targets)
		if err != nil {
			return err
		}

		if outcome, err = s.applyPlan(ctx, repos, payment, plan); err != nil {
			return err
		}
		events = payment.GetDomainEvents()
		payment.ClearDomainEvents()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishEvents(ctx, events)

	s.logger.Info("payment explicitly allocated",
		zap.String("payment_id", paymentID.String()),
		zap.String("total_allocated", outcome.TotalAllocated.String()),
		zap.Int("invoices_touched", len(outcome.Entries)))

	return outcome, nil
}

// Reverse voids every active allocation on a payment and returns the funds
// to its unallocated pool. The touched invoices are recalculated in the same
// transaction, so a fully paid invoice reopens atomically with the reversal.
func (s *AllocationService) Reverse(ctx context.Context, paymentID uuid.UUID, reason string) (*ReversalOutcome, error) {
	var outcome *ReversalOutcome
	var events []shared.DomainEvent

	err := s.scope.Execute(ctx, func(repos TransactionalRepositories) error {
		payment, err := repos.PaymentRepo().FindByIDForUpdate(ctx, paymentID)
		if err != nil {
			return err
		}

		before := payment.UnallocatedAmount
		invoiceIDs, err := payment.ReverseAllocations(reason)
		if err != nil {
			return err
		}
		if err := payment.CheckConsistency(); err != nil {
			return err
		}
		if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
			return err
		}

		if err := s.recalculateInvoices(ctx, repos, invoiceIDs); err != nil {
			return err
		}

		outcome = &ReversalOutcome{
			PaymentID:      paymentID,
			AmountRestored: payment.UnallocatedAmount.Sub(before),
			InvoiceIDs:     invoiceIDs,
		}
		events = payment.GetDomainEvents()
		payment.ClearDomainEvents()
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publishEvents(ctx, events)

	s.logger.Info("payment allocations reversed",
		zap.String("payment_id", paymentID.String()),
		zap.String("reason", reason),
		zap.String("amount_restored", outcome.AmountRestored.String()),
		zap.Int("invoices_reopened", len(outcome.InvoiceIDs)))

	return outcome, nil
}

// applyPlan executes a computed plan against the locked payment and invoices
func (s *AllocationService) applyPlan(ctx context.Context, repos TransactionalRepositories, payment *ledger.Payment, plan *ledger.AllocationPlan) (*AllocationOutcome, error) {
	for _, entry := range plan.Entries {
		if _, err := payment.Allocate(entry.InvoiceID, entry.Amount, ""); err != nil {
			return nil, err
		}
	}
	if err := payment.CheckConsistency(); err != nil {
		return nil, err
	}
	if err := repos.PaymentRepo().Save(ctx, payment); err != nil {
		return nil, err
	}

	invoiceIDs := make([]uuid.UUID, 0, len(plan.Entries))
	for _, entry := range plan.Entries {
		invoiceIDs = append(invoiceIDs, entry.InvoiceID)
	}
	if err := s.recalculateInvoices(ctx, repos, invoiceIDs); err != nil {
		return nil, err
	}

	return &AllocationOutcome{
		PaymentID:            payment.ID,
		Entries:              plan.Entries,
		TotalAllocated:       plan.TotalAllocated,
		RemainingUnallocated: payment.UnallocatedAmount,
		InvoicesSettled:      plan.InvoicesSettled,
	}, nil
}

// recalculateInvoices re-derives balance and status for each invoice from
// the allocation rows visible inside the current transaction
func (s *AllocationService) recalculateInvoices(ctx context.Context, repos TransactionalRepositories, invoiceIDs []uuid.UUID) error {
	for _, invoiceID := range invoiceIDs {
		invoice, err := repos.InvoiceRepo().FindByIDForUpdate(ctx, invoiceID)
		if err != nil {
			return err
		}
		total, err := repos.PaymentRepo().SumActiveAllocationsByInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if err := invoice.Recalculate(total); err != nil {
			return err
		}
		if err := repos.InvoiceRepo().Save(ctx, invoice); err != nil {
			return err
		}
	}
	return nil
}

func sortedRequests(requests []ledger.AllocationRequest) []ledger.AllocationRequest {
	sorted := make([]ledger.AllocationRequest, len(requests))
	copy(sorted, requests)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].InvoiceID.String() < sorted[j].InvoiceID.String()
	})
	return sorted
}
