package ledger

import (
	"context"

	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/mpesa"
)

// TransactionScope provides transactional access to the ledger repositories.
// When a function is executed within a transaction scope, all repository
// operations are part of the same database transaction and commit or roll
// back atomically.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// If the function succeeds, the transaction is committed.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all reconciliation
// repositories within a transaction. All repositories returned share the
// same underlying database transaction.
//
// Aggregate boundary notes:
//   - InvoiceRepo: Invoice is an aggregate root; line items ride along as a
//     JSONB column and never have independent repository access.
//   - PaymentRepo: Payment is an aggregate root; allocations are child rows
//     persisted through the payment save but queryable per invoice for
//     balance recalculation.
//   - TransactionRepo / UnmatchedRepo: provider transactions and quarantined
//     deposits join the same transaction so a callback can settle the ledger
//     and the provider record in one commit.
type TransactionalRepositories interface {
	// InvoiceRepo returns the invoice repository scoped to the current transaction
	InvoiceRepo() ledger.InvoiceRepository
	// PaymentRepo returns the payment repository scoped to the current transaction
	PaymentRepo() ledger.PaymentRepository
	// TransactionRepo returns the provider transaction repository scoped to the current transaction
	TransactionRepo() mpesa.TransactionRepository
	// UnmatchedRepo returns the unmatched payment repository scoped to the current transaction
	UnmatchedRepo() mpesa.UnmatchedPaymentRepository
}

// NoOpTransactionScope is a transaction scope that doesn't actually use
// transactions. Useful for tests running against repositories that manage
// their own consistency.
type NoOpTransactionScope struct {
	invoiceRepo     ledger.InvoiceRepository
	paymentRepo     ledger.PaymentRepository
	transactionRepo mpesa.TransactionRepository
	unmatchedRepo   mpesa.UnmatchedPaymentRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope with the given repositories.
func NewNoOpTransactionScope(
	invoiceRepo ledger.InvoiceRepository,
	paymentRepo ledger.PaymentRepository,
	transactionRepo mpesa.TransactionRepository,
	unmatchedRepo mpesa.UnmatchedPaymentRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		invoiceRepo:     invoiceRepo,
		paymentRepo:     paymentRepo,
		transactionRepo: transactionRepo,
		unmatchedRepo:   unmatchedRepo,
	}
}

// Execute runs the function without a real transaction.
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// InvoiceRepo returns the invoice repository.
func (s *NoOpTransactionScope) InvoiceRepo() ledger.InvoiceRepository {
	return s.invoiceRepo
}

// PaymentRepo returns the payment repository.
func (s *NoOpTransactionScope) PaymentRepo() ledger.PaymentRepository {
	return s.paymentRepo
}

// TransactionRepo returns the provider transaction repository.
func (s *NoOpTransactionScope) TransactionRepo() mpesa.TransactionRepository {
	return s.transactionRepo
}

// UnmatchedRepo returns the unmatched payment repository.
func (s *NoOpTransactionScope) UnmatchedRepo() mpesa.UnmatchedPaymentRepository {
	return s.unmatchedRepo
}
