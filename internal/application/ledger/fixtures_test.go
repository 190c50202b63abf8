package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/shared/valueobject"
	"github.com/makao/backend/tests/testutil"
)

// serviceFixture wires the ledger services over in-memory repositories
type serviceFixture struct {
	invoices  *testutil.MemoryInvoiceRepository
	payments  *testutil.MemoryPaymentRepository
	txs       *testutil.MemoryTransactionRepository
	unmatched *testutil.MemoryUnmatchedRepository
	tenancies *testutil.StaticTenancyDirectory

	scope      *NoOpTransactionScope
	allocation *AllocationService
	paymentSvc *PaymentService
	billing    *BillingService
	balances   *BalanceService
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		invoices:  testutil.NewMemoryInvoiceRepository(),
		payments:  testutil.NewMemoryPaymentRepository(),
		txs:       testutil.NewMemoryTransactionRepository(),
		unmatched: testutil.NewMemoryUnmatchedRepository(),
		tenancies: testutil.NewStaticTenancyDirectory(),
	}
	f.scope = NewNoOpTransactionScope(f.invoices, f.payments, f.txs, f.unmatched)
	f.allocation = NewAllocationService(f.scope, nil)
	f.paymentSvc = NewPaymentService(f.scope, f.payments, f.allocation, nil)
	f.billing = NewBillingService(f.scope, f.invoices, f.payments, f.tenancies, f.allocation, nil)
	f.balances = NewBalanceService(f.scope, f.invoices, nil)
	return f
}

func kes(amount string) valueobject.Money {
	return valueobject.NewMoneyKES(decimal.RequireFromString(amount))
}

// seedInvoice issues and stores a rent invoice due on the given date
func (f *serviceFixture) seedInvoice(t *testing.T, tenantID uuid.UUID, dueDate time.Time, amount string) *ledger.Invoice {
	t.Helper()

	rent, err := ledger.NewInvoiceLineItem(ledger.LineItemKindRent, "Rent", kes(amount))
	require.NoError(t, err)

	periodStart := time.Date(dueDate.Year(), dueDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	invoice, err := ledger.NewInvoice(
		testutil.TestLandlordID(),
		NewInvoiceNumber(periodStart),
		tenantID,
		uuid.New(),
		uuid.New(),
		periodStart,
		periodStart.AddDate(0, 1, 0),
		dueDate,
		decimal.Zero,
		[]ledger.InvoiceLineItem{*rent},
	)
	require.NoError(t, err)
	require.NoError(t, f.invoices.Save(context.Background(), invoice))
	return invoice
}

// seedPayment records and stores a payment without allocating it
func (f *serviceFixture) seedPayment(t *testing.T, tenantID uuid.UUID, amount, externalReference string) *ledger.Payment {
	t.Helper()

	payment, err := ledger.NewPayment(
		testutil.TestLandlordID(),
		NewPaymentNumber(time.Now()),
		tenantID,
		kes(amount),
		ledger.PaymentMethodMpesa,
		externalReference,
		"254712345678",
		time.Now(),
	)
	require.NoError(t, err)
	require.NoError(t, f.payments.Save(context.Background(), payment))
	return payment
}

func (f *serviceFixture) invoiceByID(t *testing.T, id uuid.UUID) *ledger.Invoice {
	t.Helper()
	invoice, err := f.invoices.FindByID(context.Background(), id)
	require.NoError(t, err)
	return invoice
}

func (f *serviceFixture) paymentByID(t *testing.T, id uuid.UUID) *ledger.Payment {
	t.Helper()
	payment, err := f.payments.FindByID(context.Background(), id)
	require.NoError(t, err)
	return payment
}
