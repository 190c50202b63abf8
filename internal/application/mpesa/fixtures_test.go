package mpesa

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ledgerapp "github.com/makao/backend/internal/application/ledger"
	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/domain/shared/valueobject"
	"github.com/makao/backend/tests/testutil"
)

// serviceFixture wires the provider-facing services over in-memory
// repositories and a scripted gateway
type serviceFixture struct {
	invoices    *testutil.MemoryInvoiceRepository
	payments    *testutil.MemoryPaymentRepository
	txs         *testutil.MemoryTransactionRepository
	unmatchedDB *testutil.MemoryUnmatchedRepository
	tenancies   *testutil.StaticTenancyDirectory
	gateway     *testutil.FakeGateway
	idempotency *testutil.MemoryIdempotencyStore

	scope         *ledgerapp.NoOpTransactionScope
	allocation    *ledgerapp.AllocationService
	balances      *ledgerapp.BalanceService
	push          *PushPaymentService
	callbacks     *CallbackService
	disbursements *DisbursementService
	unmatched     *UnmatchedService
	sweep         *SweepService
}

func newServiceFixture() *serviceFixture {
	f := &serviceFixture{
		invoices:    testutil.NewMemoryInvoiceRepository(),
		payments:    testutil.NewMemoryPaymentRepository(),
		txs:         testutil.NewMemoryTransactionRepository(),
		unmatchedDB: testutil.NewMemoryUnmatchedRepository(),
		tenancies:   testutil.NewStaticTenancyDirectory(),
		gateway:     testutil.NewFakeGateway(),
		idempotency: testutil.NewMemoryIdempotencyStore(),
	}
	f.scope = ledgerapp.NewNoOpTransactionScope(f.invoices, f.payments, f.txs, f.unmatchedDB)
	f.allocation = ledgerapp.NewAllocationService(f.scope, nil)
	f.balances = ledgerapp.NewBalanceService(f.scope, f.invoices, nil)
	f.push = NewPushPaymentService(f.scope, f.gateway, f.tenancies, nil)
	f.callbacks = NewCallbackService(f.scope, f.tenancies, f.allocation, f.idempotency, shared.DefaultIdempotencyConfig(), nil)
	f.disbursements = NewDisbursementService(f.scope, f.gateway, nil)
	f.unmatched = NewUnmatchedService(f.scope, f.unmatchedDB, f.tenancies, f.allocation, nil)
	f.sweep = NewSweepService(f.scope, f.gateway, f.callbacks, f.balances, f.unmatchedDB, f.idempotency, DefaultSweepConfig(), nil)
	return f
}

func testTenancy(unitCode string) ledger.Tenancy {
	return ledger.Tenancy{
		TenantID:    testutil.NewTestUUID("tenant-" + unitCode),
		LandlordID:  testutil.TestLandlordID(),
		PropertyID:  testutil.NewTestUUID("property-1"),
		UnitID:      testutil.NewTestUUID("unit-" + unitCode),
		UnitCode:    unitCode,
		TenantName:  "Tenant " + unitCode,
		TenantPhone: "254712345678",
		MonthlyRent: decimal.NewFromInt(12000),
		StartDate:   time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

// seedInvoice issues and stores a rent invoice for the tenant
func (f *serviceFixture) seedInvoice(t *testing.T, tenantID uuid.UUID, dueDate time.Time, amount string) *ledger.Invoice {
	t.Helper()

	rent, err := ledger.NewInvoiceLineItem(ledger.LineItemKindRent, "Rent",
		valueobject.NewMoneyKES(decimal.RequireFromString(amount)))
	require.NoError(t, err)

	periodStart := time.Date(dueDate.Year(), dueDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	invoice, err := ledger.NewInvoice(
		testutil.TestLandlordID(),
		ledgerapp.NewInvoiceNumber(periodStart),
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

// seedPendingPush initiates a push and returns the pending transaction
func (f *serviceFixture) seedPendingPush(t *testing.T, tenancy ledger.Tenancy, amount string) *mpesa.Transaction {
	t.Helper()

	tx, err := f.push.InitiatePush(context.Background(), InitiatePushCommand{
		TenantID: tenancy.TenantID,
		Amount:   decimal.RequireFromString(amount),
	})
	require.NoError(t, err)
	require.Equal(t, mpesa.TransactionStatusPending, tx.Status)
	require.NotEmpty(t, tx.CheckoutID)
	return tx
}

func (f *serviceFixture) transactionByID(t *testing.T, id uuid.UUID) *mpesa.Transaction {
	t.Helper()
	tx, err := f.txs.FindByID(context.Background(), id)
	require.NoError(t, err)
	return tx
}

func (f *serviceFixture) paymentByReference(t *testing.T, reference string) *ledger.Payment {
	t.Helper()
	payment, err := f.payments.FindByExternalReference(context.Background(), reference)
	require.NoError(t, err)
	return payment
}

func testFilter() shared.Filter {
	return shared.DefaultFilter()
}

func requireDomainCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	domainErr, ok := err.(*shared.DomainError)
	require.True(t, ok, "expected a domain error, got %T: %v", err, err)
	assert.Equal(t, code, domainErr.Code)
}
