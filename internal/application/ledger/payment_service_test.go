package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/tests/testutil"
)

func TestRecord_CreatesAndAutoAllocates(t *testing.T) {
	f := newServiceFixture()
	tenantID := testutil.TestTenantID()

	invoice := f.seedInvoice(t, tenantID, time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), "7500")

	result, err := f.paymentSvc.Record(context.Background(), RecordPaymentCommand{
		LandlordID:        testutil.TestLandlordID(),
		TenantID:          tenantID,
		Amount:            kes("7500"),
		Method:            ledger.PaymentMethodMpesa,
		ExternalReference: "TKD1AB2CD3",
		PayerPhone:        "254712345678",
		PaymentDate:       time.Now(),
		AutoAllocate:      true,
	})
	require.NoError(t, err)

	assert.True(t, result.Created)
	require.NotNil(t, result.Allocation)
	assert.True(t, result.Allocation.TotalAllocated.Equal(decimal.NewFromInt(7500)))
	assert.True(t, result.Payment.UnallocatedAmount.IsZero())

	invoiceAfter := f.invoiceByID(t, invoice.ID)
	assert.Equal(t, ledger.InvoiceStatusPaid, invoiceAfter.Status)
}

func TestRecord_DuplicateExternalReferenceReturnsStored(t *testing.T) {
	f := newServiceFixture()
	tenantID := testutil.TestTenantID()

	invoice := f.seedInvoice(t, tenantID, time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), "5000")

	cmd := RecordPaymentCommand{
		LandlordID:        testutil.TestLandlordID(),
		TenantID:          tenantID,
		Amount:            kes("5000"),
		Method:            ledger.PaymentMethodMpesa,
		ExternalReference: "TKD2AB2CD3",
		PayerPhone:        "254712345678",
		PaymentDate:       time.Now(),
		AutoAllocate:      true,
	}

	first, err := f.paymentSvc.Record(context.Background(), cmd)
	require.NoError(t, err)
	require.True(t, first.Created)

	second, err := f.paymentSvc.Record(context.Background(), cmd)
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Nil(t, second.Allocation)

	// The invoice was credited exactly once
	invoiceAfter := f.invoiceByID(t, invoice.ID)
	assert.Equal(t, ledger.InvoiceStatusPaid, invoiceAfter.Status)
	total, err := f.payments.SumActiveAllocationsByInvoice(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(5000)))
}

func TestRecord_WithoutAutoAllocateLeavesCredit(t *testing.T) {
	f := newServiceFixture()
	tenantID := testutil.TestTenantID()

	f.seedInvoice(t, tenantID, time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), "5000")

	result, err := f.paymentSvc.Record(context.Background(), RecordPaymentCommand{
		LandlordID:        testutil.TestLandlordID(),
		TenantID:          tenantID,
		Amount:            kes("5000"),
		Method:            ledger.PaymentMethodBankTransfer,
		ExternalReference: "FT26032ABCDE",
		PayerPhone:        "254712345678",
		PaymentDate:       time.Now(),
	})
	require.NoError(t, err)

	assert.Nil(t, result.Allocation)
	assert.True(t, result.Payment.UnallocatedAmount.Equal(decimal.NewFromInt(5000)))

	credits, err := f.paymentSvc.ListCredits(context.Background(), tenantID)
	require.NoError(t, err)
	require.Len(t, credits, 1)
}

func TestRecord_RejectsMpesaWithoutReference(t *testing.T) {
	f := newServiceFixture()

	_, err := f.paymentSvc.Record(context.Background(), RecordPaymentCommand{
		LandlordID:  testutil.TestLandlordID(),
		TenantID:    testutil.TestTenantID(),
		Amount:      kes("5000"),
		Method:      ledger.PaymentMethodMpesa,
		PaymentDate: time.Now(),
	})
	requireDomainCode(t, err, "VALIDATION_ERROR")
}

func TestGetByID_NotFound(t *testing.T) {
	f := newServiceFixture()

	_, err := f.paymentSvc.GetByID(context.Background(), testutil.NewTestUUID("missing-payment"))
	requireDomainCode(t, err, "NOT_FOUND")
}

func TestNewPaymentNumber_Format(t *testing.T) {
	at := time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)
	number := NewPaymentNumber(at)

	assert.Regexp(t, `^PAY-20260315-[0-9A-F]{8}$`, number)
	assert.NotEqual(t, number, NewPaymentNumber(at))
}
