package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/internal/infrastructure/daraja"
)

// quarantineDeposit lands a paybill deposit with an unknown account
// reference and returns the queued entry
func quarantineDeposit(t *testing.T, f *handlerFixture, transID string) *mpesa.UnmatchedPayment {
	t.Helper()

	w := f.doRaw(t, http.MethodPost, daraja.C2BConfirmationPath,
		c2bPayload(transID, "NOSUCHUNIT", "8000.00"))
	require.Equal(t, http.StatusOK, w.Code)

	deposit, err := f.unmatchedDB.FindByExternalReference(context.Background(), transID)
	require.NoError(t, err)
	require.NotNil(t, deposit)
	return deposit
}

func TestListUnmatched_DefaultsToOpen(t *testing.T) {
	f := newHandlerFixture()
	quarantineDeposit(t, f, "TJ115QQ7CD")

	f.claims = landlordClaims()
	w := f.do(t, http.MethodGet, "/api/v1/mpesa/unmatched", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	meta := resp["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["total"])
}

func TestCountOpenUnmatched(t *testing.T) {
	f := newHandlerFixture()
	quarantineDeposit(t, f, "TJ115QQ7CD")
	quarantineDeposit(t, f, "TJ116RR8DE")

	f.claims = landlordClaims()
	w := f.do(t, http.MethodGet, "/api/v1/mpesa/unmatched/count", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	data := resp["data"].(map[string]any)
	assert.Equal(t, float64(2), data["open"])
}

func TestUnmatched_TenantForbidden(t *testing.T) {
	f := newHandlerFixture()
	tenancy := fixtureTenancy("A1")
	f.tenancies.Add(tenancy)

	f.claims = tenantClaims(tenancy.TenantID)
	w := f.do(t, http.MethodGet, "/api/v1/mpesa/unmatched", nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestMarkUnderReview(t *testing.T) {
	f := newHandlerFixture()
	deposit := quarantineDeposit(t, f, "TJ115QQ7CD")

	f.claims = landlordClaims()
	w := f.do(t, http.MethodPost, "/api/v1/mpesa/unmatched/"+deposit.ID.String()+"/review", map[string]any{
		"notes": "calling the payer to ask which unit",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	data := resp["data"].(map[string]any)
	assert.Equal(t, string(mpesa.UnmatchedStatusUnderReview), data["status"])
}

func TestResolveUnmatched_RoutesDepositToTenant(t *testing.T) {
	f := newHandlerFixture()
	tenancy := fixtureTenancy("A1")
	f.tenancies.Add(tenancy)
	invoice := f.seedInvoice(t, tenancy, time.Now().AddDate(0, 0, 5), "8000")
	deposit := quarantineDeposit(t, f, "TJ115QQ7CD")

	f.claims = landlordClaims()
	w := f.do(t, http.MethodPost, "/api/v1/mpesa/unmatched/"+deposit.ID.String()+"/resolution", map[string]any{
		"tenant_id": tenancy.TenantID.String(),
		"notes":     "payer confirmed unit A1",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	payment, err := f.payments.FindByExternalReference(context.Background(), "TJ115QQ7CD")
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, tenancy.TenantID, payment.TenantID)

	stored, err := f.invoices.FindByID(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.InvoiceStatusPaid, stored.Status)

	updated, err := f.unmatchedDB.FindByID(context.Background(), deposit.ID)
	require.NoError(t, err)
	assert.Equal(t, mpesa.UnmatchedStatusResolved, updated.Status)
}

func TestResolveUnmatched_ToNamedInvoice(t *testing.T) {
	f := newHandlerFixture()
	tenancy := fixtureTenancy("A1")
	f.tenancies.Add(tenancy)
	older := f.seedInvoice(t, tenancy, time.Now().AddDate(0, -1, 0), "8000")
	newer := f.seedInvoice(t, tenancy, time.Now().AddDate(0, 0, 5), "8000")
	deposit := quarantineDeposit(t, f, "TJ115QQ7CD")

	f.claims = landlordClaims()
	w := f.do(t, http.MethodPost, "/api/v1/mpesa/unmatched/"+deposit.ID.String()+"/resolution", map[string]any{
		"tenant_id":  tenancy.TenantID.String(),
		"invoice_id": newer.ID.String(),
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	stored, err := f.invoices.FindByID(context.Background(), newer.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.InvoiceStatusPaid, stored.Status)

	untouched, err := f.invoices.FindByID(context.Background(), older.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.InvoiceStatusIssued, untouched.Status)
}

func TestResolveUnmatched_TwiceRejected(t *testing.T) {
	f := newHandlerFixture()
	tenancy := fixtureTenancy("A1")
	f.tenancies.Add(tenancy)
	deposit := quarantineDeposit(t, f, "TJ115QQ7CD")

	f.claims = landlordClaims()
	body := map[string]any{"tenant_id": tenancy.TenantID.String()}

	first := f.do(t, http.MethodPost, "/api/v1/mpesa/unmatched/"+deposit.ID.String()+"/resolution", body)
	require.Equal(t, http.StatusOK, first.Code)

	second := f.do(t, http.MethodPost, "/api/v1/mpesa/unmatched/"+deposit.ID.String()+"/resolution", body)
	assert.Equal(t, http.StatusConflict, second.Code, second.Body.String())
	assert.Contains(t, second.Body.String(), "CONFLICT")
}

func TestMarkRefunded(t *testing.T) {
	f := newHandlerFixture()
	deposit := quarantineDeposit(t, f, "TJ115QQ7CD")

	f.claims = landlordClaims()
	w := f.do(t, http.MethodPost, "/api/v1/mpesa/unmatched/"+deposit.ID.String()+"/refund", map[string]any{
		"notes": "payer asked for the money back",
	})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	data := resp["data"].(map[string]any)
	assert.Equal(t, string(mpesa.UnmatchedStatusRefunded), data["status"])

	count, err := f.unmatchedDB.CountOpen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestListUnmatched_FilterByStatus(t *testing.T) {
	f := newHandlerFixture()
	deposit := quarantineDeposit(t, f, "TJ115QQ7CD")
	quarantineDeposit(t, f, "TJ116RR8DE")

	f.claims = landlordClaims()
	reviewed := f.do(t, http.MethodPost, "/api/v1/mpesa/unmatched/"+deposit.ID.String()+"/review", map[string]any{})
	require.Equal(t, http.StatusOK, reviewed.Code)

	w := f.do(t, http.MethodGet, "/api/v1/mpesa/unmatched?status=UNDER_REVIEW", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	meta := resp["meta"].(map[string]any)
	assert.Equal(t, float64(1), meta["total"])
}
