package handler

import (
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makao/backend/internal/domain/mpesa"
)

func TestInitiateDisbursement(t *testing.T) {
	f := newHandlerFixture()

	f.claims = landlordClaims()
	w := f.do(t, http.MethodPost, "/api/v1/mpesa/disbursements", map[string]any{
		"amount":  "45000",
		"phone":   "254722000111",
		"remarks": "August rent payout",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	data := resp["data"].(map[string]any)
	assert.Equal(t, string(mpesa.TransactionTypeDisbursement), data["type"])
	assert.Equal(t, string(mpesa.TransactionStatusPending), data["status"])
	assert.NotEmpty(t, data["checkout_id"])
}

func TestInitiateDisbursement_CarriesSettlement(t *testing.T) {
	f := newHandlerFixture()
	settlementID := uuid.New()

	f.claims = landlordClaims()
	w := f.do(t, http.MethodPost, "/api/v1/mpesa/disbursements", map[string]any{
		"amount":        "45000",
		"phone":         "254722000111",
		"remarks":       "August rent payout",
		"settlement_id": settlementID.String(),
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	data := resp["data"].(map[string]any)
	assert.Equal(t, settlementID.String(), data["settlement_id"])
	assert.Equal(t, "August rent payout", data["remarks"])
}

func TestInitiateDisbursement_AdminMustNameLandlord(t *testing.T) {
	f := newHandlerFixture()

	f.claims = adminClaims()
	w := f.do(t, http.MethodPost, "/api/v1/mpesa/disbursements", map[string]any{
		"amount": "45000",
		"phone":  "254722000111",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "landlord_id is required")
}

func TestInitiateDisbursement_TenantForbidden(t *testing.T) {
	f := newHandlerFixture()
	tenancy := fixtureTenancy("A1")
	f.tenancies.Add(tenancy)

	f.claims = tenantClaims(tenancy.TenantID)
	w := f.do(t, http.MethodPost, "/api/v1/mpesa/disbursements", map[string]any{
		"amount": "45000",
		"phone":  "254722000111",
	})

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListDisbursements(t *testing.T) {
	f := newHandlerFixture()

	f.claims = landlordClaims()
	for i := 0; i < 2; i++ {
		w := f.do(t, http.MethodPost, "/api/v1/mpesa/disbursements", map[string]any{
			"amount": "45000",
			"phone":  "254722000111",
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := f.do(t, http.MethodGet, "/api/v1/mpesa/disbursements", nil)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp := decodeResponse(t, w)
	meta := resp["meta"].(map[string]any)
	assert.Equal(t, float64(2), meta["total"])
}
