package mpesa

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/tests/testutil"
)

func TestInitiateDisbursement_LinksSettlement(t *testing.T) {
	f := newServiceFixture()
	settlementID := testutil.NewTestUUID("settlement-feb")

	disb, err := f.disbursements.Initiate(context.Background(), InitiateDisbursementCommand{
		LandlordID:   testutil.TestLandlordID(),
		Amount:       decimal.NewFromInt(40000),
		Phone:        "254722000111",
		Remarks:      "February rent payout",
		SettlementID: &settlementID,
	})
	require.NoError(t, err)
	assert.Equal(t, mpesa.TransactionStatusPending, disb.Status)
	assert.Equal(t, 1, f.gateway.B2CCalls)

	stored := f.transactionByID(t, disb.ID)
	op, ok := stored.Op.(mpesa.Disbursement)
	require.True(t, ok)
	require.NotNil(t, op.SettlementID)
	assert.Equal(t, settlementID, *op.SettlementID)
	assert.Equal(t, "February rent payout", op.Remarks)
}

func TestInitiateDisbursement_GatewayUnreachableLeavesRecordForSweep(t *testing.T) {
	f := newServiceFixture()
	f.gateway.B2CFn = func(context.Context, *mpesa.B2CRequest) (*mpesa.B2CResponse, error) {
		return nil, fmt.Errorf("%w: connect timeout", mpesa.ErrGatewayUnavailable)
	}

	_, err := f.disbursements.Initiate(context.Background(), InitiateDisbursementCommand{
		LandlordID: testutil.TestLandlordID(),
		Amount:     decimal.NewFromInt(40000),
		Phone:      "254722000111",
		Remarks:    "February rent payout",
	})
	requireDomainCode(t, err, "EXTERNAL_SERVICE_ERROR")

	// The payout may have gone through on the provider side, so the row
	// stays Initiated rather than Failed: failing it could double-pay.
	stuck, err := f.txs.FindStuckOlderThan(context.Background(), time.Now().Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, mpesa.TransactionStatusInitiated, stuck[0].Status)
	assert.Equal(t, mpesa.TransactionTypeDisbursement, stuck[0].Type())
}
