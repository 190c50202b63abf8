package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	ledgerapp "github.com/makao/backend/internal/application/ledger"
	mpesaapp "github.com/makao/backend/internal/application/mpesa"
	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/domain/shared/valueobject"
	"github.com/makao/backend/internal/infrastructure/auth"
	"github.com/makao/backend/internal/interfaces/http/middleware"
	"github.com/makao/backend/internal/interfaces/http/router"
	"github.com/makao/backend/tests/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// handlerFixture stands up the full route tree over in-memory repositories.
// Authentication is simulated by injecting claims the way the JWT
// middleware would; set claims before issuing a request.
type handlerFixture struct {
	invoices    *testutil.MemoryInvoiceRepository
	payments    *testutil.MemoryPaymentRepository
	txs         *testutil.MemoryTransactionRepository
	unmatchedDB *testutil.MemoryUnmatchedRepository
	tenancies   *testutil.StaticTenancyDirectory
	gateway     *testutil.FakeGateway
	idempotency *testutil.MemoryIdempotencyStore

	allocation *ledgerapp.AllocationService
	sweep      *mpesaapp.SweepService

	claims *auth.Claims
	engine *gin.Engine
}

func newHandlerFixture() *handlerFixture {
	f := &handlerFixture{
		invoices:    testutil.NewMemoryInvoiceRepository(),
		payments:    testutil.NewMemoryPaymentRepository(),
		txs:         testutil.NewMemoryTransactionRepository(),
		unmatchedDB: testutil.NewMemoryUnmatchedRepository(),
		tenancies:   testutil.NewStaticTenancyDirectory(),
		gateway:     testutil.NewFakeGateway(),
		idempotency: testutil.NewMemoryIdempotencyStore(),
	}

	scope := ledgerapp.NewNoOpTransactionScope(f.invoices, f.payments, f.txs, f.unmatchedDB)
	f.allocation = ledgerapp.NewAllocationService(scope, nil)
	balances := ledgerapp.NewBalanceService(scope, f.invoices, nil)
	paymentsSvc := ledgerapp.NewPaymentService(scope, f.payments, f.allocation, nil)
	billing := ledgerapp.NewBillingService(scope, f.invoices, f.payments, f.tenancies, f.allocation, nil)
	push := mpesaapp.NewPushPaymentService(scope, f.gateway, f.tenancies, nil)
	callbacks := mpesaapp.NewCallbackService(scope, f.tenancies, f.allocation, f.idempotency, shared.DefaultIdempotencyConfig(), nil)
	disbursements := mpesaapp.NewDisbursementService(scope, f.gateway, nil)
	unmatched := mpesaapp.NewUnmatchedService(scope, f.unmatchedDB, f.tenancies, f.allocation, nil)
	f.sweep = mpesaapp.NewSweepService(scope, f.gateway, callbacks, balances, f.unmatchedDB, f.idempotency, mpesaapp.DefaultSweepConfig(), nil)

	engine := gin.New()
	engine.Use(func(c *gin.Context) {
		if f.claims != nil {
			c.Set(middleware.JWTClaimsKey, f.claims)
		}
		c.Next()
	})

	r := router.NewRouter(engine)
	r.Register(NewPaymentHandler(paymentsSvc, f.allocation)).
		Register(NewInvoiceHandler(billing, balances)).
		Register(NewMpesaHandler(push, f.txs, f.sweep)).
		Register(NewUnmatchedHandler(unmatched)).
		Register(NewDisbursementHandler(disbursements)).
		Setup()
	NewMpesaCallbackHandler(callbacks, nil).RegisterPublicRoutes(engine)

	f.engine = engine
	return f
}

func (f *handlerFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func (f *handlerFixture) doRaw(t *testing.T, method, path, payload string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func landlordClaims() *auth.Claims {
	return &auth.Claims{
		LandlordID: testutil.TestLandlordID().String(),
		UserID:     testutil.NewTestUUID("staff-user").String(),
		Username:   "landlord",
		Role:       auth.RoleLandlord,
	}
}

func adminClaims() *auth.Claims {
	return &auth.Claims{
		UserID:   testutil.NewTestUUID("admin-user").String(),
		Username: "admin",
		Role:     auth.RoleAdmin,
	}
}

func tenantClaims(tenantID uuid.UUID) *auth.Claims {
	return &auth.Claims{
		LandlordID: testutil.TestLandlordID().String(),
		UserID:     tenantID.String(),
		Username:   "tenant",
		Role:       auth.RoleTenant,
	}
}

func fixtureTenancy(unitCode string) ledger.Tenancy {
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
func (f *handlerFixture) seedInvoice(t *testing.T, tenancy ledger.Tenancy, dueDate time.Time, amount string) *ledger.Invoice {
	t.Helper()

	rent, err := ledger.NewInvoiceLineItem(ledger.LineItemKindRent, "Rent",
		valueobject.NewMoneyKES(decimal.RequireFromString(amount)))
	require.NoError(t, err)

	periodStart := time.Date(dueDate.Year(), dueDate.Month(), 1, 0, 0, 0, 0, time.UTC)
	invoice, err := ledger.NewInvoice(
		tenancy.LandlordID,
		ledgerapp.NewInvoiceNumber(periodStart),
		tenancy.TenantID,
		tenancy.PropertyID,
		tenancy.UnitID,
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
