package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	ledgerapp "github.com/makao/backend/internal/application/ledger"
	"github.com/makao/backend/internal/domain/ledger"
	"github.com/makao/backend/internal/domain/shared/valueobject"
	"github.com/makao/backend/internal/infrastructure/auth"
	"github.com/makao/backend/internal/interfaces/http/dto"
	"github.com/makao/backend/internal/interfaces/http/middleware"
)

// PaymentHandler handles payment recording, allocation and reversal
type PaymentHandler struct {
	BaseHandler
	payments   *ledgerapp.PaymentService
	allocation *ledgerapp.AllocationService
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments *ledgerapp.PaymentService, allocation *ledgerapp.AllocationService) *PaymentHandler {
	return &PaymentHandler{
		payments:   payments,
		allocation: allocation,
	}
}

// RegisterRoutes wires the payment endpoints into the API group. Reads are
// open to any authenticated caller (tenants are scoped to their own
// records inside the handler); writes are staff only.
func (h *PaymentHandler) RegisterRoutes(rg *gin.RouterGroup) {
	staff := middleware.RequireRoles(auth.RoleAdmin, auth.RoleLandlord)

	rg.POST("/payments", staff, h.Record)
	rg.GET("/payments/:id", h.Get)
	rg.POST("/payments/:id/allocations", staff, h.Allocate)
	rg.POST("/payments/:id/allocations/auto", staff, h.AllocateAuto)
	rg.POST("/payments/:id/reversal", staff, h.Reverse)
	rg.GET("/tenants/:id/payments", h.ListByTenant)
	rg.GET("/tenants/:id/credits", h.ListCredits)
}

// RecordPaymentRequest is the body for recording a payment by hand, for
// money that arrived outside the paybill (bank transfer, cash at the office)
type RecordPaymentRequest struct {
	LandlordID        string          `json:"landlord_id" binding:"omitempty,uuid"`
	TenantID          string          `json:"tenant_id" binding:"required,uuid"`
	Amount            decimal.Decimal `json:"amount" binding:"required"`
	Method            string          `json:"method" binding:"required"`
	ExternalReference string          `json:"external_reference"`
	PayerPhone        string          `json:"payer_phone"`
	Narrative         string          `json:"narrative"`
	PaymentDate       *time.Time      `json:"payment_date"`
	AutoAllocate      bool            `json:"auto_allocate"`
}

// Record stores a manually entered payment. Replays on the same external
// reference return the already stored payment rather than a conflict.
func (h *PaymentHandler) Record(c *gin.Context) {
	var req RecordPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	landlordID, ok := h.resolveLandlordID(c, req.LandlordID)
	if !ok {
		return
	}

	paymentDate := time.Now()
	if req.PaymentDate != nil {
		paymentDate = *req.PaymentDate
	}

	result, err := h.payments.Record(c.Request.Context(), ledgerapp.RecordPaymentCommand{
		LandlordID:        landlordID,
		TenantID:          uuid.MustParse(req.TenantID),
		Amount:            valueobject.NewMoneyKES(req.Amount),
		Method:            ledger.PaymentMethod(req.Method),
		ExternalReference: req.ExternalReference,
		PayerPhone:        req.PayerPhone,
		Narrative:         req.Narrative,
		PaymentDate:       paymentDate,
		AutoAllocate:      req.AutoAllocate,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if result.Created {
		h.Created(c, result)
		return
	}
	h.Success(c, result)
}

// Get returns one payment with its allocations
func (h *PaymentHandler) Get(c *gin.Context) {
	id, ok := h.parseIDParam(c)
	if !ok {
		return
	}

	payment, err := h.payments.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	claims, ok := h.requireClaims(c)
	if !ok {
		return
	}
	if !canAccessTenant(claims, payment.TenantID) {
		h.Forbidden(c, "Payment belongs to another tenant")
		return
	}
	h.Success(c, payment)
}

// ListByTenantRequest carries the optional date range for payment history
type ListByTenantRequest struct {
	dto.ListRequest
	From string `form:"from" binding:"omitempty,datetime=2006-01-02"`
	To   string `form:"to" binding:"omitempty,datetime=2006-01-02"`
}

// ListByTenant returns a tenant's payment history, newest first
func (h *PaymentHandler) ListByTenant(c *gin.Context) {
	tenantID, ok := h.parseIDParam(c)
	if !ok {
		return
	}
	claims, ok := h.requireClaims(c)
	if !ok {
		return
	}
	if !canAccessTenant(claims, tenantID) {
		h.Forbidden(c, "Cannot read another tenant's payments")
		return
	}

	var req ListByTenantRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	var from, to time.Time
	if req.From != "" {
		from, _ = time.Parse("2006-01-02", req.From)
	}
	if req.To != "" {
		// Make the range inclusive of the named day
		to, _ = time.Parse("2006-01-02", req.To)
		to = to.Add(24 * time.Hour)
	}

	filter := req.ToFilter()
	payments, total, err := h.payments.ListByTenant(c.Request.Context(), tenantID, from, to, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, payments, total, filter.Page, filter.PageSize)
}

// ListCredits returns a tenant's payments still carrying unallocated funds
func (h *PaymentHandler) ListCredits(c *gin.Context) {
	tenantID, ok := h.parseIDParam(c)
	if !ok {
		return
	}
	claims, ok := h.requireClaims(c)
	if !ok {
		return
	}
	if !canAccessTenant(claims, tenantID) {
		h.Forbidden(c, "Cannot read another tenant's credits")
		return
	}

	credits, err := h.payments.ListCredits(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, credits)
}

// AllocateRequest is the body for an explicit allocation. A zero amount on
// a target means put as much as that invoice can take.
type AllocateRequest struct {
	Targets []AllocateTarget `json:"targets" binding:"required,min=1,dive"`
}

// AllocateTarget names one invoice and the amount to put against it
type AllocateTarget struct {
	InvoiceID string          `json:"invoice_id" binding:"required,uuid"`
	Amount    decimal.Decimal `json:"amount"`
}

// Allocate spreads a payment across caller-chosen invoices
func (h *PaymentHandler) Allocate(c *gin.Context) {
	paymentID, ok := h.parseIDParam(c)
	if !ok {
		return
	}

	var req AllocateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	requests := make([]ledger.AllocationRequest, 0, len(req.Targets))
	for _, target := range req.Targets {
		requests = append(requests, ledger.AllocationRequest{
			InvoiceID: uuid.MustParse(target.InvoiceID),
			Amount:    target.Amount,
		})
	}

	outcome, err := h.allocation.AllocateExplicit(c.Request.Context(), paymentID, requests)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, outcome)
}

// AllocateAuto spreads a payment across the tenant's open invoices,
// oldest due date first
func (h *PaymentHandler) AllocateAuto(c *gin.Context) {
	paymentID, ok := h.parseIDParam(c)
	if !ok {
		return
	}

	outcome, err := h.allocation.AllocateToOutstanding(c.Request.Context(), paymentID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, outcome)
}

// ReverseRequest is the body for reversing a payment
type ReverseRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Reverse backs a payment out of the ledger, reopening the invoices it
// had settled
func (h *PaymentHandler) Reverse(c *gin.Context) {
	paymentID, ok := h.parseIDParam(c)
	if !ok {
		return
	}

	var req ReverseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	outcome, err := h.allocation.Reverse(c.Request.Context(), paymentID, req.Reason)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, outcome)
}
