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

// InvoiceHandler handles invoice issuance, voiding and ledger queries
type InvoiceHandler struct {
	BaseHandler
	billing *ledgerapp.BillingService
	balance *ledgerapp.BalanceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(billing *ledgerapp.BillingService, balance *ledgerapp.BalanceService) *InvoiceHandler {
	return &InvoiceHandler{
		billing: billing,
		balance: balance,
	}
}

// RegisterRoutes wires the invoice and billing endpoints into the API
// group. Repair endpoints are admin only; billing runs and voids are
// staff; reads are scoped inside the handler.
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	staff := middleware.RequireRoles(auth.RoleAdmin, auth.RoleLandlord)
	admin := middleware.RequireRoles(auth.RoleAdmin)

	rg.POST("/invoices", staff, h.Create)
	rg.GET("/invoices/overdue", staff, h.ListOverdue)
	rg.GET("/invoices/:id", h.Get)
	rg.POST("/invoices/:id/void", staff, h.Void)
	rg.POST("/invoices/:id/recalculation", admin, h.Recalculate)
	rg.GET("/tenants/:id/invoices", h.ListByTenant)
	rg.GET("/tenants/:id/balance", h.OutstandingBalance)
	rg.POST("/tenants/:id/recalculation", admin, h.RecalculateForTenant)
	rg.POST("/billing/runs", admin, h.RunBilling)
}

// LineItemRequest is one charge on an invoice being created
type LineItemRequest struct {
	Kind        string          `json:"kind" binding:"required,oneof=RENT UTILITY OTHER"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
}

// CreateInvoiceRequest is the body for issuing a single invoice
type CreateInvoiceRequest struct {
	LandlordID     string            `json:"landlord_id" binding:"omitempty,uuid"`
	TenantID       string            `json:"tenant_id" binding:"required,uuid"`
	PropertyID     string            `json:"property_id" binding:"required,uuid"`
	UnitID         string            `json:"unit_id" binding:"required,uuid"`
	PeriodStart    time.Time         `json:"period_start" binding:"required"`
	PeriodEnd      time.Time         `json:"period_end" binding:"required"`
	DueDate        time.Time         `json:"due_date" binding:"required"`
	OpeningBalance decimal.Decimal   `json:"opening_balance"`
	LineItems      []LineItemRequest `json:"line_items" binding:"required,min=1,dive"`
}

// Create issues one invoice. A second invoice for the same unit and period
// is rejected with a conflict.
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	landlordID, ok := h.resolveLandlordID(c, req.LandlordID)
	if !ok {
		return
	}

	lineItems := make([]ledger.InvoiceLineItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		lineItem, err := ledger.NewInvoiceLineItem(
			ledger.LineItemKind(item.Kind),
			item.Description,
			valueobject.NewMoneyKES(item.Amount),
		)
		if err != nil {
			h.HandleError(c, err)
			return
		}
		lineItems = append(lineItems, *lineItem)
	}

	invoice, err := h.billing.CreateInvoice(c.Request.Context(), ledgerapp.CreateInvoiceCommand{
		LandlordID:     landlordID,
		TenantID:       uuid.MustParse(req.TenantID),
		PropertyID:     uuid.MustParse(req.PropertyID),
		UnitID:         uuid.MustParse(req.UnitID),
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		DueDate:        req.DueDate,
		OpeningBalance: req.OpeningBalance,
		LineItems:      lineItems,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

// Get returns one invoice with its line items
func (h *InvoiceHandler) Get(c *gin.Context) {
	id, ok := h.parseIDParam(c)
	if !ok {
		return
	}

	invoice, err := h.billing.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	claims, ok := h.requireClaims(c)
	if !ok {
		return
	}
	if !canAccessTenant(claims, invoice.TenantID) {
		h.Forbidden(c, "Invoice belongs to another tenant")
		return
	}
	h.Success(c, invoice)
}

// VoidRequest is the body for voiding an invoice
type VoidRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Void cancels an invoice that should never have been issued
func (h *InvoiceHandler) Void(c *gin.Context) {
	id, ok := h.parseIDParam(c)
	if !ok {
		return
	}

	var req VoidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	if err := h.billing.VoidInvoice(c.Request.Context(), id, req.Reason); err != nil {
		h.HandleError(c, err)
		return
	}

	invoice, err := h.billing.GetInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// ListByTenant returns a tenant's invoices, newest first
func (h *InvoiceHandler) ListByTenant(c *gin.Context) {
	tenantID, ok := h.parseIDParam(c)
	if !ok {
		return
	}
	claims, ok := h.requireClaims(c)
	if !ok {
		return
	}
	if !canAccessTenant(claims, tenantID) {
		h.Forbidden(c, "Cannot read another tenant's invoices")
		return
	}

	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	filter := req.ToFilter()
	invoices, total, err := h.billing.ListByTenant(c.Request.Context(), tenantID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, invoices, total, filter.Page, filter.PageSize)
}

// ListOverdue returns the caller's overdue invoices, most overdue first
func (h *InvoiceHandler) ListOverdue(c *gin.Context) {
	var listReq dto.ListRequest
	if err := c.ShouldBindQuery(&listReq); err != nil {
		h.HandleBindError(c, err)
		return
	}

	landlordID, ok := h.resolveLandlordID(c, c.Query("landlord_id"))
	if !ok {
		return
	}

	filter := listReq.ToFilter()
	invoices, total, err := h.billing.ListOverdue(c.Request.Context(), landlordID, time.Now(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, invoices, total, filter.Page, filter.PageSize)
}

// OutstandingBalanceResponse reports what a tenant currently owes
type OutstandingBalanceResponse struct {
	TenantID    uuid.UUID       `json:"tenant_id"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Currency    string          `json:"currency"`
	AsOf        time.Time       `json:"as_of"`
}

// OutstandingBalance returns the sum a tenant owes across open invoices
func (h *InvoiceHandler) OutstandingBalance(c *gin.Context) {
	tenantID, ok := h.parseIDParam(c)
	if !ok {
		return
	}
	claims, ok := h.requireClaims(c)
	if !ok {
		return
	}
	if !canAccessTenant(claims, tenantID) {
		h.Forbidden(c, "Cannot read another tenant's balance")
		return
	}

	outstanding, err := h.balance.OutstandingBalance(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, OutstandingBalanceResponse{
		TenantID:    tenantID,
		Outstanding: outstanding,
		Currency:    string(valueobject.KES),
		AsOf:        time.Now(),
	})
}

// BillingRunRequest is the body for a manual billing run
type BillingRunRequest struct {
	// Period is the billing month in YYYY-MM form
	Period  string `json:"period" binding:"required,len=7"`
	DueDays int    `json:"due_days" binding:"omitempty,min=1,max=60"`
}

// RunBilling issues the month's rent invoices across all active tenancies.
// Units already invoiced for the period are skipped, so rerunning a month
// is safe.
func (h *InvoiceHandler) RunBilling(c *gin.Context) {
	var req BillingRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	periodStart, err := time.Parse("2006-01", req.Period)
	if err != nil {
		h.BadRequest(c, "period must be in YYYY-MM form")
		return
	}
	dueDays := req.DueDays
	if dueDays == 0 {
		dueDays = 5
	}

	report, err := h.billing.GenerateForPeriod(c.Request.Context(), periodStart, dueDays)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}

// Recalculate rebuilds one invoice's balance from its active allocations
// and reports whether anything had drifted
func (h *InvoiceHandler) Recalculate(c *gin.Context) {
	id, ok := h.parseIDParam(c)
	if !ok {
		return
	}

	changed, err := h.balance.RecalculateInvoice(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"invoice_id": id, "changed": changed})
}

// RecalculateForTenant rebuilds every invoice balance for one tenant
func (h *InvoiceHandler) RecalculateForTenant(c *gin.Context) {
	tenantID, ok := h.parseIDParam(c)
	if !ok {
		return
	}

	report, err := h.balance.RecalculateForTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
