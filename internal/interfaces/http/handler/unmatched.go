package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	mpesaapp "github.com/makao/backend/internal/application/mpesa"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/internal/infrastructure/auth"
	"github.com/makao/backend/internal/interfaces/http/dto"
	"github.com/makao/backend/internal/interfaces/http/middleware"
)

// UnmatchedHandler handles the triage queue of deposits that could not be
// tied to a tenancy
type UnmatchedHandler struct {
	BaseHandler
	unmatched *mpesaapp.UnmatchedService
}

// NewUnmatchedHandler creates a new UnmatchedHandler
func NewUnmatchedHandler(unmatched *mpesaapp.UnmatchedService) *UnmatchedHandler {
	return &UnmatchedHandler{unmatched: unmatched}
}

// RegisterRoutes wires the triage queue endpoints into the API group.
// Everything here is staff work.
func (h *UnmatchedHandler) RegisterRoutes(rg *gin.RouterGroup) {
	staff := middleware.RequireRoles(auth.RoleAdmin, auth.RoleLandlord)

	rg.GET("/mpesa/unmatched", staff, h.List)
	rg.GET("/mpesa/unmatched/count", staff, h.CountOpen)
	rg.GET("/mpesa/unmatched/:id", staff, h.Get)
	rg.POST("/mpesa/unmatched/:id/review", staff, h.MarkUnderReview)
	rg.POST("/mpesa/unmatched/:id/resolution", staff, h.Resolve)
	rg.POST("/mpesa/unmatched/:id/refund", staff, h.MarkRefunded)
}

// ListUnmatchedRequest filters the triage queue by status
type ListUnmatchedRequest struct {
	dto.ListRequest
	Status string `form:"status" binding:"omitempty,oneof=OPEN UNDER_REVIEW RESOLVED REFUNDED"`
}

// List returns quarantined deposits, oldest first so the queue drains in
// arrival order
func (h *UnmatchedHandler) List(c *gin.Context) {
	var req ListUnmatchedRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	status := mpesa.UnmatchedStatusOpen
	if req.Status != "" {
		status = mpesa.UnmatchedStatus(req.Status)
	}

	filter := req.ToFilter()
	deposits, total, err := h.unmatched.List(c.Request.Context(), status, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, deposits, total, filter.Page, filter.PageSize)
}

// Get returns one quarantined deposit
func (h *UnmatchedHandler) Get(c *gin.Context) {
	id, ok := h.parseIDParam(c)
	if !ok {
		return
	}

	deposit, err := h.unmatched.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, deposit)
}

// CountOpen reports how many deposits still await attention, for the
// dashboard badge
func (h *UnmatchedHandler) CountOpen(c *gin.Context) {
	count, err := h.unmatched.CountOpen(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"open": count})
}

// ReviewRequest is the body for taking a deposit under review
type ReviewRequest struct {
	Notes string `json:"notes"`
}

// MarkUnderReview claims a deposit for investigation
func (h *UnmatchedHandler) MarkUnderReview(c *gin.Context) {
	id, ok := h.parseIDParam(c)
	if !ok {
		return
	}

	var req ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	if err := h.unmatched.MarkUnderReview(c.Request.Context(), id, req.Notes); err != nil {
		h.HandleError(c, err)
		return
	}

	deposit, err := h.unmatched.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, deposit)
}

// ResolveUnmatchedRequest is the body for routing a deposit to a tenant.
// An invoice ID pins the money to that invoice; otherwise it spreads over
// the tenant's outstanding invoices.
type ResolveUnmatchedRequest struct {
	TenantID  string `json:"tenant_id" binding:"required,uuid"`
	Notes     string `json:"notes"`
	InvoiceID string `json:"invoice_id" binding:"omitempty,uuid"`
}

// Resolve routes a quarantined deposit to a tenant as a payment and applies
// it to the tenant's invoices
func (h *UnmatchedHandler) Resolve(c *gin.Context) {
	id, ok := h.parseIDParam(c)
	if !ok {
		return
	}
	claims, ok := h.requireClaims(c)
	if !ok {
		return
	}

	var req ResolveUnmatchedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	resolvedBy, err := claims.GetUserUUID()
	if err != nil {
		h.BadRequest(c, "Malformed user ID in token")
		return
	}

	cmd := mpesaapp.ResolveCommand{
		UnmatchedID: id,
		TenantID:    uuid.MustParse(req.TenantID),
		ResolvedBy:  resolvedBy,
		Notes:       req.Notes,
	}
	if req.InvoiceID != "" {
		invoiceID := uuid.MustParse(req.InvoiceID)
		cmd.InvoiceID = &invoiceID
	}

	payment, err := h.unmatched.Resolve(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, payment)
}

// RefundRequest is the body for recording a refund back to the payer
type RefundRequest struct {
	Notes string `json:"notes"`
}

// MarkRefunded records that a deposit was returned to the payer
func (h *UnmatchedHandler) MarkRefunded(c *gin.Context) {
	id, ok := h.parseIDParam(c)
	if !ok {
		return
	}
	claims, ok := h.requireClaims(c)
	if !ok {
		return
	}

	var req RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	refundedBy, err := claims.GetUserUUID()
	if err != nil {
		h.BadRequest(c, "Malformed user ID in token")
		return
	}

	if err := h.unmatched.MarkRefunded(c.Request.Context(), id, refundedBy, req.Notes); err != nil {
		h.HandleError(c, err)
		return
	}

	deposit, err := h.unmatched.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, deposit)
}
