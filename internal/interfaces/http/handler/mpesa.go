package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	mpesaapp "github.com/makao/backend/internal/application/mpesa"
	"github.com/makao/backend/internal/domain/mpesa"
	"github.com/makao/backend/internal/infrastructure/auth"
	"github.com/makao/backend/internal/interfaces/http/dto"
	"github.com/makao/backend/internal/interfaces/http/middleware"
)

// MpesaHandler handles push payments and provider transaction queries
type MpesaHandler struct {
	BaseHandler
	push         *mpesaapp.PushPaymentService
	transactions mpesa.TransactionRepository
	sweep        *mpesaapp.SweepService
}

// NewMpesaHandler creates a new MpesaHandler
func NewMpesaHandler(
	push *mpesaapp.PushPaymentService,
	transactions mpesa.TransactionRepository,
	sweep *mpesaapp.SweepService,
) *MpesaHandler {
	return &MpesaHandler{
		push:         push,
		transactions: transactions,
		sweep:        sweep,
	}
}

// RegisterRoutes wires the provider-facing endpoints into the API group
func (h *MpesaHandler) RegisterRoutes(rg *gin.RouterGroup) {
	staff := middleware.RequireRoles(auth.RoleAdmin, auth.RoleLandlord)
	admin := middleware.RequireRoles(auth.RoleAdmin)

	rg.POST("/mpesa/push", staff, h.InitiatePush)
	rg.GET("/mpesa/transactions/:id", staff, h.GetTransaction)
	rg.POST("/mpesa/transactions/:id/cancel", staff, h.CancelPush)
	rg.POST("/mpesa/sweep/runs", admin, h.RunSweep)
}

// StkPushRequest is the body for prompting a tenant's phone to pay
type StkPushRequest struct {
	TenantID string          `json:"tenant_id" binding:"required,uuid"`
	Amount   decimal.Decimal `json:"amount" binding:"required"`
	// Phone overrides the tenancy's phone when set
	Phone string `json:"phone"`
}

// InitiatePush asks the provider to prompt the tenant's phone for payment.
// The returned transaction tracks the prompt until the result callback
// or the sweep settles it.
func (h *MpesaHandler) InitiatePush(c *gin.Context) {
	var req StkPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	tx, err := h.push.InitiatePush(c.Request.Context(), mpesaapp.InitiatePushCommand{
		TenantID: uuid.MustParse(req.TenantID),
		Amount:   req.Amount,
		Phone:    req.Phone,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, tx)
}

// GetTransaction returns one provider transaction by ID
func (h *MpesaHandler) GetTransaction(c *gin.Context) {
	id, ok := h.parseIDParam(c)
	if !ok {
		return
	}

	tx, err := h.transactions.FindByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if tx == nil {
		h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, "Transaction not found")
		return
	}
	h.Success(c, tx)
}

// CancelRequest is the body for cancelling a pending push
type CancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CancelPush abandons a pending push prompt, for when the tenant reports
// they never saw it
func (h *MpesaHandler) CancelPush(c *gin.Context) {
	id, ok := h.parseIDParam(c)
	if !ok {
		return
	}

	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	if err := h.push.Cancel(c.Request.Context(), id, req.Reason); err != nil {
		h.HandleError(c, err)
		return
	}

	tx, err := h.transactions.FindByID(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, tx)
}

// RunSweep runs one reconciliation pass on demand instead of waiting for
// the scheduler's next tick
func (h *MpesaHandler) RunSweep(c *gin.Context) {
	report, err := h.sweep.RunOnce(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, report)
}
