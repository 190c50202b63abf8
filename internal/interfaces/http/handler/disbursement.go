package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	mpesaapp "github.com/makao/backend/internal/application/mpesa"
	"github.com/makao/backend/internal/infrastructure/auth"
	"github.com/makao/backend/internal/interfaces/http/dto"
	"github.com/makao/backend/internal/interfaces/http/middleware"
)

// DisbursementHandler handles payouts of collected rent to landlords
type DisbursementHandler struct {
	BaseHandler
	disbursements *mpesaapp.DisbursementService
}

// NewDisbursementHandler creates a new DisbursementHandler
func NewDisbursementHandler(disbursements *mpesaapp.DisbursementService) *DisbursementHandler {
	return &DisbursementHandler{disbursements: disbursements}
}

// RegisterRoutes wires the payout endpoints into the API group
func (h *DisbursementHandler) RegisterRoutes(rg *gin.RouterGroup) {
	staff := middleware.RequireRoles(auth.RoleAdmin, auth.RoleLandlord)

	rg.POST("/mpesa/disbursements", staff, h.Initiate)
	rg.GET("/mpesa/disbursements", staff, h.List)
}

// InitiateDisbursementRequest is the body for sending money to a landlord
type InitiateDisbursementRequest struct {
	LandlordID   string          `json:"landlord_id" binding:"omitempty,uuid"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	Phone        string          `json:"phone" binding:"required,msisdn"`
	Remarks      string          `json:"remarks"`
	SettlementID string          `json:"settlement_id" binding:"omitempty,uuid"`
}

// Initiate dispatches a payout to a landlord's phone. The returned
// transaction tracks the payout until the result callback settles it.
func (h *DisbursementHandler) Initiate(c *gin.Context) {
	var req InitiateDisbursementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	landlordID, ok := h.resolveLandlordID(c, req.LandlordID)
	if !ok {
		return
	}

	cmd := mpesaapp.InitiateDisbursementCommand{
		LandlordID: landlordID,
		Amount:     req.Amount,
		Phone:      req.Phone,
		Remarks:    req.Remarks,
	}
	if req.SettlementID != "" {
		settlementID := uuid.MustParse(req.SettlementID)
		cmd.SettlementID = &settlementID
	}

	tx, err := h.disbursements.Initiate(c.Request.Context(), cmd)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, tx)
}

// List returns the caller's payouts, newest first
func (h *DisbursementHandler) List(c *gin.Context) {
	var req dto.ListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.HandleBindError(c, err)
		return
	}

	landlordID, ok := h.resolveLandlordID(c, c.Query("landlord_id"))
	if !ok {
		return
	}

	filter := req.ToFilter()
	payouts, total, err := h.disbursements.ListByLandlord(c.Request.Context(), landlordID, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, payouts, total, filter.Page, filter.PageSize)
}
