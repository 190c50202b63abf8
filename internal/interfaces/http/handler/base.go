// Package handler exposes the ledger and provider operations over HTTP.
// Handlers bind and validate input, call an application service, and
// translate the outcome into the standard response envelope.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/makao/backend/internal/domain/shared"
	"github.com/makao/backend/internal/infrastructure/auth"
	"github.com/makao/backend/internal/interfaces/http/dto"
	"github.com/makao/backend/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(middleware.RequestIDHeader); id != "" {
		return id
	}
	return c.GetHeader(middleware.RequestIDHeader)
}

// parseIDParam binds and parses the :id path parameter. It writes the
// error response itself; callers just return on !ok.
func (h *BaseHandler) parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	var req dto.IDRequest
	if err := c.ShouldBindUri(&req); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Invalid ID in path")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, "Invalid ID in path")
		return uuid.Nil, false
	}
	return id, true
}

// requireClaims returns the caller's claims, failing the request when the
// route was somehow reached without authentication
func (h *BaseHandler) requireClaims(c *gin.Context) (*auth.Claims, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Authentication required")
		return nil, false
	}
	return claims, true
}

// canAccessTenant reports whether the caller may read a tenant's ledger.
// Admins and landlords see everything in their scope; a tenant only sees
// their own records.
func canAccessTenant(claims *auth.Claims, tenantID uuid.UUID) bool {
	if claims.Role != auth.RoleTenant {
		return true
	}
	return claims.UserID == tenantID.String()
}

// resolveLandlordID picks the landlord scope for a write. Landlords act in
// their own scope; admins must name one explicitly.
func (h *BaseHandler) resolveLandlordID(c *gin.Context, bodyLandlordID string) (uuid.UUID, bool) {
	claims, ok := h.requireClaims(c)
	if !ok {
		return uuid.Nil, false
	}

	if claims.LandlordID != "" {
		id, err := claims.GetLandlordUUID()
		if err != nil {
			h.BadRequest(c, "Malformed landlord scope in token")
			return uuid.Nil, false
		}
		return id, true
	}

	if bodyLandlordID == "" {
		h.BadRequest(c, "landlord_id is required for admin callers")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(bodyLandlordID)
	if err != nil {
		h.BadRequest(c, "Invalid landlord_id")
		return uuid.Nil, false
	}
	return id, true
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// Error sends an error response with an explicit status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// Forbidden sends a 403 forbidden response
func (h *BaseHandler) Forbidden(c *gin.Context, message string) {
	h.Error(c, http.StatusForbidden, dto.ErrCodeForbidden, message)
}

// HandleBindError translates a request binding failure into an HTTP
// response. Field validation failures get per-field details; malformed
// bodies get a plain bad request.
func (h *BaseHandler) HandleBindError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		middleware.HandleValidationError(c, err)
		return
	}
	h.BadRequest(c, "Invalid request body: "+err.Error())
}

// HandleError translates an error into an HTTP response. Domain errors map
// through their code; anything else is reported as an internal error
// without leaking its message.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		status := dto.GetHTTPStatus(domainErr.Code)
		c.JSON(status, dto.NewErrorResponseWithRequestID(domainErr.Code, domainErr.Message, getRequestID(c)))
		return
	}

	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		getRequestID(c),
	))
}
