package dto

import "net/http"

// Error codes surfaced by the API. Domain errors carry these codes
// verbatim; the HTTP layer only decides which status each one maps to.
const (
	// ErrCodeValidation is used when input fails domain validation
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	// ErrCodeConflict is used for resource conflicts, including a lock
	// another run already holds
	ErrCodeConflict = "CONFLICT"
	// ErrCodeInvalidState is used when an operation is invalid for the
	// aggregate's current state
	ErrCodeInvalidState = "INVALID_STATE"
	// ErrCodeInsufficientFunds is used when a payment cannot cover what
	// the caller asked it to cover
	ErrCodeInsufficientFunds = "INSUFFICIENT_FUNDS"
	// ErrCodeOverAllocation is used when an allocation would exceed an
	// invoice balance or the payment amount
	ErrCodeOverAllocation = "OVER_ALLOCATION"
	// ErrCodeUnauthorized is used when authentication is missing or invalid
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeForbidden is used when the caller lacks permission
	ErrCodeForbidden = "FORBIDDEN"
	// ErrCodeExternalService is used when the payment provider failed
	ErrCodeExternalService = "EXTERNAL_SERVICE_ERROR"
	// ErrCodeReconciliation is used when reconciling provider records
	// against the ledger failed
	ErrCodeReconciliation = "RECONCILIATION_ERROR"
	// ErrCodeIntegrity is used when stored ledger figures disagree with
	// each other
	ErrCodeIntegrity = "INTEGRITY_ERROR"
	// ErrCodeInternal is used for everything else
	ErrCodeInternal = "INTERNAL_ERROR"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeValidation:        http.StatusBadRequest,
	ErrCodeBadRequest:        http.StatusBadRequest,
	ErrCodeNotFound:          http.StatusNotFound,
	ErrCodeAlreadyExists:     http.StatusConflict,
	ErrCodeConflict:          http.StatusConflict,
	ErrCodeInvalidState:      http.StatusUnprocessableEntity,
	ErrCodeInsufficientFunds: http.StatusUnprocessableEntity,
	ErrCodeOverAllocation:    http.StatusUnprocessableEntity,
	ErrCodeUnauthorized:      http.StatusUnauthorized,
	ErrCodeForbidden:         http.StatusForbidden,
	ErrCodeExternalService:   http.StatusBadGateway,
	ErrCodeReconciliation:    http.StatusInternalServerError,
	ErrCodeIntegrity:         http.StatusInternalServerError,
	ErrCodeInternal:          http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status for an error code, defaulting to
// 500 for codes the map does not know
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
