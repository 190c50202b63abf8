package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("VALIDATION_ERROR", "Invalid input provided")
	ErrConcurrencyConflict = NewDomainError("CONCURRENCY_CONFLICT", "Resource was modified by another process")
	ErrUnauthorized        = NewDomainError("UNAUTHORIZED", "Not authorized to perform this action")
	ErrForbidden           = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")
	ErrInvalidState        = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrConflict            = NewDomainError("CONFLICT", "Operation conflicts with current resource state")
	ErrInsufficientFunds   = NewDomainError("INSUFFICIENT_FUNDS", "Amount exceeds the payment's unallocated balance")
	ErrOverAllocation      = NewDomainError("OVER_ALLOCATION", "Amount exceeds the invoice's outstanding balance")
	ErrExternalService     = NewDomainError("EXTERNAL_SERVICE_ERROR", "Upstream provider request failed")
	ErrReconciliation      = NewDomainError("RECONCILIATION_ERROR", "Account reference could not be attributed")
	ErrIntegrity           = NewDomainError("INTEGRITY_ERROR", "Stored ledger data violates a balance invariant")
)
