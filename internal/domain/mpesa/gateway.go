package mpesa

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway errors
var (
	// Request validation errors
	ErrInvalidPhone            = errors.New("mpesa: invalid phone number")
	ErrInvalidAmount           = errors.New("mpesa: invalid amount")
	ErrInvalidAccountReference = errors.New("mpesa: invalid account reference")
	ErrInvalidCheckoutID       = errors.New("mpesa: invalid checkout ID")

	// Gateway interaction errors
	ErrGatewayUnavailable     = errors.New("mpesa: gateway temporarily unavailable")
	ErrGatewayRequestFailed   = errors.New("mpesa: gateway request failed")
	ErrGatewayInvalidResponse = errors.New("mpesa: invalid gateway response")
	ErrGatewayAuthFailed      = errors.New("mpesa: gateway authentication failed")
	ErrTransactionNotFound    = errors.New("mpesa: transaction not found at gateway")
)

// StkPushRequest asks the provider to prompt a phone for payment
type StkPushRequest struct {
	Phone            string          // Payer phone in 2547XXXXXXXX form
	Amount           decimal.Decimal // Whole shillings
	AccountReference string          // Shown on the payer's statement
	Description      string
}

// Validate checks the request fields
func (r *StkPushRequest) Validate() error {
	if len(r.Phone) < 10 {
		return ErrInvalidPhone
	}
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if r.AccountReference == "" {
		return ErrInvalidAccountReference
	}
	return nil
}

// StkPushResponse carries the provider's acceptance of a push request
type StkPushResponse struct {
	CheckoutID   string // Tracks the in-flight prompt
	ResponseCode string
	Description  string
}

// StkQueryResponse carries the provider's view of an in-flight push
type StkQueryResponse struct {
	CheckoutID        string
	ResultCode        string
	ResultDescription string
	Completed         bool   // Provider reached a terminal result
	Success           bool   // Terminal result was a paid prompt
	ProviderReference string // Receipt number when successful
}

// B2CRequest asks the provider to pay out to a phone
type B2CRequest struct {
	Phone   string
	Amount  decimal.Decimal
	Remarks string
}

// Validate checks the request fields
func (r *B2CRequest) Validate() error {
	if len(r.Phone) < 10 {
		return ErrInvalidPhone
	}
	if r.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	return nil
}

// B2CResponse carries the provider's acceptance of a payout request
type B2CResponse struct {
	ConversationID string // Tracks the in-flight payout
	ResponseCode   string
	Description    string
}

// Gateway is the port to the mobile money provider. Implementations talk to
// the Daraja API; tests substitute a mock.
type Gateway interface {
	// StkPush prompts a phone to authorize a payment
	StkPush(ctx context.Context, req *StkPushRequest) (*StkPushResponse, error)
	// QueryStkStatus asks the provider for the state of an in-flight prompt
	QueryStkStatus(ctx context.Context, checkoutID string) (*StkQueryResponse, error)
	// B2CPayment sends money from the paybill to a phone
	B2CPayment(ctx context.Context, req *B2CRequest) (*B2CResponse, error)
}

// StkCallbackResult is the parsed payload of a push payment callback
type StkCallbackResult struct {
	CheckoutID        string
	ResultCode        int
	ResultDescription string
	Amount            decimal.Decimal
	ProviderReference string // Receipt number, present on success
	Phone             string
	TransactionDate   time.Time
}

// Succeeded reports whether the prompt ended in a payment
func (r *StkCallbackResult) Succeeded() bool {
	return r.ResultCode == 0
}

// C2BConfirmation is the parsed payload of an inbound paybill deposit
type C2BConfirmation struct {
	ProviderReference string // Receipt number, unique per deposit
	Amount            decimal.Decimal
	AccountReference  string // What the payer typed as the account
	Phone             string
	PayerName         string
	TransactionDate   time.Time
}

// B2CResult is the parsed payload of a payout result callback
type B2CResult struct {
	ConversationID    string
	ResultCode        int
	ResultDescription string
	ProviderReference string
	TransactionDate   time.Time
}

// Succeeded reports whether the payout went through
func (r *B2CResult) Succeeded() bool {
	return r.ResultCode == 0
}
