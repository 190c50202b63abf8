package daraja

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/makao/backend/internal/domain/mpesa"
)

// tokenSafetyMargin is shaved off the provider's expiry so a token is never
// used right at its deadline
const tokenSafetyMargin = 60 * time.Second

// Adapter implements the mpesa.Gateway interface against the Daraja API
type Adapter struct {
	config     *Config
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewAdapter creates a new Daraja adapter
func NewAdapter(config *Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// StkPush prompts a phone to authorize a payment
func (a *Adapter) StkPush(ctx context.Context, req *mpesa.StkPushRequest) (*mpesa.StkPushResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	phone, err := normalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format(darajaTimeLayout)
	body := stkPushRequest{
		BusinessShortCode: a.config.ShortCode,
		Password:          stkPassword(a.config.ShortCode, a.config.Passkey, timestamp),
		Timestamp:         timestamp,
		TransactionType:   transactionTypePayBill,
		Amount:            req.Amount.Round(0).String(),
		PartyA:            phone,
		PartyB:            a.config.ShortCode,
		PhoneNumber:       phone,
		CallBackURL:       a.config.CallbackURL(StkCallbackPath),
		AccountReference:  req.AccountReference,
		TransactionDesc:   req.Description,
	}

	respBody, status, err := a.doRequest(ctx, stkPushPath, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, mapErrorResponse(status, respBody)
	}

	var pushResp stkPushResponse
	if err := json.Unmarshal(respBody, &pushResp); err != nil {
		return nil, fmt.Errorf("%w: %v", mpesa.ErrGatewayInvalidResponse, err)
	}
	if pushResp.ResponseCode != "0" {
		return nil, fmt.Errorf("%w: %s - %s", mpesa.ErrGatewayRequestFailed,
			pushResp.ResponseCode, pushResp.ResponseDescription)
	}
	if pushResp.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", mpesa.ErrGatewayInvalidResponse)
	}

	return &mpesa.StkPushResponse{
		CheckoutID:   pushResp.CheckoutRequestID,
		ResponseCode: pushResp.ResponseCode,
		Description:  pushResp.CustomerMessage,
	}, nil
}

// QueryStkStatus asks the provider for the state of an in-flight prompt.
// A prompt the provider is still processing comes back with Completed false
// rather than as an error.
func (a *Adapter) QueryStkStatus(ctx context.Context, checkoutID string) (*mpesa.StkQueryResponse, error) {
	if checkoutID == "" {
		return nil, mpesa.ErrInvalidCheckoutID
	}

	timestamp := time.Now().Format(darajaTimeLayout)
	body := stkQueryRequest{
		BusinessShortCode: a.config.ShortCode,
		Password:          stkPassword(a.config.ShortCode, a.config.Passkey, timestamp),
		Timestamp:         timestamp,
		CheckoutRequestID: checkoutID,
	}

	respBody, status, err := a.doRequest(ctx, stkQueryPath, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil {
			if errResp.ErrorCode == errorCodeStillProcessing {
				return &mpesa.StkQueryResponse{
					CheckoutID:        checkoutID,
					ResultDescription: errResp.ErrorMessage,
					Completed:         false,
				}, nil
			}
			if strings.HasPrefix(errResp.ErrorCode, "404") {
				return nil, fmt.Errorf("%w: %s", mpesa.ErrTransactionNotFound, checkoutID)
			}
		}
		return nil, mapErrorResponse(status, respBody)
	}

	var queryResp stkQueryResponse
	if err := json.Unmarshal(respBody, &queryResp); err != nil {
		return nil, fmt.Errorf("%w: %v", mpesa.ErrGatewayInvalidResponse, err)
	}

	return &mpesa.StkQueryResponse{
		CheckoutID:        queryResp.CheckoutRequestID,
		ResultCode:        queryResp.ResultCode,
		ResultDescription: queryResp.ResultDesc,
		Completed:         queryResp.ResultCode != "",
		Success:           queryResp.ResultCode == "0",
	}, nil
}

// B2CPayment sends money from the paybill to a phone
func (a *Adapter) B2CPayment(ctx context.Context, req *mpesa.B2CRequest) (*mpesa.B2CResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if a.config.InitiatorName == "" || a.config.SecurityCredential == "" {
		return nil, fmt.Errorf("%w: %w", mpesa.ErrGatewayRequestFailed, ErrMissingInitiator)
	}

	phone, err := normalizePhone(req.Phone)
	if err != nil {
		return nil, err
	}

	remarks := req.Remarks
	if remarks == "" {
		remarks = "Disbursement"
	}

	body := b2cRequest{
		OriginatorConversationID: uuid.NewString(),
		InitiatorName:            a.config.InitiatorName,
		SecurityCredential:       a.config.SecurityCredential,
		CommandID:                commandIDBusinessPay,
		Amount:                   req.Amount.Round(0).String(),
		PartyA:                   a.config.ShortCode,
		PartyB:                   phone,
		Remarks:                  remarks,
		QueueTimeOutURL:          a.config.CallbackURL(B2CTimeoutPath),
		ResultURL:                a.config.CallbackURL(B2CResultPath),
	}

	respBody, status, err := a.doRequest(ctx, b2cPath, body)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, mapErrorResponse(status, respBody)
	}

	var payoutResp b2cResponse
	if err := json.Unmarshal(respBody, &payoutResp); err != nil {
		return nil, fmt.Errorf("%w: %v", mpesa.ErrGatewayInvalidResponse, err)
	}
	if payoutResp.ResponseCode != "0" {
		return nil, fmt.Errorf("%w: %s - %s", mpesa.ErrGatewayRequestFailed,
			payoutResp.ResponseCode, payoutResp.ResponseDescription)
	}

	return &mpesa.B2CResponse{
		ConversationID: payoutResp.ConversationID,
		ResponseCode:   payoutResp.ResponseCode,
		Description:    payoutResp.ResponseDescription,
	}, nil
}

// token returns a cached OAuth token, fetching a fresh one when the cached
// token is absent or close to expiry
func (a *Adapter) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && time.Now().Before(a.tokenExpiry) {
		return a.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.BaseURL()+tokenPath, nil)
	if err != nil {
		return "", fmt.Errorf("daraja: failed to create token request: %w", err)
	}

	credentials := base64.StdEncoding.EncodeToString(
		[]byte(a.config.ConsumerKey + ":" + a.config.ConsumerSecret))
	req.Header.Set("Authorization", "Basic "+credentials)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", mpesa.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("daraja: failed to read token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: HTTP %d", mpesa.ErrGatewayAuthFailed, resp.StatusCode)
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(respBody, &tokenResp); err != nil {
		return "", fmt.Errorf("%w: %v", mpesa.ErrGatewayInvalidResponse, err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", mpesa.ErrGatewayAuthFailed)
	}

	ttl := 3600 * time.Second
	if secs, err := strconv.Atoi(tokenResp.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}

	a.accessToken = tokenResp.AccessToken
	a.tokenExpiry = time.Now().Add(ttl - tokenSafetyMargin)
	return a.accessToken, nil
}

// doRequest posts a JSON body to the API with a bearer token
func (a *Adapter) doRequest(ctx context.Context, path string, body interface{}) ([]byte, int, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, 0, err
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, 0, fmt.Errorf("daraja: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL()+path, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("daraja: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", mpesa.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("daraja: failed to read response: %w", err)
	}

	return respBody, resp.StatusCode, nil
}

// mapErrorResponse maps a non-200 API response to a gateway error
func mapErrorResponse(status int, respBody []byte) error {
	var errResp errorResponse
	if json.Unmarshal(respBody, &errResp) == nil && errResp.ErrorCode != "" {
		if status == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s - %s", mpesa.ErrGatewayAuthFailed,
				errResp.ErrorCode, errResp.ErrorMessage)
		}
		if status >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %s - %s", mpesa.ErrGatewayUnavailable,
				errResp.ErrorCode, errResp.ErrorMessage)
		}
		return fmt.Errorf("%w: %s - %s", mpesa.ErrGatewayRequestFailed,
			errResp.ErrorCode, errResp.ErrorMessage)
	}
	if status >= http.StatusInternalServerError {
		return fmt.Errorf("%w: HTTP %d", mpesa.ErrGatewayUnavailable, status)
	}
	return fmt.Errorf("%w: HTTP %d", mpesa.ErrGatewayRequestFailed, status)
}

// stkPassword builds the base64 password the push endpoints require
func stkPassword(shortCode, passkey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passkey + timestamp))
}

// normalizePhone converts a Kenyan phone number to the 2547XXXXXXXX form
// the API accepts
func normalizePhone(phone string) (string, error) {
	cleaned := strings.NewReplacer("+", "", " ", "", "-", "").Replace(phone)
	if cleaned == "" {
		return "", mpesa.ErrInvalidPhone
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return "", mpesa.ErrInvalidPhone
		}
	}

	if strings.HasPrefix(cleaned, "0") && len(cleaned) == 10 {
		cleaned = "254" + cleaned[1:]
	}
	if !strings.HasPrefix(cleaned, "254") || len(cleaned) != 12 {
		return "", mpesa.ErrInvalidPhone
	}
	return cleaned, nil
}

// Ensure Adapter implements the gateway interface
var _ mpesa.Gateway = (*Adapter)(nil)
