package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/makao/backend/internal/infrastructure/config"
)

// Errors for SMS delivery
var (
	ErrMissingEndpoint = errors.New("notification: missing SMS endpoint")
	ErrSendFailed      = errors.New("notification: SMS send failed")
)

// HTTPSMSNotifier delivers notices through a JSON-over-HTTP SMS provider
type HTTPSMSNotifier struct {
	endpoint   string
	apiKey     string
	senderID   string
	httpClient *http.Client
}

// NewHTTPSMSNotifier creates a notifier against the configured SMS provider
func NewHTTPSMSNotifier(cfg config.NotifyConfig) (*HTTPSMSNotifier, error) {
	if cfg.SMSEndpoint == "" {
		return nil, ErrMissingEndpoint
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &HTTPSMSNotifier{
		endpoint: cfg.SMSEndpoint,
		apiKey:   cfg.SMSAPIKey,
		senderID: cfg.SenderID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// smsMessage is the provider's send payload
type smsMessage struct {
	To     string `json:"to"`
	From   string `json:"from,omitempty"`
	Body   string `json:"body"`
	APIKey string `json:"api_key,omitempty"`
}

// SendPaymentReceipt sends a payment receipt SMS
func (n *HTTPSMSNotifier) SendPaymentReceipt(ctx context.Context, receipt PaymentReceipt) error {
	body := fmt.Sprintf("Dear %s, payment %s of KES %s received.",
		receipt.TenantName, receipt.PaymentNumber, receipt.Amount.StringFixed(2))
	if receipt.Unallocated.IsPositive() {
		body += fmt.Sprintf(" KES %s held as credit.", receipt.Unallocated.StringFixed(2))
	}
	return n.send(ctx, receipt.Phone, body)
}

// SendOverdueNotice sends an overdue invoice SMS
func (n *HTTPSMSNotifier) SendOverdueNotice(ctx context.Context, notice OverdueNotice) error {
	body := fmt.Sprintf("Dear %s, invoice %s is %d days overdue. Outstanding balance: KES %s.",
		notice.TenantName, notice.InvoiceNumber, notice.DaysOverdue, notice.Balance.StringFixed(2))
	return n.send(ctx, notice.Phone, body)
}

func (n *HTTPSMSNotifier) send(ctx context.Context, to, body string) error {
	if to == "" {
		return fmt.Errorf("%w: empty recipient", ErrSendFailed)
	}

	payload, err := json.Marshal(smsMessage{
		To:     to,
		From:   n.senderID,
		Body:   body,
		APIKey: n.apiKey,
	})
	if err != nil {
		return fmt.Errorf("notification: failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notification: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: HTTP %d", ErrSendFailed, resp.StatusCode)
	}
	return nil
}

var _ Notifier = (*HTTPSMSNotifier)(nil)
