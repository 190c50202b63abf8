package daraja

import (
	"errors"
	"strings"
	"time"
)

const (
	sandboxBaseURL    = "https://sandbox.safaricom.co.ke"
	productionBaseURL = "https://api.safaricom.co.ke"

	// Paths the provider posts results back to, relative to CallbackBaseURL.
	StkCallbackPath     = "/api/v1/mpesa/callbacks/stk"
	C2BConfirmationPath = "/api/v1/mpesa/callbacks/c2b"
	B2CResultPath       = "/api/v1/mpesa/callbacks/b2c/result"
	B2CTimeoutPath      = "/api/v1/mpesa/callbacks/b2c/timeout"
)

// Errors for configuration validation
var (
	ErrMissingConsumerKey    = errors.New("daraja: missing consumer key")
	ErrMissingConsumerSecret = errors.New("daraja: missing consumer secret")
	ErrMissingShortCode      = errors.New("daraja: missing short code")
	ErrMissingPasskey        = errors.New("daraja: missing passkey")
	ErrMissingCallbackURL    = errors.New("daraja: missing callback base URL")
	ErrMissingInitiator      = errors.New("daraja: missing B2C initiator credentials")
	ErrInvalidEnv            = errors.New("daraja: env must be 'sandbox' or 'production'")
)

// Config contains credentials and endpoints for the Daraja API
type Config struct {
	// Env selects the provider environment, sandbox or production
	Env string
	// ConsumerKey and ConsumerSecret authenticate the OAuth token request
	ConsumerKey    string
	ConsumerSecret string
	// ShortCode is the paybill number deposits land on
	ShortCode string
	// Passkey is combined with the short code and timestamp to form the
	// STK push password
	Passkey string
	// InitiatorName and SecurityCredential authorize B2C payouts
	InitiatorName      string
	SecurityCredential string
	// CallbackBaseURL is the public base URL the provider posts results to
	CallbackBaseURL string
	// Timeout bounds each HTTP call to the provider
	Timeout time.Duration
}

// Validate validates the configuration. B2C credentials are optional; the
// adapter rejects payout requests when they are absent.
func (c *Config) Validate() error {
	if c.Env != "sandbox" && c.Env != "production" {
		return ErrInvalidEnv
	}
	if c.ConsumerKey == "" {
		return ErrMissingConsumerKey
	}
	if c.ConsumerSecret == "" {
		return ErrMissingConsumerSecret
	}
	if c.ShortCode == "" {
		return ErrMissingShortCode
	}
	if c.Passkey == "" {
		return ErrMissingPasskey
	}
	if c.CallbackBaseURL == "" {
		return ErrMissingCallbackURL
	}
	return nil
}

// BaseURL returns the API host for the configured environment
func (c *Config) BaseURL() string {
	if c.Env == "production" {
		return productionBaseURL
	}
	return sandboxBaseURL
}

// CallbackURL joins a callback path onto the public base URL
func (c *Config) CallbackURL(path string) string {
	return strings.TrimRight(c.CallbackBaseURL, "/") + path
}
