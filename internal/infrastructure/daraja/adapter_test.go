package daraja

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/makao/backend/internal/domain/mpesa"
)

func testConfig() *Config {
	return &Config{
		Env:                "sandbox",
		ConsumerKey:        "test-key",
		ConsumerSecret:     "test-secret",
		ShortCode:          "174379",
		Passkey:            "test-passkey",
		InitiatorName:      "testapi",
		SecurityCredential: "encrypted-credential",
		CallbackBaseURL:    "https://pay.example.co.ke",
		Timeout:            5 * time.Second,
	}
}

// testTransport rewrites every request onto the test server so the adapter
// can keep using its configured host
type testTransport struct {
	serverURL string
}

func (t *testTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = strings.TrimPrefix(t.serverURL, "http://")
	return http.DefaultTransport.RoundTrip(req)
}

// newTestAdapter starts a server that issues tokens and hands API calls to
// the given handler
func newTestAdapter(t *testing.T, apiHandler http.HandlerFunc) (*Adapter, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Basic "))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "test-token", ExpiresIn: "3599"})
	})
	if apiHandler != nil {
		mux.HandleFunc("/", apiHandler)
	}
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	adapter, err := NewAdapter(testConfig())
	require.NoError(t, err)
	adapter.httpClient = &http.Client{
		Transport: &testTransport{serverURL: server.URL},
		Timeout:   5 * time.Second,
	}
	return adapter, server
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(*Config) {}, nil},
		{"bad env", func(c *Config) { c.Env = "staging" }, ErrInvalidEnv},
		{"missing consumer key", func(c *Config) { c.ConsumerKey = "" }, ErrMissingConsumerKey},
		{"missing consumer secret", func(c *Config) { c.ConsumerSecret = "" }, ErrMissingConsumerSecret},
		{"missing short code", func(c *Config) { c.ShortCode = "" }, ErrMissingShortCode},
		{"missing passkey", func(c *Config) { c.Passkey = "" }, ErrMissingPasskey},
		{"missing callback URL", func(c *Config) { c.CallbackBaseURL = "" }, ErrMissingCallbackURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestConfig_BaseURL(t *testing.T) {
	cfg := testConfig()
	assert.Equal(t, "https://sandbox.safaricom.co.ke", cfg.BaseURL())

	cfg.Env = "production"
	assert.Equal(t, "https://api.safaricom.co.ke", cfg.BaseURL())
}

func TestConfig_CallbackURL(t *testing.T) {
	cfg := testConfig()
	cfg.CallbackBaseURL = "https://pay.example.co.ke/"
	assert.Equal(t, "https://pay.example.co.ke/api/v1/mpesa/callbacks/stk",
		cfg.CallbackURL(StkCallbackPath))
}

func TestAdapter_StkPush(t *testing.T) {
	var captured stkPushRequest
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/mpesa/stkpush/v1/processrequest", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stkPushResponse{
			MerchantRequestID:   "29115-34620561-1",
			CheckoutRequestID:   "ws_CO_191220191020363925",
			ResponseCode:        "0",
			ResponseDescription: "Success. Request accepted for processing",
			CustomerMessage:     "Success. Request accepted for processing",
		})
	})

	resp, err := adapter.StkPush(context.Background(), &mpesa.StkPushRequest{
		Phone:            "0712345678",
		Amount:           decimal.NewFromInt(15000),
		AccountReference: "A12",
		Description:      "Rent March 2026",
	})
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", resp.CheckoutID)
	assert.Equal(t, "0", resp.ResponseCode)

	assert.Equal(t, "174379", captured.BusinessShortCode)
	assert.Equal(t, "254712345678", captured.PhoneNumber)
	assert.Equal(t, "254712345678", captured.PartyA)
	assert.Equal(t, "15000", captured.Amount)
	assert.Equal(t, "A12", captured.AccountReference)
	assert.Equal(t, "https://pay.example.co.ke/api/v1/mpesa/callbacks/stk", captured.CallBackURL)
	assert.NotEmpty(t, captured.Password)
	assert.NotEmpty(t, captured.Timestamp)
}

func TestAdapter_StkPush_InvalidRequest(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)

	_, err := adapter.StkPush(context.Background(), &mpesa.StkPushRequest{
		Phone:            "0712345678",
		Amount:           decimal.Zero,
		AccountReference: "A12",
	})
	assert.ErrorIs(t, err, mpesa.ErrInvalidAmount)

	_, err = adapter.StkPush(context.Background(), &mpesa.StkPushRequest{
		Phone:            "1234567890123456",
		Amount:           decimal.NewFromInt(100),
		AccountReference: "A12",
	})
	assert.ErrorIs(t, err, mpesa.ErrInvalidPhone)
}

func TestAdapter_StkPush_ProviderRejects(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(errorResponse{
			RequestID:    "req-1",
			ErrorCode:    "400.002.02",
			ErrorMessage: "Bad Request - Invalid Amount",
		})
	})

	_, err := adapter.StkPush(context.Background(), &mpesa.StkPushRequest{
		Phone:            "254712345678",
		Amount:           decimal.NewFromInt(100),
		AccountReference: "A12",
	})
	assert.ErrorIs(t, err, mpesa.ErrGatewayRequestFailed)
	assert.Contains(t, err.Error(), "400.002.02")
}

func TestAdapter_QueryStkStatus_Completed(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mpesa/stkpushquery/v1/query", r.URL.Path)

		var req stkQueryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ws_CO_191220191020363925", req.CheckoutRequestID)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stkQueryResponse{
			ResponseCode:      "0",
			CheckoutRequestID: "ws_CO_191220191020363925",
			ResultCode:        "0",
			ResultDesc:        "The service request is processed successfully.",
		})
	})

	status, err := adapter.QueryStkStatus(context.Background(), "ws_CO_191220191020363925")
	require.NoError(t, err)
	assert.True(t, status.Completed)
	assert.True(t, status.Success)
	assert.Equal(t, "0", status.ResultCode)
}

func TestAdapter_QueryStkStatus_Cancelled(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stkQueryResponse{
			ResponseCode:      "0",
			CheckoutRequestID: "ws_CO_191220191020363925",
			ResultCode:        "1032",
			ResultDesc:        "Request cancelled by user",
		})
	})

	status, err := adapter.QueryStkStatus(context.Background(), "ws_CO_191220191020363925")
	require.NoError(t, err)
	assert.True(t, status.Completed)
	assert.False(t, status.Success)
	assert.Equal(t, "1032", status.ResultCode)
}

func TestAdapter_QueryStkStatus_StillProcessing(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(errorResponse{
			ErrorCode:    "500.001.1001",
			ErrorMessage: "The transaction is being processed",
		})
	})

	status, err := adapter.QueryStkStatus(context.Background(), "ws_CO_191220191020363925")
	require.NoError(t, err)
	assert.False(t, status.Completed)
	assert.False(t, status.Success)
}

func TestAdapter_QueryStkStatus_NotFound(t *testing.T) {
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(errorResponse{
			ErrorCode:    "404.001.04",
			ErrorMessage: "Invalid CheckoutRequestID",
		})
	})

	_, err := adapter.QueryStkStatus(context.Background(), "ws_CO_unknown")
	assert.ErrorIs(t, err, mpesa.ErrTransactionNotFound)
}

func TestAdapter_QueryStkStatus_EmptyCheckoutID(t *testing.T) {
	adapter, _ := newTestAdapter(t, nil)

	_, err := adapter.QueryStkStatus(context.Background(), "")
	assert.ErrorIs(t, err, mpesa.ErrInvalidCheckoutID)
}

func TestAdapter_B2CPayment(t *testing.T) {
	var captured b2cRequest
	adapter, _ := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/mpesa/b2c/v1/paymentrequest", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(b2cResponse{
			ConversationID:           "AG_20260310_00004e48cf7e3533f581",
			OriginatorConversationID: captured.OriginatorConversationID,
			ResponseCode:             "0",
			ResponseDescription:      "Accept the service request successfully.",
		})
	})

	resp, err := adapter.B2CPayment(context.Background(), &mpesa.B2CRequest{
		Phone:   "254722000111",
		Amount:  decimal.NewFromInt(42000),
		Remarks: "Landlord payout",
	})
	require.NoError(t, err)
	assert.Equal(t, "AG_20260310_00004e48cf7e3533f581", resp.ConversationID)

	assert.Equal(t, "testapi", captured.InitiatorName)
	assert.Equal(t, "BusinessPayment", captured.CommandID)
	assert.Equal(t, "174379", captured.PartyA)
	assert.Equal(t, "254722000111", captured.PartyB)
	assert.Equal(t, "42000", captured.Amount)
	assert.NotEmpty(t, captured.OriginatorConversationID)
	assert.Equal(t, "https://pay.example.co.ke/api/v1/mpesa/callbacks/b2c/result", captured.ResultURL)
	assert.Equal(t, "https://pay.example.co.ke/api/v1/mpesa/callbacks/b2c/timeout", captured.QueueTimeOutURL)
}

func TestAdapter_B2CPayment_MissingInitiator(t *testing.T) {
	cfg := testConfig()
	cfg.InitiatorName = ""
	adapter, err := NewAdapter(cfg)
	require.NoError(t, err)

	_, err = adapter.B2CPayment(context.Background(), &mpesa.B2CRequest{
		Phone:  "254722000111",
		Amount: decimal.NewFromInt(100),
	})
	assert.ErrorIs(t, err, mpesa.ErrGatewayRequestFailed)
	assert.ErrorIs(t, err, ErrMissingInitiator)
}

func TestAdapter_TokenIsCached(t *testing.T) {
	tokenCalls := 0

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "tok", ExpiresIn: "3599"})
	})
	mux.HandleFunc("/mpesa/stkpushquery/v1/query", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(stkQueryResponse{ResultCode: "0"})
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter, err := NewAdapter(testConfig())
	require.NoError(t, err)
	adapter.httpClient = &http.Client{Transport: &testTransport{serverURL: server.URL}}

	for i := 0; i < 3; i++ {
		_, err := adapter.QueryStkStatus(context.Background(), "ws_CO_1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, tokenCalls)
}

func TestAdapter_TokenFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/v1/generate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	adapter, err := NewAdapter(testConfig())
	require.NoError(t, err)
	adapter.httpClient = &http.Client{Transport: &testTransport{serverURL: server.URL}}

	_, err = adapter.QueryStkStatus(context.Background(), "ws_CO_1")
	assert.ErrorIs(t, err, mpesa.ErrGatewayAuthFailed)
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"254712345678", "254712345678", false},
		{"0712345678", "254712345678", false},
		{"0110345678", "254110345678", false},
		{"+254 712 345-678", "254712345678", false},
		{"712345678", "", true},
		{"25471234567", "", true},
		{"07123456789", "", true},
		{"not-a-phone", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := normalizePhone(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, mpesa.ErrInvalidPhone)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestParseStkCallback_Success(t *testing.T) {
	payload := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 0,
				"ResultDesc": "The service request is processed successfully.",
				"CallbackMetadata": {
					"Item": [
						{"Name": "Amount", "Value": 15000.00},
						{"Name": "MpesaReceiptNumber", "Value": "TKH1AB2CD3"},
						{"Name": "TransactionDate", "Value": 20260310143502},
						{"Name": "PhoneNumber", "Value": 254712345678}
					]
				}
			}
		}
	}`)

	result, err := ParseStkCallback(payload)
	require.NoError(t, err)
	assert.Equal(t, "ws_CO_191220191020363925", result.CheckoutID)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "TKH1AB2CD3", result.ProviderReference)
	assert.True(t, result.Amount.Equal(decimal.NewFromInt(15000)))
	assert.Equal(t, "254712345678", result.Phone)
	assert.Equal(t, time.Date(2026, 3, 10, 14, 35, 2, 0, time.UTC), result.TransactionDate)
}

func TestParseStkCallback_Cancelled(t *testing.T) {
	payload := []byte(`{
		"Body": {
			"stkCallback": {
				"MerchantRequestID": "29115-34620561-1",
				"CheckoutRequestID": "ws_CO_191220191020363925",
				"ResultCode": 1032,
				"ResultDesc": "Request cancelled by user"
			}
		}
	}`)

	result, err := ParseStkCallback(payload)
	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Equal(t, 1032, result.ResultCode)
	assert.Empty(t, result.ProviderReference)
}

func TestParseStkCallback_Malformed(t *testing.T) {
	_, err := ParseStkCallback([]byte(`{"Body": {}}`))
	assert.ErrorIs(t, err, mpesa.ErrGatewayInvalidResponse)

	_, err = ParseStkCallback([]byte(`not json`))
	assert.ErrorIs(t, err, mpesa.ErrGatewayInvalidResponse)
}

func TestParseC2BConfirmation(t *testing.T) {
	payload := []byte(`{
		"TransactionType": "Pay Bill",
		"TransID": "TKI7XY8ZW9",
		"TransTime": "20260305091544",
		"TransAmount": "25000.00",
		"BusinessShortCode": "174379",
		"BillRefNumber": " A12 ",
		"MSISDN": "254722000111",
		"FirstName": "JOHN",
		"MiddleName": "",
		"LastName": "KAMAU"
	}`)

	conf, err := ParseC2BConfirmation(payload)
	require.NoError(t, err)
	assert.Equal(t, "TKI7XY8ZW9", conf.ProviderReference)
	assert.True(t, conf.Amount.Equal(decimal.NewFromInt(25000)))
	assert.Equal(t, "A12", conf.AccountReference)
	assert.Equal(t, "254722000111", conf.Phone)
	assert.Equal(t, "JOHN KAMAU", conf.PayerName)
	assert.Equal(t, time.Date(2026, 3, 5, 9, 15, 44, 0, time.UTC), conf.TransactionDate)
}

func TestParseC2BConfirmation_BadAmount(t *testing.T) {
	payload := []byte(`{"TransID": "TKI7XY8ZW9", "TransAmount": "abc"}`)

	_, err := ParseC2BConfirmation(payload)
	assert.ErrorIs(t, err, mpesa.ErrGatewayInvalidResponse)
}

func TestParseB2CResult(t *testing.T) {
	payload := []byte(`{
		"Result": {
			"ResultType": 0,
			"ResultCode": 0,
			"ResultDesc": "The service request is processed successfully.",
			"OriginatorConversationID": "10571-7910404-1",
			"ConversationID": "AG_20260310_00004e48cf7e3533f581",
			"TransactionID": "TKJ5QR6ST7",
			"ResultParameters": {
				"ResultParameter": [
					{"Key": "TransactionReceipt", "Value": "TKJ5QR6ST7"},
					{"Key": "TransactionAmount", "Value": 42000},
					{"Key": "TransactionCompletedDateTime", "Value": "10.03.2026 14:35:02"}
				]
			}
		}
	}`)

	result, err := ParseB2CResult(payload)
	require.NoError(t, err)
	assert.Equal(t, "AG_20260310_00004e48cf7e3533f581", result.ConversationID)
	assert.True(t, result.Succeeded())
	assert.Equal(t, "TKJ5QR6ST7", result.ProviderReference)
	assert.Equal(t, time.Date(2026, 3, 10, 14, 35, 2, 0, time.UTC), result.TransactionDate)
}

func TestParseB2CResult_Failure(t *testing.T) {
	payload := []byte(`{
		"Result": {
			"ResultCode": 2001,
			"ResultDesc": "The initiator information is invalid.",
			"ConversationID": "AG_20260310_00004e48cf7e3533f581"
		}
	}`)

	result, err := ParseB2CResult(payload)
	require.NoError(t, err)
	assert.False(t, result.Succeeded())
	assert.Equal(t, 2001, result.ResultCode)
}
