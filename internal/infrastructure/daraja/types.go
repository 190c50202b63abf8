package daraja

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/makao/backend/internal/domain/mpesa"
)

const (
	tokenPath    = "/oauth/v1/generate?grant_type=client_credentials"
	stkPushPath  = "/mpesa/stkpush/v1/processrequest"
	stkQueryPath = "/mpesa/stkpushquery/v1/query"
	b2cPath      = "/mpesa/b2c/v1/paymentrequest"

	// Timestamp format the provider uses in requests and C2B payloads
	darajaTimeLayout = "20060102150405"
	// Format B2C result parameters carry completion times in
	b2cTimeLayout = "02.01.2006 15:04:05"

	transactionTypePayBill = "CustomerPayBillOnline"
	commandIDBusinessPay   = "BusinessPayment"

	// The provider returns this error code when a queried push has not
	// reached a terminal state yet
	errorCodeStillProcessing = "500.001.1001"
)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            string `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

type b2cRequest struct {
	OriginatorConversationID string `json:"OriginatorConversationID"`
	InitiatorName            string `json:"InitiatorName"`
	SecurityCredential       string `json:"SecurityCredential"`
	CommandID                string `json:"CommandID"`
	Amount                   string `json:"Amount"`
	PartyA                   string `json:"PartyA"`
	PartyB                   string `json:"PartyB"`
	Remarks                  string `json:"Remarks"`
	QueueTimeOutURL          string `json:"QueueTimeOutURL"`
	ResultURL                string `json:"ResultURL"`
	Occasion                 string `json:"Occasion"`
}

type b2cResponse struct {
	ConversationID           string `json:"ConversationID"`
	OriginatorConversationID string `json:"OriginatorConversationID"`
	ResponseCode             string `json:"ResponseCode"`
	ResponseDescription      string `json:"ResponseDescription"`
}

// stkCallbackEnvelope is the push result payload the provider posts back
type stkCallbackEnvelope struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []callbackItem `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

type callbackItem struct {
	Name  string      `json:"Name"`
	Value interface{} `json:"Value"`
}

// c2bConfirmation is the inbound paybill deposit payload
type c2bConfirmation struct {
	TransactionType   string `json:"TransactionType"`
	TransID           string `json:"TransID"`
	TransTime         string `json:"TransTime"`
	TransAmount       string `json:"TransAmount"`
	BusinessShortCode string `json:"BusinessShortCode"`
	BillRefNumber     string `json:"BillRefNumber"`
	MSISDN            string `json:"MSISDN"`
	FirstName         string `json:"FirstName"`
	MiddleName        string `json:"MiddleName"`
	LastName          string `json:"LastName"`
}

// b2cResultEnvelope is the payout result payload
type b2cResultEnvelope struct {
	Result struct {
		ResultType               int    `json:"ResultType"`
		ResultCode               int    `json:"ResultCode"`
		ResultDesc               string `json:"ResultDesc"`
		OriginatorConversationID string `json:"OriginatorConversationID"`
		ConversationID           string `json:"ConversationID"`
		TransactionID            string `json:"TransactionID"`
		ResultParameters         struct {
			ResultParameter []resultParameter `json:"ResultParameter"`
		} `json:"ResultParameters"`
	} `json:"Result"`
}

type resultParameter struct {
	Key   string      `json:"Key"`
	Value interface{} `json:"Value"`
}

// ParseStkCallback parses a push result payload into the domain callback
func ParseStkCallback(payload []byte) (*mpesa.StkCallbackResult, error) {
	var env stkCallbackEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", mpesa.ErrGatewayInvalidResponse, err)
	}

	cb := env.Body.StkCallback
	if cb.CheckoutRequestID == "" {
		return nil, fmt.Errorf("%w: missing CheckoutRequestID", mpesa.ErrGatewayInvalidResponse)
	}

	result := &mpesa.StkCallbackResult{
		CheckoutID:        cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDescription: cb.ResultDesc,
	}

	for _, item := range cb.CallbackMetadata.Item {
		switch item.Name {
		case "Amount":
			if v, ok := item.Value.(float64); ok {
				result.Amount = decimal.NewFromFloat(v)
			}
		case "MpesaReceiptNumber":
			if v, ok := item.Value.(string); ok {
				result.ProviderReference = v
			}
		case "PhoneNumber":
			result.Phone = itemString(item.Value)
		case "TransactionDate":
			if t, err := time.Parse(darajaTimeLayout, itemString(item.Value)); err == nil {
				result.TransactionDate = t
			}
		}
	}

	if result.TransactionDate.IsZero() {
		result.TransactionDate = time.Now()
	}
	return result, nil
}

// ParseC2BConfirmation parses an inbound paybill deposit payload
func ParseC2BConfirmation(payload []byte) (*mpesa.C2BConfirmation, error) {
	var raw c2bConfirmation
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", mpesa.ErrGatewayInvalidResponse, err)
	}
	if raw.TransID == "" {
		return nil, fmt.Errorf("%w: missing TransID", mpesa.ErrGatewayInvalidResponse)
	}

	amount, err := decimal.NewFromString(raw.TransAmount)
	if err != nil {
		return nil, fmt.Errorf("%w: bad TransAmount %q", mpesa.ErrGatewayInvalidResponse, raw.TransAmount)
	}

	conf := &mpesa.C2BConfirmation{
		ProviderReference: raw.TransID,
		Amount:            amount,
		AccountReference:  strings.TrimSpace(raw.BillRefNumber),
		Phone:             raw.MSISDN,
		PayerName:         joinName(raw.FirstName, raw.MiddleName, raw.LastName),
	}

	if t, err := time.Parse(darajaTimeLayout, raw.TransTime); err == nil {
		conf.TransactionDate = t
	} else {
		conf.TransactionDate = time.Now()
	}
	return conf, nil
}

// ParseB2CResult parses a payout result payload
func ParseB2CResult(payload []byte) (*mpesa.B2CResult, error) {
	var env b2cResultEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", mpesa.ErrGatewayInvalidResponse, err)
	}
	if env.Result.ConversationID == "" {
		return nil, fmt.Errorf("%w: missing ConversationID", mpesa.ErrGatewayInvalidResponse)
	}

	result := &mpesa.B2CResult{
		ConversationID:    env.Result.ConversationID,
		ResultCode:        env.Result.ResultCode,
		ResultDescription: env.Result.ResultDesc,
		ProviderReference: env.Result.TransactionID,
		TransactionDate:   time.Now(),
	}

	for _, param := range env.Result.ResultParameters.ResultParameter {
		switch param.Key {
		case "TransactionReceipt":
			if v, ok := param.Value.(string); ok && v != "" {
				result.ProviderReference = v
			}
		case "TransactionCompletedDateTime":
			if t, err := time.Parse(b2cTimeLayout, itemString(param.Value)); err == nil {
				result.TransactionDate = t
			}
		}
	}
	return result, nil
}

// itemString renders a metadata value that may arrive as string or number
func itemString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return decimal.NewFromFloat(val).String()
	default:
		return ""
	}
}

func joinName(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, " ")
}
