package saferpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
)

const (
	ProviderName = "saferpay"
	SpecVersion  = "1.20"

	TestBaseURL       = "https://test.saferpay.com/api"
	ProductionBaseURL = "https://www.saferpay.com/api"

	pathInitialize = "/Payment/v1/PaymentPage/Initialize"
	pathAssert     = "/Payment/v1/PaymentPage/Assert"
	pathCapture    = "/Payment/v1/Transaction/Capture"
	pathCancel     = "/Payment/v1/Transaction/Cancel"
	pathRefund     = "/Payment/v1/Transaction/Refund"

	defaultCurrency = "EUR"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return ProviderName
}

func (f *Factory) NewGateway(cfg paymentdomain.GatewayConfig) (paymentdomain.Gateway, error) {
	if strings.TrimSpace(cfg.CustomerID) == "" || strings.TrimSpace(cfg.TerminalID) == "" {
		return nil, paymentdomain.ErrInvalidConfig
	}
	return New(cfg), nil
}

// Client talks to the Saferpay JSON API. Calls are never retried.
type Client struct {
	customerID string
	terminalID string
	username   string
	password   string
	baseURL    string
	httpClient *http.Client
}

func New(cfg paymentdomain.GatewayConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = ProductionBaseURL
		if cfg.TestMode {
			baseURL = TestBaseURL
		}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient()
	}
	return &Client{
		customerID: strings.TrimSpace(cfg.CustomerID),
		terminalID: strings.TrimSpace(cfg.TerminalID),
		username:   cfg.APIUsername,
		password:   cfg.APIPassword,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

func newHTTPClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: paymentdomain.DefaultConnectTimeout}).DialContext
	transport.TLSHandshakeTimeout = paymentdomain.DefaultConnectTimeout
	return &http.Client{
		Transport: transport,
		Timeout:   paymentdomain.DefaultRequestTimeout,
	}
}

func (c *Client) InitializeSession(ctx context.Context, req paymentdomain.InitializeRequest) (*paymentdomain.Session, error) {
	body := initializeRequest{
		RequestHeader: c.requestHeader(),
		TerminalID:    c.terminalID,
		Payment: paymentBody{
			Amount: amount{
				Value:        strconv.FormatInt(req.AmountMinor, 10),
				CurrencyCode: currencyOrDefault(req.Currency),
			},
			OrderID:     req.OrderReference,
			Description: req.Description,
		},
		ReturnURLs: returnURLs{
			Success: req.ReturnURL,
			Fail:    req.FailURL,
			Abort:   req.FailURL,
		},
	}
	if strings.TrimSpace(req.NotifyURL) != "" {
		body.Notification = &notification{NotifyURL: req.NotifyURL}
	}

	var resp initializeResponse
	if err := c.post(ctx, pathInitialize, body, &resp); err != nil {
		return nil, err
	}
	if strings.TrimSpace(resp.Token) == "" || strings.TrimSpace(resp.RedirectURL) == "" {
		return nil, &paymentdomain.GatewayProtocolError{
			Code:       "INVALID_RESPONSE",
			Message:    fmt.Sprintf("missing token or redirect url from %s", pathInitialize),
			HTTPStatus: http.StatusOK,
		}
	}
	return &paymentdomain.Session{
		Token:       resp.Token,
		RedirectURL: resp.RedirectURL,
		Expiration:  resp.Expiration,
	}, nil
}

func (c *Client) AssertTransaction(ctx context.Context, token string) (*paymentdomain.Transaction, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, paymentdomain.ErrMissingToken
	}

	var resp assertResponse
	if err := c.post(ctx, pathAssert, assertRequest{
		RequestHeader: c.requestHeader(),
		Token:         token,
	}, &resp); err != nil {
		return nil, err
	}

	txn := &paymentdomain.Transaction{
		ID:       resp.Transaction.ID,
		Status:   paymentdomain.TransactionStatus(strings.ToUpper(strings.TrimSpace(resp.Transaction.Status))),
		Currency: resp.Transaction.Amount.CurrencyCode,
	}
	if value, err := strconv.ParseInt(strings.TrimSpace(resp.Transaction.Amount.Value), 10, 64); err == nil {
		txn.AmountMinor = value
	}
	if resp.PaymentMeans != nil {
		txn.PaymentMeans = resp.PaymentMeans.toDomain()
	}
	return txn, nil
}

func (c *Client) CaptureTransaction(ctx context.Context, transactionID string) (paymentdomain.Result, error) {
	var raw map[string]any
	err := c.post(ctx, pathCapture, transactionRequest{
		RequestHeader:        c.requestHeader(),
		TransactionReference: transactionReference{TransactionID: transactionID},
	}, &raw)
	if err != nil {
		return failedResult(err), err
	}
	return paymentdomain.Result{
		Success:                true,
		Message:                "Payment captured successfully",
		RawDetail:              raw,
		AuthorizationReference: firstNonEmpty(stringField(raw, "CaptureId"), transactionID),
	}, nil
}

func (c *Client) Cancel(ctx context.Context, transactionID string) (paymentdomain.Result, error) {
	var raw map[string]any
	err := c.post(ctx, pathCancel, transactionRequest{
		RequestHeader:        c.requestHeader(),
		TransactionReference: transactionReference{TransactionID: transactionID},
	}, &raw)
	if err != nil {
		return failedResult(err), err
	}
	return paymentdomain.Result{
		Success:                true,
		Message:                "Payment cancelled successfully",
		RawDetail:              raw,
		AuthorizationReference: transactionID,
	}, nil
}

func (c *Client) Refund(ctx context.Context, transactionID string, amountMinor int64, currency string) (paymentdomain.Result, error) {
	var raw map[string]any
	err := c.post(ctx, pathRefund, refundRequest{
		RequestHeader: c.requestHeader(),
		Refund: refundBody{Amount: amount{
			Value:        strconv.FormatInt(amountMinor, 10),
			CurrencyCode: currencyOrDefault(currency),
		}},
		CaptureReference: transactionReference{TransactionID: transactionID},
	}, &raw)
	if err != nil {
		return failedResult(err), err
	}

	reference := transactionID
	if txn, ok := raw["Transaction"].(map[string]any); ok {
		reference = firstNonEmpty(stringField(txn, "Id"), transactionID)
	}
	return paymentdomain.Result{
		Success:                true,
		Message:                "Refund processed successfully",
		RawDetail:              raw,
		AuthorizationReference: reference,
	}, nil
}

func (c *Client) requestHeader() requestHeader {
	return requestHeader{
		SpecVersion:    SpecVersion,
		CustomerID:     c.customerID,
		RequestID:      uuid.NewString(),
		RetryIndicator: 0,
	}
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &paymentdomain.GatewayTransportError{Op: path, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &paymentdomain.GatewayTransportError{Op: path, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return protocolError(resp.StatusCode, raw)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &paymentdomain.GatewayProtocolError{
			Code:       "INVALID_RESPONSE",
			Message:    fmt.Sprintf("malformed response from %s", path),
			HTTPStatus: resp.StatusCode,
		}
	}
	return nil
}

func protocolError(status int, raw []byte) error {
	perr := &paymentdomain.GatewayProtocolError{
		Code:       "UNKNOWN_ERROR",
		Message:    "Unknown error",
		HTTPStatus: status,
	}
	var body map[string]any
	if err := json.Unmarshal(raw, &body); err == nil {
		perr.Body = body
		if name := stringField(body, "ErrorName"); name != "" {
			perr.Code = name
		}
		if msg := stringField(body, "ErrorMessage"); msg != "" {
			perr.Message = msg
		}
	}
	return perr
}

func failedResult(err error) paymentdomain.Result {
	message := err.Error()
	var perr *paymentdomain.GatewayProtocolError
	if errors.As(err, &perr) {
		message = perr.Message
	}
	return paymentdomain.Result{Success: false, Message: message}
}

func currencyOrDefault(currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return defaultCurrency
	}
	return currency
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	value, ok := m[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
