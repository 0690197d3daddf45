package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type TransactionStatus string

const (
	TransactionStatusAuthorized TransactionStatus = "AUTHORIZED"
	TransactionStatusCaptured   TransactionStatus = "CAPTURED"
	TransactionStatusPending    TransactionStatus = "PENDING"
)

type InitializeRequest struct {
	AmountMinor    int64
	Currency       string
	OrderReference string
	Description    string
	ReturnURL      string
	FailURL        string
	NotifyURL      string
}

type Session struct {
	Token       string
	RedirectURL string
	Expiration  string
}

type Card struct {
	MaskedNumber string
	HolderName   string
	ExpMonth     int
	ExpYear      int
}

type PaymentMeans struct {
	Brand         string
	PaymentMethod string
	DisplayText   string
	Card          *Card
}

type Transaction struct {
	ID           string
	Status       TransactionStatus
	AmountMinor  int64
	Currency     string
	PaymentMeans *PaymentMeans
}

// Result is the outcome of a capture, cancel or refund call.
type Result struct {
	Success                bool
	Message                string
	RawDetail              map[string]any
	AuthorizationReference string
}

// Gateway is the redirect payment processor used by checkout and reconciliation.
type Gateway interface {
	InitializeSession(ctx context.Context, req InitializeRequest) (*Session, error)
	AssertTransaction(ctx context.Context, token string) (*Transaction, error)
	CaptureTransaction(ctx context.Context, transactionID string) (Result, error)
	Cancel(ctx context.Context, transactionID string) (Result, error)
	Refund(ctx context.Context, transactionID string, amountMinor int64, currency string) (Result, error)
}

type GatewayConfig struct {
	CustomerID  string
	TerminalID  string
	APIUsername string
	APIPassword string
	TestMode    bool
	BaseURL     string
	HTTPClient  *http.Client
}

type GatewayFactory interface {
	Provider() string
	NewGateway(cfg GatewayConfig) (Gateway, error)
}

// GatewayTransportError wraps network and timeout failures.
type GatewayTransportError struct {
	Op    string
	Cause error
}

func (e *GatewayTransportError) Error() string {
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Cause)
}

func (e *GatewayTransportError) Unwrap() error { return e.Cause }

// GatewayProtocolError is a non-2xx or unparsable processor response.
type GatewayProtocolError struct {
	Code       string
	Message    string
	HTTPStatus int
	Body       map[string]any
}

func (e *GatewayProtocolError) Error() string {
	return fmt.Sprintf("gateway error: %s - %s", e.Code, e.Message)
}

const (
	DefaultConnectTimeout = 15 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// GatewayMessage returns the processor's own message when err carries one.
func GatewayMessage(err error) string {
	var perr *GatewayProtocolError
	if errors.As(err, &perr) && perr.Message != "" {
		return perr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
