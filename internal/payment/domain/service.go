package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type OutcomeKind string

const (
	OutcomeSuccess         OutcomeKind = "success"
	OutcomeOrderNotFound   OutcomeKind = "order_not_found"
	OutcomePaymentNotFound OutcomeKind = "payment_not_found"
	OutcomeFailed          OutcomeKind = "failed"
	OutcomePending         OutcomeKind = "pending"
	OutcomeError           OutcomeKind = "error"
	OutcomeCancelled       OutcomeKind = "cancelled"
)

const (
	MessageSuccess         = "Payment successful! Your order has been placed."
	MessageOrderNotFound   = "Order not found"
	MessagePaymentNotFound = "Payment not found"
	MessageTokenNotFound   = "Saferpay token not found"
	MessageCaptureFailed   = "Payment capture failed. Please try again."
	MessagePending         = "Your payment is being processed."
	MessageUnexpected      = "An unexpected error occurred. Please try again."
	MessageCancelled       = "Payment was cancelled or failed. Please try again."
	MessageInitFailed      = "An error occurred while initializing payment. Please try again."
)

// Outcome tells the HTTP layer where to send the customer and what to flash.
type Outcome struct {
	Kind        OutcomeKind
	Message     string
	OrderNumber string
}

type NotifyStatus int

const (
	NotifyOK NotifyStatus = iota
	NotifyNotFound
	NotifyError
)

func (s NotifyStatus) String() string {
	switch s {
	case NotifyOK:
		return "ok"
	case NotifyNotFound:
		return "not_found"
	default:
		return "error"
	}
}

type InitializeResult struct {
	PaymentID   snowflake.ID
	RedirectURL string
}

type Service interface {
	HandleSuccess(ctx context.Context, orderNumber string) Outcome
	HandleFail(ctx context.Context, orderNumber string) Outcome
	HandleNotify(ctx context.Context, orderNumber string) NotifyStatus
	Initialize(ctx context.Context, orderNumber string, baseURL string) (InitializeResult, error)
	Refund(ctx context.Context, paymentID snowflake.ID, amountMinor *int64) (Result, error)
	Void(ctx context.Context, paymentID snowflake.ID) (Result, error)
}

type Repository interface {
	FindOrderByNumber(ctx context.Context, db *gorm.DB, number string) (*Order, error)
	FindOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Order, error)
	CompleteOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, now time.Time) (bool, error)

	FindLatestPayment(ctx context.Context, db *gorm.DB, orderID snowflake.ID, method string, states []PaymentState) (*Payment, error)
	FindPaymentByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	InsertPayment(ctx context.Context, db *gorm.DB, payment *Payment) error
	VoidOpenPayments(ctx context.Context, db *gorm.DB, orderID snowflake.ID, method string, now time.Time) (int64, error)
	UpdateTransactionID(ctx context.Context, db *gorm.DB, id snowflake.ID, transactionID string, now time.Time) error
	// TransitionState moves a payment to `to` only when its current state is one of `from`.
	TransitionState(ctx context.Context, db *gorm.DB, id snowflake.ID, from []PaymentState, to PaymentState, now time.Time) (bool, error)
	// FailOpen fails a checkout or pending payment, or a processing one whose claim went stale.
	FailOpen(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time, staleBefore time.Time) (bool, error)
	// ClaimCapture moves a payment into processing, taking over claims last touched before staleBefore.
	ClaimCapture(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time, staleBefore time.Time) (bool, error)
	InsertCaptureEvent(ctx context.Context, db *gorm.DB, event *CaptureEvent) error

	InsertEvent(ctx context.Context, db *gorm.DB, event *EventRecord) error
	MarkProcessed(ctx context.Context, db *gorm.DB, event *EventRecord) error
}
