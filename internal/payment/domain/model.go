package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type OrderState string

const (
	OrderStateCart     OrderState = "cart"
	OrderStateAddress  OrderState = "address"
	OrderStateDelivery OrderState = "delivery"
	OrderStatePayment  OrderState = "payment"
	OrderStateConfirm  OrderState = "confirm"
	OrderStateComplete OrderState = "complete"
)

type Order struct {
	ID          snowflake.ID    `json:"id" gorm:"primaryKey"`
	Number      string          `json:"number"`
	State       OrderState      `json:"state"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
	Email       string          `json:"email"`
	CompletedAt *time.Time      `json:"completed_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// TotalMinor converts the order total to minor currency units.
func (o Order) TotalMinor() int64 {
	return o.Total.Shift(2).Round(0).IntPart()
}

type PaymentState string

const (
	PaymentStateCheckout   PaymentState = "checkout"
	PaymentStatePending    PaymentState = "pending"
	PaymentStateProcessing PaymentState = "processing"
	PaymentStateCompleted  PaymentState = "completed"
	PaymentStateFailed     PaymentState = "failed"
	PaymentStateVoid       PaymentState = "void"
)

// OpenPaymentStates are the states a callback may still act on.
var OpenPaymentStates = []PaymentState{
	PaymentStateCheckout,
	PaymentStatePending,
	PaymentStateProcessing,
}

func (s PaymentState) IsTerminal() bool {
	switch s {
	case PaymentStateCompleted, PaymentStateFailed, PaymentStateVoid:
		return true
	default:
		return false
	}
}

type Payment struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	OrderID       snowflake.ID `json:"order_id"`
	PaymentMethod string       `json:"payment_method"`
	State         PaymentState `json:"state"`
	SessionToken  *string      `json:"-" gorm:"column:token"`
	TransactionID *string      `json:"transaction_id"`
	Amount        int64        `json:"amount"`
	Currency      string       `json:"currency"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

// Token is the session token used to assert the transaction. Rows created
// before the token column existed only carry it in TransactionID.
func (p Payment) Token() string {
	if p.SessionToken != nil && *p.SessionToken != "" {
		return *p.SessionToken
	}
	if p.TransactionID == nil {
		return ""
	}
	return *p.TransactionID
}

// Reference is the processor transaction id used for capture, cancel and refund.
func (p Payment) Reference() string {
	if p.TransactionID == nil {
		return ""
	}
	return *p.TransactionID
}

type CaptureEvent struct {
	ID        snowflake.ID    `json:"id" gorm:"primaryKey"`
	PaymentID snowflake.ID    `json:"payment_id"`
	Amount    decimal.Decimal `json:"amount"`
	CaptureID *string         `json:"capture_id"`
	CreatedAt time.Time       `json:"created_at"`
}

func (CaptureEvent) TableName() string { return "payment_capture_events" }

const (
	EventSourceSuccess = "success"
	EventSourceFail    = "fail"
	EventSourceNotify  = "notify"
)

// EventRecord is one callback delivery in the payment event ledger.
type EventRecord struct {
	ID            snowflake.ID  `json:"id" gorm:"primaryKey"`
	PaymentID     *snowflake.ID `json:"payment_id"`
	OrderNumber   string        `json:"order_number"`
	Source        string        `json:"source"`
	TransactionID *string       `json:"transaction_id"`
	Status        *string       `json:"status"`
	Outcome       *string       `json:"outcome"`
	ReceivedAt    time.Time     `json:"received_at"`
	ProcessedAt   *time.Time    `json:"processed_at"`
}

func (EventRecord) TableName() string { return "payment_events" }
