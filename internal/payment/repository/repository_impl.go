package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/payment/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindOrderByNumber(ctx context.Context, db *gorm.DB, number string) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, number, state, total, currency, email, completed_at, created_at, updated_at
		 FROM orders
		 WHERE number = ?
		 LIMIT 1`,
		number,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindOrderByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Order, error) {
	var item domain.Order
	err := db.WithContext(ctx).Raw(
		`SELECT id, number, state, total, currency, email, completed_at, created_at, updated_at
		 FROM orders
		 WHERE id = ?
		 LIMIT 1`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) CompleteOrder(ctx context.Context, db *gorm.DB, orderID snowflake.ID, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders
		 SET state = ?, completed_at = ?, updated_at = ?
		 WHERE id = ? AND state <> ?`,
		domain.OrderStateComplete,
		now,
		now,
		orderID,
		domain.OrderStateComplete,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FindLatestPayment(ctx context.Context, db *gorm.DB, orderID snowflake.ID, method string, states []domain.PaymentState) (*domain.Payment, error) {
	var item domain.Payment
	stmt := db.WithContext(ctx).Model(&domain.Payment{}).
		Where("order_id = ? AND payment_method = ?", orderID, method)
	if len(states) > 0 {
		stmt = stmt.Where("state IN ?", states)
	}
	err := stmt.Order("created_at desc, id desc").Limit(1).Find(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindPaymentByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	var item domain.Payment
	err := db.WithContext(ctx).Raw(
		`SELECT id, order_id, payment_method, state, token, transaction_id, amount, currency, created_at, updated_at
		 FROM payments
		 WHERE id = ?`,
		id,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) InsertPayment(ctx context.Context, db *gorm.DB, payment *domain.Payment) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, order_id, payment_method, state, token, transaction_id, amount, currency, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID,
		payment.OrderID,
		payment.PaymentMethod,
		payment.State,
		payment.SessionToken,
		payment.TransactionID,
		payment.Amount,
		payment.Currency,
		payment.CreatedAt,
		payment.UpdatedAt,
	).Error
}

func (r *repo) VoidOpenPayments(ctx context.Context, db *gorm.DB, orderID snowflake.ID, method string, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET state = ?, updated_at = ?
		 WHERE order_id = ? AND payment_method = ? AND state IN (?, ?)`,
		domain.PaymentStateVoid,
		now,
		orderID,
		method,
		domain.PaymentStateCheckout,
		domain.PaymentStatePending,
	)
	return res.RowsAffected, res.Error
}

func (r *repo) UpdateTransactionID(ctx context.Context, db *gorm.DB, id snowflake.ID, transactionID string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET transaction_id = ?, updated_at = ?
		 WHERE id = ?`,
		transactionID,
		now,
		id,
	).Error
}

func (r *repo) TransitionState(ctx context.Context, db *gorm.DB, id snowflake.ID, from []domain.PaymentState, to domain.PaymentState, now time.Time) (bool, error) {
	if len(from) == 0 {
		return false, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET state = ?, updated_at = ?
		 WHERE id = ? AND state IN ?`,
		to,
		now,
		id,
		from,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) FailOpen(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET state = ?, updated_at = ?
		 WHERE id = ?
		   AND (state IN (?, ?) OR (state = ? AND updated_at < ?))`,
		domain.PaymentStateFailed,
		now,
		id,
		domain.PaymentStateCheckout,
		domain.PaymentStatePending,
		domain.PaymentStateProcessing,
		staleBefore,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ClaimCapture(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time, staleBefore time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE payments
		 SET state = ?, updated_at = ?
		 WHERE id = ?
		   AND (state IN (?, ?) OR (state = ? AND updated_at < ?))`,
		domain.PaymentStateProcessing,
		now,
		id,
		domain.PaymentStateCheckout,
		domain.PaymentStatePending,
		domain.PaymentStateProcessing,
		staleBefore,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) InsertCaptureEvent(ctx context.Context, db *gorm.DB, event *domain.CaptureEvent) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_capture_events (id, payment_id, amount, capture_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		event.ID,
		event.PaymentID,
		event.Amount,
		event.CaptureID,
		event.CreatedAt,
	).Error
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.EventRecord) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO payment_events (
			id, payment_id, order_number, source, transaction_id, status, outcome, received_at, processed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.PaymentID,
		event.OrderNumber,
		event.Source,
		event.TransactionID,
		event.Status,
		event.Outcome,
		event.ReceivedAt,
		event.ProcessedAt,
	).Error
}

func (r *repo) MarkProcessed(ctx context.Context, db *gorm.DB, event *domain.EventRecord) error {
	return db.WithContext(ctx).Exec(
		`UPDATE payment_events
		 SET payment_id = ?, transaction_id = ?, status = ?, outcome = ?, processed_at = ?
		 WHERE id = ?`,
		event.PaymentID,
		event.TransactionID,
		event.Status,
		event.Outcome,
		event.ProcessedAt,
		event.ID,
	).Error
}
