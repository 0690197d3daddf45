package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/storefront/internal/audit/domain"
	"github.com/smallbiznis/storefront/internal/audit/masking"
	"github.com/smallbiznis/storefront/internal/clock"
	"github.com/smallbiznis/storefront/internal/config"
	obslogger "github.com/smallbiznis/storefront/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/storefront/internal/payment/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultClaimTTL = 2 * time.Minute

// minClaimTTL keeps a claim alive while its gateway calls can still be in flight.
const minClaimTTL = 2 * paymentdomain.DefaultRequestTimeout

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Cfg        config.Config
	Repo       paymentdomain.Repository
	Gateway    paymentdomain.Gateway
	AuditSvc   auditdomain.Service `optional:"true"`
	Clock      clock.Clock         `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       paymentdomain.Repository
	gateway    paymentdomain.Gateway
	auditSvc   auditdomain.Service
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics

	method   string
	claimTTL time.Duration
}

func NewService(p Params) paymentdomain.Service {
	method := strings.ToLower(strings.TrimSpace(p.Cfg.Saferpay.Provider))
	if method == "" {
		method = "saferpay"
	}
	claimTTL := p.Cfg.Saferpay.CaptureClaimTTL
	if claimTTL <= 0 {
		claimTTL = defaultClaimTTL
	}
	if claimTTL < minClaimTTL {
		p.Log.Warn("capture claim ttl raised to minimum",
			zap.Duration("configured", claimTTL),
			zap.Duration("minimum", minClaimTTL),
		)
		claimTTL = minClaimTTL
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Service{
		db:         p.DB,
		log:        p.Log.Named("payment.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		gateway:    p.Gateway,
		auditSvc:   p.AuditSvc,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
		method:     method,
		claimTTL:   claimTTL,
	}
}

func (s *Service) HandleSuccess(ctx context.Context, orderNumber string) (out paymentdomain.Outcome) {
	orderNumber = strings.TrimSpace(orderNumber)
	event := s.openEvent(ctx, paymentdomain.EventSourceSuccess, orderNumber)
	defer func() {
		s.closeEvent(ctx, event, string(out.Kind))
	}()

	order, payment, out, ok := s.lookup(ctx, orderNumber)
	if !ok {
		return out
	}
	event.PaymentID = &payment.ID

	out, _ = s.reconcile(ctx, order, payment, event)
	return out
}

func (s *Service) HandleFail(ctx context.Context, orderNumber string) (out paymentdomain.Outcome) {
	orderNumber = strings.TrimSpace(orderNumber)
	event := s.openEvent(ctx, paymentdomain.EventSourceFail, orderNumber)
	defer func() {
		s.closeEvent(ctx, event, string(out.Kind))
	}()
	log := obslogger.WithOrder(ctx, s.log, orderNumber)

	order, err := s.repo.FindOrderByNumber(ctx, s.db, orderNumber)
	if err != nil {
		log.Error("failed to load order", zap.Error(err))
		return s.outcome(paymentdomain.OutcomeError, paymentdomain.MessageUnexpected, orderNumber)
	}
	if order == nil {
		return s.outcome(paymentdomain.OutcomeOrderNotFound, paymentdomain.MessageOrderNotFound, orderNumber)
	}

	payment, err := s.repo.FindLatestPayment(ctx, s.db, order.ID, s.method, nil)
	if err != nil {
		log.Error("failed to load payment", zap.Error(err))
		return s.outcome(paymentdomain.OutcomeError, paymentdomain.MessageUnexpected, orderNumber)
	}
	if payment != nil {
		event.PaymentID = &payment.ID
		if !payment.State.IsTerminal() {
			s.failOpen(ctx, payment.ID)
		}
	}

	return s.outcome(paymentdomain.OutcomeCancelled, paymentdomain.MessageCancelled, orderNumber)
}

func (s *Service) HandleNotify(ctx context.Context, orderNumber string) (status paymentdomain.NotifyStatus) {
	orderNumber = strings.TrimSpace(orderNumber)
	event := s.openEvent(ctx, paymentdomain.EventSourceNotify, orderNumber)
	defer func() {
		s.closeEvent(ctx, event, status.String())
	}()

	order, payment, out, ok := s.lookup(ctx, orderNumber)
	if !ok {
		if out.Kind == paymentdomain.OutcomeError {
			return paymentdomain.NotifyError
		}
		return paymentdomain.NotifyNotFound
	}
	event.PaymentID = &payment.ID

	if _, err := s.reconcile(ctx, order, payment, event); err != nil {
		return paymentdomain.NotifyError
	}
	return paymentdomain.NotifyOK
}

func (s *Service) Initialize(ctx context.Context, orderNumber string, baseURL string) (paymentdomain.InitializeResult, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	order, err := s.repo.FindOrderByNumber(ctx, s.db, orderNumber)
	if err != nil {
		return paymentdomain.InitializeResult{}, err
	}
	if order == nil {
		return paymentdomain.InitializeResult{}, paymentdomain.ErrOrderNotFound
	}
	if order.State != paymentdomain.OrderStatePayment {
		return paymentdomain.InitializeResult{}, paymentdomain.ErrOrderNotPayable
	}

	now := s.clock.Now()
	voided, err := s.repo.VoidOpenPayments(ctx, s.db, order.ID, s.method, now)
	if err != nil {
		return paymentdomain.InitializeResult{}, err
	}
	if voided > 0 {
		obslogger.WithOrder(ctx, s.log, order.Number).Info("voided previous payment attempts", zap.Int64("count", voided))
	}

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	query := "?order_number=" + url.QueryEscape(order.Number)
	amount := order.TotalMinor()

	session, err := s.gateway.InitializeSession(ctx, paymentdomain.InitializeRequest{
		AmountMinor:    amount,
		Currency:       order.Currency,
		OrderReference: order.Number,
		Description:    "Order " + order.Number,
		ReturnURL:      base + "/saferpay/success" + query,
		FailURL:        base + "/saferpay/fail" + query,
		NotifyURL:      base + "/saferpay/notify" + query,
	})
	if err != nil {
		obslogger.WithOrder(ctx, s.log, order.Number).Warn("payment initialization failed", zap.Error(err))
		return paymentdomain.InitializeResult{}, err
	}

	token := session.Token
	payment := paymentdomain.Payment{
		ID:            s.genID.Generate(),
		OrderID:       order.ID,
		PaymentMethod: s.method,
		State:         paymentdomain.PaymentStateCheckout,
		SessionToken:  &token,
		TransactionID: &token,
		Amount:        amount,
		Currency:      order.Currency,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.InsertPayment(ctx, s.db, &payment); err != nil {
		return paymentdomain.InitializeResult{}, err
	}

	return paymentdomain.InitializeResult{
		PaymentID:   payment.ID,
		RedirectURL: session.RedirectURL,
	}, nil
}

func (s *Service) Refund(ctx context.Context, paymentID snowflake.ID, amountMinor *int64) (paymentdomain.Result, error) {
	payment, err := s.repo.FindPaymentByID(ctx, s.db, paymentID)
	if err != nil {
		return paymentdomain.Result{}, err
	}
	if payment == nil {
		return paymentdomain.Result{}, paymentdomain.ErrPaymentNotFound
	}
	if payment.Reference() == "" {
		return paymentdomain.Result{}, paymentdomain.ErrMissingToken
	}

	amount := payment.Amount
	if amountMinor != nil {
		amount = *amountMinor
	}
	if amount <= 0 {
		return paymentdomain.Result{}, paymentdomain.ErrInvalidAmount
	}

	result, err := s.gateway.Refund(ctx, payment.Reference(), amount, payment.Currency)
	if err != nil {
		return paymentdomain.Result{}, err
	}
	if result.Success {
		s.audit(ctx, auditdomain.ActionPaymentRefunded, payment.ID, map[string]any{
			"amount":   amount,
			"currency": payment.Currency,
		})
	}
	return result, nil
}

func (s *Service) Void(ctx context.Context, paymentID snowflake.ID) (paymentdomain.Result, error) {
	payment, err := s.repo.FindPaymentByID(ctx, s.db, paymentID)
	if err != nil {
		return paymentdomain.Result{}, err
	}
	if payment == nil {
		return paymentdomain.Result{}, paymentdomain.ErrPaymentNotFound
	}
	if payment.State.IsTerminal() {
		return paymentdomain.Result{}, paymentdomain.ErrPaymentNotVoidable
	}
	if payment.Reference() == "" {
		return paymentdomain.Result{}, paymentdomain.ErrMissingToken
	}

	result, err := s.gateway.Cancel(ctx, payment.Reference())
	if err != nil {
		return paymentdomain.Result{}, err
	}
	if !result.Success {
		return result, nil
	}

	if _, err := s.repo.TransitionState(ctx, s.db, payment.ID, paymentdomain.OpenPaymentStates, paymentdomain.PaymentStateVoid, s.clock.Now()); err != nil {
		return result, err
	}
	s.audit(ctx, auditdomain.ActionPaymentVoided, payment.ID, map[string]any{
		"previous_state": string(payment.State),
	})
	return result, nil
}

// lookup resolves the order and its latest open payment for a callback.
func (s *Service) lookup(ctx context.Context, orderNumber string) (*paymentdomain.Order, *paymentdomain.Payment, paymentdomain.Outcome, bool) {
	log := obslogger.WithOrder(ctx, s.log, orderNumber)

	order, err := s.repo.FindOrderByNumber(ctx, s.db, orderNumber)
	if err != nil {
		log.Error("failed to load order", zap.Error(err))
		return nil, nil, s.outcome(paymentdomain.OutcomeError, paymentdomain.MessageUnexpected, orderNumber), false
	}
	if order == nil {
		return nil, nil, s.outcome(paymentdomain.OutcomeOrderNotFound, paymentdomain.MessageOrderNotFound, orderNumber), false
	}

	payment, err := s.repo.FindLatestPayment(ctx, s.db, order.ID, s.method, paymentdomain.OpenPaymentStates)
	if err != nil {
		log.Error("failed to load payment", zap.Error(err))
		return nil, nil, s.outcome(paymentdomain.OutcomeError, paymentdomain.MessageUnexpected, orderNumber), false
	}
	if payment == nil {
		return nil, nil, s.outcome(paymentdomain.OutcomePaymentNotFound, paymentdomain.MessagePaymentNotFound, orderNumber), false
	}
	if payment.Token() == "" {
		return nil, nil, s.outcome(paymentdomain.OutcomePaymentNotFound, paymentdomain.MessageTokenNotFound, orderNumber), false
	}

	return order, payment, paymentdomain.Outcome{}, true
}

// reconcile asserts the transaction and drives payment and order to their final states.
// A non-nil error means the gateway or the store failed and the processor should retry.
func (s *Service) reconcile(ctx context.Context, order *paymentdomain.Order, payment *paymentdomain.Payment, event *paymentdomain.EventRecord) (out paymentdomain.Outcome, err error) {
	log := obslogger.WithOrder(ctx, s.log, order.Number).With(zap.String("payment_id", payment.ID.String()))
	claimed := false

	defer func() {
		if r := recover(); r != nil {
			log.Error("payment reconciliation panicked", zap.Any("panic", r), zap.Stack("stack"))
			s.abandon(ctx, payment.ID, claimed)
			out = s.outcome(paymentdomain.OutcomeError, paymentdomain.MessageUnexpected, order.Number)
			err = fmt.Errorf("payment reconciliation panicked: %v", r)
		}
	}()

	txn, err := s.gateway.AssertTransaction(ctx, payment.Token())
	if err != nil {
		log.Warn("payment assert failed", zap.Error(err))
		s.failOpen(ctx, payment.ID)
		return s.outcome(paymentdomain.OutcomeFailed, "Payment verification failed: "+paymentdomain.GatewayMessage(err), order.Number), err
	}

	txID := txn.ID
	status := string(txn.Status)
	event.TransactionID = &txID
	event.Status = &status

	if txID != "" {
		if err := s.repo.UpdateTransactionID(ctx, s.db, payment.ID, txID, s.clock.Now()); err != nil {
			return s.unexpected(ctx, log, order, payment.ID, claimed, err)
		}
	}

	switch txn.Status {
	case paymentdomain.TransactionStatusAuthorized:
		now := s.clock.Now()
		won, err := s.repo.ClaimCapture(ctx, s.db, payment.ID, now, now.Add(-s.claimTTL))
		if err != nil {
			return s.unexpected(ctx, log, order, payment.ID, claimed, err)
		}
		if !won {
			return s.afterLostTransition(ctx, log, order, payment)
		}
		claimed = true

		result, err := s.gateway.CaptureTransaction(ctx, txID)
		if err == nil && !result.Success {
			err = errors.New(result.Message)
		}
		if err != nil {
			log.Warn("payment capture failed", zap.Error(err))
			s.obsMetrics.RecordPaymentCapture(ctx, "failed")
			if _, terr := s.repo.TransitionState(ctx, s.db, payment.ID, []paymentdomain.PaymentState{paymentdomain.PaymentStateProcessing}, paymentdomain.PaymentStateFailed, s.clock.Now()); terr != nil {
				log.Error("failed to mark payment failed", zap.Error(terr))
			}
			return s.outcome(paymentdomain.OutcomeFailed, paymentdomain.MessageCaptureFailed, order.Number), err
		}
		s.obsMetrics.RecordPaymentCapture(ctx, "captured")

		moved, err := s.complete(ctx, order, payment.ID, []paymentdomain.PaymentState{paymentdomain.PaymentStateProcessing}, result.AuthorizationReference)
		if err != nil {
			return s.unexpected(ctx, log, order, payment.ID, claimed, err)
		}
		if !moved {
			return s.afterLostTransition(ctx, log, order, payment)
		}

	case paymentdomain.TransactionStatusCaptured:
		moved, err := s.complete(ctx, order, payment.ID, paymentdomain.OpenPaymentStates, "")
		if err != nil {
			return s.unexpected(ctx, log, order, payment.ID, claimed, err)
		}
		if !moved {
			return s.afterLostTransition(ctx, log, order, payment)
		}

	case paymentdomain.TransactionStatusPending:
		if _, err := s.repo.TransitionState(ctx, s.db, payment.ID, []paymentdomain.PaymentState{paymentdomain.PaymentStateCheckout}, paymentdomain.PaymentStatePending, s.clock.Now()); err != nil {
			return s.unexpected(ctx, log, order, payment.ID, claimed, err)
		}
		return s.outcome(paymentdomain.OutcomePending, paymentdomain.MessagePending, order.Number), nil

	default:
		log.Warn("unexpected transaction status", zap.String("status", status))
		s.failOpen(ctx, payment.ID)
		return s.outcome(paymentdomain.OutcomeFailed, fmt.Sprintf("Payment was not authorized (status %s).", status), order.Number), nil
	}

	return s.finish(ctx, log, order, payment, txn)
}

// afterLostTransition handles a callback that lost the race to move the payment.
func (s *Service) afterLostTransition(ctx context.Context, log *zap.Logger, order *paymentdomain.Order, payment *paymentdomain.Payment) (paymentdomain.Outcome, error) {
	current, err := s.repo.FindPaymentByID(ctx, s.db, payment.ID)
	if err != nil {
		return s.unexpected(ctx, log, order, payment.ID, false, err)
	}
	if current == nil {
		return s.outcome(paymentdomain.OutcomePaymentNotFound, paymentdomain.MessagePaymentNotFound, order.Number), nil
	}

	switch current.State {
	case paymentdomain.PaymentStateCompleted:
		return s.finish(ctx, log, order, current, nil)
	case paymentdomain.PaymentStateProcessing:
		return s.outcome(paymentdomain.OutcomePending, paymentdomain.MessagePending, order.Number), nil
	default:
		return s.outcome(paymentdomain.OutcomeFailed, paymentdomain.MessageCancelled, order.Number), nil
	}
}

// complete moves the payment to completed and records the capture when this call won the transition.
func (s *Service) complete(ctx context.Context, order *paymentdomain.Order, paymentID snowflake.ID, from []paymentdomain.PaymentState, captureRef string) (bool, error) {
	moved := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now()
		ok, err := s.repo.TransitionState(ctx, tx, paymentID, from, paymentdomain.PaymentStateCompleted, now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		moved = true

		var ref *string
		if captureRef != "" {
			ref = &captureRef
		}
		return s.repo.InsertCaptureEvent(ctx, tx, &paymentdomain.CaptureEvent{
			ID:        s.genID.Generate(),
			PaymentID: paymentID,
			Amount:    order.Total,
			CaptureID: ref,
			CreatedAt: now,
		})
	})
	if err != nil {
		return false, err
	}
	return moved, nil
}

func (s *Service) finish(ctx context.Context, log *zap.Logger, order *paymentdomain.Order, payment *paymentdomain.Payment, txn *paymentdomain.Transaction) (paymentdomain.Outcome, error) {
	completed, err := s.repo.CompleteOrder(ctx, s.db, order.ID, s.clock.Now())
	if err != nil {
		log.Error("failed to complete order", zap.Error(err))
		return s.outcome(paymentdomain.OutcomeError, paymentdomain.MessageUnexpected, order.Number), err
	}
	if completed {
		log.Info("order completed")
	}
	if txn != nil {
		s.recordPaymentMeans(ctx, payment, txn)
	}
	return s.outcome(paymentdomain.OutcomeSuccess, paymentdomain.MessageSuccess, order.Number), nil
}

func (s *Service) unexpected(ctx context.Context, log *zap.Logger, order *paymentdomain.Order, paymentID snowflake.ID, claimed bool, err error) (paymentdomain.Outcome, error) {
	log.Error("payment reconciliation failed", zap.Error(err))
	s.abandon(ctx, paymentID, claimed)
	return s.outcome(paymentdomain.OutcomeError, paymentdomain.MessageUnexpected, order.Number), err
}

// abandon fails a payment after an unexpected error, including the processing claim this call holds.
func (s *Service) abandon(ctx context.Context, paymentID snowflake.ID, claimed bool) {
	if !claimed {
		s.failOpen(ctx, paymentID)
		return
	}
	if _, err := s.repo.TransitionState(ctx, s.db, paymentID, []paymentdomain.PaymentState{paymentdomain.PaymentStateProcessing}, paymentdomain.PaymentStateFailed, s.clock.Now()); err != nil {
		s.log.Error("failed to mark payment failed", zap.String("payment_id", paymentID.String()), zap.Error(err))
	}
}

func (s *Service) failOpen(ctx context.Context, paymentID snowflake.ID) {
	now := s.clock.Now()
	if _, err := s.repo.FailOpen(ctx, s.db, paymentID, now, now.Add(-s.claimTTL)); err != nil {
		s.log.Error("failed to mark payment failed", zap.String("payment_id", paymentID.String()), zap.Error(err))
	}
}

func (s *Service) recordPaymentMeans(ctx context.Context, payment *paymentdomain.Payment, txn *paymentdomain.Transaction) {
	if txn.PaymentMeans == nil {
		return
	}
	means := txn.PaymentMeans
	metadata := map[string]any{
		"transaction_id": txn.ID,
		"brand":          means.Brand,
		"payment_method": means.PaymentMethod,
		"display_text":   means.DisplayText,
	}
	if card := means.Card; card != nil {
		metadata["card_number"] = masking.MaskCardNumber(card.MaskedNumber)
		metadata["card_holder"] = card.HolderName
		if card.ExpMonth > 0 && card.ExpYear > 0 {
			metadata["card_expiry"] = fmt.Sprintf("%02d/%d", card.ExpMonth, card.ExpYear)
		}
	}
	s.audit(ctx, auditdomain.ActionPaymentMeansRecorded, payment.ID, metadata)
}

func (s *Service) audit(ctx context.Context, action string, paymentID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	targetID := paymentID.String()
	if err := s.auditSvc.AuditLog(ctx, action, auditdomain.TargetTypePayment, &targetID, metadata); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) openEvent(ctx context.Context, source string, orderNumber string) *paymentdomain.EventRecord {
	event := &paymentdomain.EventRecord{
		ID:          s.genID.Generate(),
		OrderNumber: orderNumber,
		Source:      source,
		ReceivedAt:  s.clock.Now(),
	}
	if err := s.repo.InsertEvent(ctx, s.db, event); err != nil {
		s.log.Warn("failed to record payment event", zap.String("source", source), zap.Error(err))
		event.ID = 0
	}
	return event
}

func (s *Service) closeEvent(ctx context.Context, event *paymentdomain.EventRecord, outcome string) {
	s.obsMetrics.RecordPaymentCallback(ctx, event.Source, outcome)
	if event.ID == 0 {
		return
	}
	processedAt := s.clock.Now()
	event.Outcome = &outcome
	event.ProcessedAt = &processedAt
	if err := s.repo.MarkProcessed(ctx, s.db, event); err != nil {
		s.log.Warn("failed to mark payment event processed", zap.Error(err))
	}
}

func (s *Service) outcome(kind paymentdomain.OutcomeKind, message string, orderNumber string) paymentdomain.Outcome {
	return paymentdomain.Outcome{
		Kind:        kind,
		Message:     message,
		OrderNumber: orderNumber,
	}
}
