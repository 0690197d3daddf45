package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	catalogdomain "github.com/smallbiznis/storefront/internal/catalog/domain"
	waitlistdomain "github.com/smallbiznis/storefront/internal/waitlist/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type HandlerParams struct {
	fx.In

	Log      *zap.Logger
	Waitlist waitlistdomain.Service
}

type Handlers struct {
	log      *zap.Logger
	waitlist waitlistdomain.Service
}

func NewHandlers(p HandlerParams) *Handlers {
	return &Handlers{
		log:      p.Log.Named("queue.worker"),
		waitlist: p.Waitlist,
	}
}

func (h *Handlers) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeWaitlistFanout, h.HandleFanout)
	mux.HandleFunc(TypeWaitlistRestockEmail, h.HandleRestockEmail)
}

func (h *Handlers) HandleFanout(ctx context.Context, task *asynq.Task) error {
	var payload FanoutPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode fanout payload: %v: %w", err, asynq.SkipRetry)
	}

	marked, err := h.waitlist.Fanout(ctx, payload.VariantID)
	if err != nil {
		retry, _ := asynq.GetRetryCount(ctx)
		h.log.Warn("waitlist fan-out failed",
			zap.String("variant_id", payload.VariantID.String()),
			zap.Int("retry", retry),
			zap.Error(err),
		)
		return err
	}
	h.log.Info("waitlist fan-out done", zap.String("variant_id", payload.VariantID.String()), zap.Int("notified", marked))
	return nil
}

func (h *Handlers) HandleRestockEmail(ctx context.Context, task *asynq.Task) error {
	var payload RestockEmailPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode restock email payload: %v: %w", err, asynq.SkipRetry)
	}

	err := h.waitlist.DeliverRestockEmail(ctx, payload.EntryID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, waitlistdomain.ErrEntryNotFound),
		errors.Is(err, catalogdomain.ErrVariantNotFound),
		errors.Is(err, catalogdomain.ErrProductNotFound):
		h.log.Warn("dropping restock email", zap.String("entry_id", payload.EntryID.String()), zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	default:
		return err
	}
}
