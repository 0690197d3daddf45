package service

import (
	"context"

	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	waitlistdomain "github.com/smallbiznis/storefront/internal/waitlist/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ObserverParams struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Repo     waitlistdomain.Repository
	Enqueuer waitlistdomain.FanoutEnqueuer
}

// RestockObserver schedules a fan-out when a variant with pending entries comes back in stock.
type RestockObserver struct {
	db       *gorm.DB
	log      *zap.Logger
	repo     waitlistdomain.Repository
	enqueuer waitlistdomain.FanoutEnqueuer
}

func NewRestockObserver(p ObserverParams) *RestockObserver {
	return &RestockObserver{
		db:       p.DB,
		log:      p.Log.Named("waitlist.observer"),
		repo:     p.Repo,
		enqueuer: p.Enqueuer,
	}
}

func (o *RestockObserver) OnRestock(ctx context.Context, event inventorydomain.RestockEvent) {
	if !inventorydomain.IsRestock(event.Previous, event.Current) {
		return
	}
	log := o.log.With(zap.String("variant_id", event.VariantID.String()))

	pending, err := o.repo.CountPendingByVariant(ctx, o.db, event.VariantID)
	if err != nil {
		log.Warn("failed to count pending waitlist entries", zap.Error(err))
		return
	}
	if pending == 0 {
		return
	}

	if err := o.enqueuer.EnqueueFanout(ctx, event.VariantID); err != nil {
		log.Error("failed to enqueue restock fan-out", zap.Int64("pending", pending), zap.Error(err))
		return
	}
	log.Info("restock fan-out enqueued", zap.Int64("pending", pending))
}
