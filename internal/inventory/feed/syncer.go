package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/storefront/internal/config"
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	Suppliers *config.SupplierConfigHolder
	Inventory inventorydomain.Service
	Sources   SourceFactory `optional:"true"`
}

// Syncer downloads, parses and applies one supplier's stock file.
type Syncer struct {
	log       *zap.Logger
	suppliers *config.SupplierConfigHolder
	inventory inventorydomain.Service
	sources   SourceFactory
}

func NewSyncer(p Params) *Syncer {
	sources := p.Sources
	if sources == nil {
		sources = NewFTPSourceFactory(p.Log)
	}
	return &Syncer{
		log:       p.Log.Named("feed.syncer"),
		suppliers: p.Suppliers,
		inventory: p.Inventory,
		sources:   sources,
	}
}

// Suppliers lists the configured supplier keys, enabled or not.
func (s *Syncer) Suppliers() []config.SupplierConfig {
	return s.suppliers.Get().Suppliers
}

func (s *Syncer) Sync(ctx context.Context, supplierKey string) (inventorydomain.SyncStats, error) {
	key := strings.ToLower(strings.TrimSpace(supplierKey))
	cfg, ok := s.suppliers.Get().Find(key)
	if !ok {
		return inventorydomain.SyncStats{}, ErrSupplierNotFound
	}
	if !cfg.Enabled {
		return inventorydomain.SyncStats{}, ErrSupplierDisabled
	}

	parse, err := ParserFor(cfg)
	if err != nil {
		return inventorydomain.SyncStats{}, err
	}

	log := s.log.With(zap.String("supplier", key))
	log.Info("starting stock sync")

	body, err := s.sources(cfg).Fetch(ctx)
	if err != nil {
		log.Error("stock feed download failed", zap.Error(err))
		return inventorydomain.SyncStats{}, err
	}
	defer body.Close()

	quantities, err := parse(body)
	if err != nil {
		return inventorydomain.SyncStats{}, fmt.Errorf("parse %s feed: %w", key, err)
	}

	return s.inventory.SyncFeed(ctx, key, quantities)
}
