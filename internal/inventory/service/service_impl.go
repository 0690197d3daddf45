package service

import (
	"context"
	"sort"
	"strings"

	"github.com/bwmarrin/snowflake"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	catalogdomain "github.com/smallbiznis/storefront/internal/catalog/domain"
	"github.com/smallbiznis/storefront/internal/clock"
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	obsmetrics "github.com/smallbiznis/storefront/internal/observability/metrics"
	"github.com/smallbiznis/storefront/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// maxWriteAttempts bounds the read/compare-and-set loop on a contended stock item.
const maxWriteAttempts = 5

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        inventorydomain.Repository
	CatalogRepo catalogdomain.Repository
	Observers   []inventorydomain.RestockObserver `group:"restock_observers"`
	Clock       clock.Clock                       `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics               `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        inventorydomain.Repository
	catalogRepo catalogdomain.Repository
	observers   []inventorydomain.RestockObserver
	clock       clock.Clock
	obsMetrics  *obsmetrics.Metrics
}

func NewService(p Params) inventorydomain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	observers := make([]inventorydomain.RestockObserver, 0, len(p.Observers))
	for _, observer := range p.Observers {
		if observer != nil {
			observers = append(observers, observer)
		}
	}

	return &Service{
		db:          p.DB,
		log:         p.Log.Named("inventory.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		catalogRepo: p.CatalogRepo,
		observers:   observers,
		clock:       clk,
		obsMetrics:  p.ObsMetrics,
	}
}

func (s *Service) SetCountOnHand(ctx context.Context, req inventorydomain.SetCountRequest) (*inventorydomain.StockItem, error) {
	if err := validation.ValidateStruct(&req,
		validation.Field(&req.StockLocationID, validation.Required),
		validation.Field(&req.VariantID, validation.Required),
		validation.Field(&req.CountOnHand, validation.Min(0)),
	); err != nil {
		return nil, err
	}

	location, err := s.repo.FindLocation(ctx, s.db, req.StockLocationID)
	if err != nil {
		return nil, err
	}
	if location == nil {
		return nil, inventorydomain.ErrStockLocationNotFound
	}

	variant, err := s.catalogRepo.FindVariant(ctx, s.db, req.VariantID)
	if err != nil {
		return nil, err
	}
	if variant == nil {
		return nil, catalogdomain.ErrVariantNotFound
	}

	item, _, err := s.setCount(ctx, location.ID, variant.ID, req.CountOnHand)
	return item, err
}

// setCount writes the quantity with a compare-and-set on the previously read
// count and emits a restock event once the write is committed.
func (s *Service) setCount(ctx context.Context, locationID, variantID snowflake.ID, qty int) (*inventorydomain.StockItem, bool, error) {
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		now := s.clock.Now()

		item, err := s.repo.FindStockItem(ctx, s.db, locationID, variantID)
		if err != nil {
			return nil, false, err
		}

		if item == nil {
			item = &inventorydomain.StockItem{
				ID:              s.genID.Generate(),
				StockLocationID: locationID,
				VariantID:       variantID,
				CountOnHand:     qty,
				Backorderable:   false,
				CreatedAt:       now,
				UpdatedAt:       now,
			}
			if err := s.repo.InsertStockItem(ctx, s.db, item); err != nil {
				if db.IsDuplicateKeyErr(err) {
					continue
				}
				return nil, false, err
			}
			s.emit(ctx, inventorydomain.RestockEvent{
				VariantID:       variantID,
				StockLocationID: locationID,
				Previous:        0,
				Current:         qty,
			})
			return item, true, nil
		}

		if item.CountOnHand == qty {
			return item, false, nil
		}

		previous := item.CountOnHand
		ok, err := s.repo.CompareAndSetCount(ctx, s.db, item.ID, previous, qty, now)
		if err != nil {
			return nil, false, err
		}
		if !ok {
			continue
		}

		item.CountOnHand = qty
		item.UpdatedAt = now
		s.emit(ctx, inventorydomain.RestockEvent{
			VariantID:       variantID,
			StockLocationID: locationID,
			Previous:        previous,
			Current:         qty,
		})
		return item, true, nil
	}

	s.log.Warn("stock write lost every compare-and-set attempt",
		zap.String("variant_id", variantID.String()),
		zap.String("stock_location_id", locationID.String()),
	)
	return nil, false, inventorydomain.ErrStockConflict
}

func (s *Service) emit(ctx context.Context, event inventorydomain.RestockEvent) {
	if !inventorydomain.IsRestock(event.Previous, event.Current) {
		return
	}
	for _, observer := range s.observers {
		observer.OnRestock(ctx, event)
	}
}

func (s *Service) SyncFeed(ctx context.Context, supplier string, quantities map[string]int) (inventorydomain.SyncStats, error) {
	supplier = strings.TrimSpace(supplier)
	log := s.log.With(zap.String("supplier", supplier))

	stats := inventorydomain.SyncStats{Parsed: len(quantities)}
	for _, qty := range quantities {
		if qty > 0 {
			stats.WithStock++
		}
	}
	log.Info("stock feed parsed", zap.Int("entries", stats.Parsed), zap.Int("with_stock", stats.WithStock))

	location, err := s.repo.FindFirstLocation(ctx, s.db)
	if err != nil {
		return stats, err
	}
	if location == nil {
		log.Error("no stock location found")
		return stats, inventorydomain.ErrNoStockLocation
	}

	barcodes := make([]string, 0, len(quantities))
	for barcode := range quantities {
		barcodes = append(barcodes, barcode)
	}
	sort.Strings(barcodes)

	variants, err := s.catalogRepo.FindVariantsByBarcodes(ctx, s.db, barcodes)
	if err != nil {
		return stats, err
	}

	// Later rows win when several variants share a barcode.
	byBarcode := make(map[string]catalogdomain.Variant, len(variants))
	for _, variant := range variants {
		if variant.Barcode == nil {
			continue
		}
		byBarcode[*variant.Barcode] = variant
	}
	log.Info("stock feed matched", zap.Int("matched", len(byBarcode)), zap.Int("entries", stats.Parsed))

	variantIDs := make([]snowflake.ID, 0, len(byBarcode))
	for _, variant := range byBarcode {
		variantIDs = append(variantIDs, variant.ID)
	}
	items, err := s.repo.ListStockItemsByVariants(ctx, s.db, location.ID, variantIDs)
	if err != nil {
		return stats, err
	}
	current := make(map[snowflake.ID]int, len(items))
	for _, item := range items {
		current[item.VariantID] = item.CountOnHand
	}

	for _, barcode := range barcodes {
		variant, ok := byBarcode[barcode]
		if !ok {
			continue
		}
		stats.Matched++

		qty := quantities[barcode]
		if existing, ok := current[variant.ID]; ok && existing == qty {
			stats.Unchanged++
			continue
		}

		_, written, err := s.setCount(ctx, location.ID, variant.ID, qty)
		if err != nil {
			stats.Failed++
			log.Warn("stock update failed",
				zap.String("barcode", barcode),
				zap.String("variant_id", variant.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if written {
			stats.Updated++
		} else {
			stats.Unchanged++
		}
	}
	stats.Unmatched = stats.Parsed - stats.Matched

	s.obsMetrics.RecordStockSyncItems(ctx, supplier, "updated", stats.Updated)
	s.obsMetrics.RecordStockSyncItems(ctx, supplier, "unchanged", stats.Unchanged)
	s.obsMetrics.RecordStockSyncItems(ctx, supplier, "unmatched", stats.Unmatched)
	s.obsMetrics.RecordStockSyncItems(ctx, supplier, "failed", stats.Failed)

	log.Info("stock sync complete",
		zap.Int("matched", stats.Matched),
		zap.Int("updated", stats.Updated),
		zap.Int("unchanged", stats.Unchanged),
		zap.Int("unmatched", stats.Unmatched),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}
