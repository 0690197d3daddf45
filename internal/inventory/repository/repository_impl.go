package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/inventory/domain"
	"gorm.io/gorm"
)

const variantChunkSize = 500

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindFirstLocation(ctx context.Context, db *gorm.DB) (*domain.StockLocation, error) {
	var item domain.StockLocation
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, is_default, created_at
		 FROM stock_locations
		 ORDER BY is_default DESC, id ASC
		 LIMIT 1`,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindLocation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.StockLocation, error) {
	var item domain.StockLocation
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, is_default, created_at
		 FROM stock_locations
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

func (r *repo) FindStockItem(ctx context.Context, db *gorm.DB, locationID, variantID snowflake.ID) (*domain.StockItem, error) {
	var item domain.StockItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, stock_location_id, variant_id, count_on_hand, backorderable, created_at, updated_at
		 FROM stock_items
		 WHERE stock_location_id = ? AND variant_id = ?`,
		locationID,
		variantID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) ListStockItemsByVariants(ctx context.Context, db *gorm.DB, locationID snowflake.ID, variantIDs []snowflake.ID) ([]domain.StockItem, error) {
	var out []domain.StockItem
	for start := 0; start < len(variantIDs); start += variantChunkSize {
		end := start + variantChunkSize
		if end > len(variantIDs) {
			end = len(variantIDs)
		}

		var items []domain.StockItem
		err := db.WithContext(ctx).Raw(
			`SELECT id, stock_location_id, variant_id, count_on_hand, backorderable, created_at, updated_at
			 FROM stock_items
			 WHERE stock_location_id = ? AND variant_id IN ?`,
			locationID,
			variantIDs[start:end],
		).Scan(&items).Error
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

func (r *repo) InsertStockItem(ctx context.Context, db *gorm.DB, item *domain.StockItem) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO stock_items (id, stock_location_id, variant_id, count_on_hand, backorderable, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.StockLocationID,
		item.VariantID,
		item.CountOnHand,
		item.Backorderable,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) CompareAndSetCount(ctx context.Context, db *gorm.DB, id snowflake.ID, previous, next int, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE stock_items
		 SET count_on_hand = ?, updated_at = ?
		 WHERE id = ? AND count_on_hand = ?`,
		next,
		now,
		id,
		previous,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
