package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/catalog/domain"
	"gorm.io/gorm"
)

// barcodeChunkSize keeps IN lists under driver placeholder limits.
const barcodeChunkSize = 500

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Product, error) {
	var item domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, brand, description, meta_title, meta_description,
		        categories, properties, price, currency, status, created_at, updated_at
		 FROM products
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

func (r *repo) FindProductBySlug(ctx context.Context, db *gorm.DB, slug string) (*domain.Product, error) {
	var item domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, slug, brand, description, meta_title, meta_description,
		        categories, properties, price, currency, status, created_at, updated_at
		 FROM products
		 WHERE slug = ?`,
		slug,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) FindVariant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Variant, error) {
	var item domain.Variant
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, sku, barcode, options_text, deleted_at, created_at, updated_at
		 FROM variants
		 WHERE id = ? AND deleted_at IS NULL`,
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

func (r *repo) ListVariantsByProduct(ctx context.Context, db *gorm.DB, productID snowflake.ID, limit int) ([]domain.Variant, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Variant
	err := db.WithContext(ctx).Raw(
		`SELECT id, product_id, sku, barcode, options_text, deleted_at, created_at, updated_at
		 FROM variants
		 WHERE product_id = ? AND deleted_at IS NULL
		 ORDER BY id ASC
		 LIMIT ?`,
		productID,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) FindVariantsByBarcodes(ctx context.Context, db *gorm.DB, barcodes []string) ([]domain.Variant, error) {
	var out []domain.Variant
	for start := 0; start < len(barcodes); start += barcodeChunkSize {
		end := start + barcodeChunkSize
		if end > len(barcodes) {
			end = len(barcodes)
		}

		var items []domain.Variant
		err := db.WithContext(ctx).Raw(
			`SELECT id, product_id, sku, barcode, options_text, deleted_at, created_at, updated_at
			 FROM variants
			 WHERE barcode IN ? AND deleted_at IS NULL
			 ORDER BY id ASC`,
			barcodes[start:end],
		).Scan(&items).Error
		if err != nil {
			return nil, err
		}
		out = append(out, items...)
	}
	return out, nil
}

func (r *repo) UpdateProductDescription(ctx context.Context, db *gorm.DB, id snowflake.ID, update domain.DescriptionUpdate, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE products
		 SET description = ?, meta_title = ?, meta_description = ?, updated_at = ?
		 WHERE id = ?`,
		update.Description,
		update.MetaTitle,
		update.MetaDescription,
		now,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
