package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrProductNotFound = errors.New("product_not_found")
	ErrVariantNotFound = errors.New("variant_not_found")
)

// Repository reads the catalog. Soft-deleted variants are never returned.
type Repository interface {
	FindProduct(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Product, error)
	FindProductBySlug(ctx context.Context, db *gorm.DB, slug string) (*Product, error)
	FindVariant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Variant, error)
	ListVariantsByProduct(ctx context.Context, db *gorm.DB, productID snowflake.ID, limit int) ([]Variant, error)
	FindVariantsByBarcodes(ctx context.Context, db *gorm.DB, barcodes []string) ([]Variant, error)
	UpdateProductDescription(ctx context.Context, db *gorm.DB, id snowflake.ID, update DescriptionUpdate, now time.Time) (bool, error)
}
