package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrNoStockLocation       = errors.New("no_stock_location")
	ErrStockLocationNotFound = errors.New("stock_location_not_found")
	ErrStockConflict         = errors.New("stock_conflict")
)

// RestockObserver is notified after a restock write commits. Implementations
// must not block the writer and handle their own errors.
type RestockObserver interface {
	OnRestock(ctx context.Context, event RestockEvent)
}

type SetCountRequest struct {
	StockLocationID snowflake.ID
	VariantID       snowflake.ID
	CountOnHand     int
}

type Service interface {
	SetCountOnHand(ctx context.Context, req SetCountRequest) (*StockItem, error)
	// SyncFeed applies a barcode to quantity map to the first stock location.
	SyncFeed(ctx context.Context, supplier string, quantities map[string]int) (SyncStats, error)
}

type Repository interface {
	FindFirstLocation(ctx context.Context, db *gorm.DB) (*StockLocation, error)
	FindLocation(ctx context.Context, db *gorm.DB, id snowflake.ID) (*StockLocation, error)
	FindStockItem(ctx context.Context, db *gorm.DB, locationID, variantID snowflake.ID) (*StockItem, error)
	ListStockItemsByVariants(ctx context.Context, db *gorm.DB, locationID snowflake.ID, variantIDs []snowflake.ID) ([]StockItem, error)
	InsertStockItem(ctx context.Context, db *gorm.DB, item *StockItem) error
	// CompareAndSetCount writes next only when the stored count still equals previous.
	CompareAndSetCount(ctx context.Context, db *gorm.DB, id snowflake.ID, previous, next int, now time.Time) (bool, error)
}
