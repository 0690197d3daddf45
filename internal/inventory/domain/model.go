package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type StockLocation struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	Name      string       `json:"name"`
	IsDefault bool         `json:"is_default"`
	CreatedAt time.Time    `json:"created_at"`
}

func (StockLocation) TableName() string { return "stock_locations" }

type StockItem struct {
	ID              snowflake.ID `json:"id" gorm:"primaryKey"`
	StockLocationID snowflake.ID `json:"stock_location_id"`
	VariantID       snowflake.ID `json:"variant_id"`
	CountOnHand     int          `json:"count_on_hand"`
	Backorderable   bool         `json:"backorderable"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

func (StockItem) TableName() string { return "stock_items" }

// RestockEvent is emitted after a committed write that takes a variant from
// zero (or less) to positive stock.
type RestockEvent struct {
	VariantID       snowflake.ID
	StockLocationID snowflake.ID
	Previous        int
	Current         int
}

// IsRestock reports whether the change crosses from out-of-stock to in-stock.
func IsRestock(previous, current int) bool {
	return previous <= 0 && current > 0
}

// SyncStats summarises one supplier feed run.
type SyncStats struct {
	Parsed    int `json:"parsed"`
	WithStock int `json:"with_stock"`
	Matched   int `json:"matched"`
	Updated   int `json:"updated"`
	Unchanged int `json:"unchanged"`
	Unmatched int `json:"unmatched"`
	Failed    int `json:"failed"`
}
