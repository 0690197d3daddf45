package domain

import (
	"encoding/json"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Product struct {
	ID              snowflake.ID      `json:"id" gorm:"primaryKey"`
	Name            string            `json:"name"`
	Slug            string            `json:"slug"`
	Brand           *string           `json:"brand,omitempty"`
	Description     *string           `json:"description,omitempty"`
	MetaTitle       *string           `json:"meta_title,omitempty"`
	MetaDescription *string           `json:"meta_description,omitempty"`
	Categories      datatypes.JSON    `json:"categories,omitempty"`
	Properties      datatypes.JSONMap `json:"properties,omitempty"`
	Price           decimal.Decimal   `json:"price"`
	Currency        string            `json:"currency"`
	Status          string            `json:"status"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// CategoryNames decodes the categories column. Malformed values yield nil.
func (p Product) CategoryNames() []string {
	if len(p.Categories) == 0 {
		return nil
	}
	var names []string
	if err := json.Unmarshal(p.Categories, &names); err != nil {
		return nil
	}
	return names
}

type Variant struct {
	ID          snowflake.ID `json:"id" gorm:"primaryKey"`
	ProductID   snowflake.ID `json:"product_id"`
	SKU         *string      `json:"sku,omitempty"`
	Barcode     *string      `json:"barcode,omitempty"`
	OptionsText *string      `json:"options_text,omitempty"`
	DeletedAt   *time.Time   `json:"deleted_at,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (Variant) TableName() string { return "variants" }

// DescriptionUpdate is the generated copy persisted onto a product.
type DescriptionUpdate struct {
	Description     string
	MetaTitle       string
	MetaDescription string
}
