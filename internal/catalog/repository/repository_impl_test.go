package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/catalog/domain"
	"github.com/smallbiznis/storefront/internal/catalog/repository"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestFindVariantSkipsDeleted(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	productID := snowflake.ID(1)
	seedProduct(t, db, productID, now)
	seedVariant(t, db, 10, productID, "4001", nil, now)
	seedVariant(t, db, 11, productID, "4002", &now, now)

	variant, err := repo.FindVariant(ctx, db, 10)
	if err != nil {
		t.Fatalf("find variant: %v", err)
	}
	if variant == nil || variant.Barcode == nil || *variant.Barcode != "4001" {
		t.Fatalf("unexpected variant %+v", variant)
	}

	deleted, err := repo.FindVariant(ctx, db, 11)
	if err != nil {
		t.Fatalf("find deleted variant: %v", err)
	}
	if deleted != nil {
		t.Fatalf("expected deleted variant to be hidden, got %+v", deleted)
	}
}

func TestFindVariantsByBarcodesChunks(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	productID := snowflake.ID(1)
	seedProduct(t, db, productID, now)

	barcodes := make([]string, 0, 1200)
	for i := 0; i < 1200; i++ {
		barcodes = append(barcodes, fmt.Sprintf("EAN%05d", i))
	}
	seedVariant(t, db, 100, productID, "EAN00003", nil, now)
	seedVariant(t, db, 101, productID, "EAN00777", nil, now)
	seedVariant(t, db, 102, productID, "EAN01199", &now, now)

	variants, err := repo.FindVariantsByBarcodes(ctx, db, barcodes)
	if err != nil {
		t.Fatalf("find by barcodes: %v", err)
	}
	if len(variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(variants))
	}
}

func TestUpdateProductDescription(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := repository.Provide()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	seedProduct(t, db, 1, now)

	ok, err := repo.UpdateProductDescription(ctx, db, 1, domain.DescriptionUpdate{
		Description:     "<p>Fast freeride board.</p>",
		MetaTitle:       "Freeride Board",
		MetaDescription: "A fast freeride board.",
	}, now.Add(time.Hour))
	if err != nil || !ok {
		t.Fatalf("update description: ok=%v err=%v", ok, err)
	}

	product, err := repo.FindProduct(ctx, db, 1)
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.MetaTitle == nil || *product.MetaTitle != "Freeride Board" {
		t.Fatalf("unexpected meta title %v", product.MetaTitle)
	}
	if names := product.CategoryNames(); len(names) != 2 || names[0] != "Windsurf" {
		t.Fatalf("unexpected categories %v", names)
	}

	missing, err := repo.UpdateProductDescription(ctx, db, 999, domain.DescriptionUpdate{}, now)
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if missing {
		t.Fatalf("expected no rows for missing product")
	}

	bySlug, err := repo.FindProductBySlug(ctx, db, product.Slug)
	if err != nil || bySlug == nil || bySlug.ID != 1 {
		t.Fatalf("find by slug: product=%v err=%v", bySlug, err)
	}
	if none, err := repo.FindProductBySlug(ctx, db, "no-such-board"); err != nil || none != nil {
		t.Fatalf("expected no product for unknown slug, got %v err=%v", none, err)
	}
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	schema := []string{
		`CREATE TABLE products (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			slug TEXT NOT NULL,
			brand TEXT,
			description TEXT,
			meta_title TEXT,
			meta_description TEXT,
			categories TEXT NOT NULL DEFAULT '[]',
			properties TEXT NOT NULL DEFAULT '{}',
			price NUMERIC NOT NULL DEFAULT 0,
			currency TEXT NOT NULL DEFAULT 'EUR',
			status TEXT NOT NULL DEFAULT 'active',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE TABLE variants (
			id BIGINT PRIMARY KEY,
			product_id BIGINT NOT NULL,
			sku TEXT,
			barcode TEXT,
			options_text TEXT,
			deleted_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func seedProduct(t *testing.T, db *gorm.DB, id snowflake.ID, now time.Time) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO products (id, name, slug, brand, categories, properties, price, currency, status, created_at, updated_at)
		 VALUES (?, 'Freeride 120', 'freeride-120', 'JP', '["Windsurf","Boards"]', '{"volume":"120l"}', 1299.00, 'EUR', 'active', ?, ?)`,
		id, now, now,
	).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
}

func seedVariant(t *testing.T, db *gorm.DB, id, productID snowflake.ID, barcode string, deletedAt *time.Time, now time.Time) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO variants (id, product_id, sku, barcode, options_text, deleted_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'Size: 120', ?, ?, ?)`,
		id, productID, fmt.Sprintf("SKU-%d", id), barcode, deletedAt, now, now,
	).Error; err != nil {
		t.Fatalf("seed variant: %v", err)
	}
}
