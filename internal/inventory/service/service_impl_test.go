package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	catalogdomain "github.com/smallbiznis/storefront/internal/catalog/domain"
	catalogrepo "github.com/smallbiznis/storefront/internal/catalog/repository"
	"github.com/smallbiznis/storefront/internal/clock"
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	inventoryrepo "github.com/smallbiznis/storefront/internal/inventory/repository"
	inventoryservice "github.com/smallbiznis/storefront/internal/inventory/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []inventorydomain.RestockEvent
}

func (o *recordingObserver) OnRestock(ctx context.Context, event inventorydomain.RestockEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.events)
}

// racingRepo lets another writer change the row right before the first compare-and-set.
type racingRepo struct {
	inventorydomain.Repository
	db       *gorm.DB
	racedTo  int
	casCalls int
}

func (r *racingRepo) CompareAndSetCount(ctx context.Context, db *gorm.DB, id snowflake.ID, previous, next int, now time.Time) (bool, error) {
	r.casCalls++
	if r.casCalls == 1 {
		if err := r.db.Exec("UPDATE stock_items SET count_on_hand = ? WHERE id = ?", r.racedTo, id).Error; err != nil {
			return false, err
		}
	}
	return r.Repository.CompareAndSetCount(ctx, db, id, previous, next, now)
}

const (
	locationID snowflake.ID = 1
	variantA   snowflake.ID = 10
	variantB   snowflake.ID = 11
	variantC   snowflake.ID = 12
	variantD   snowflake.ID = 13
)

func newService(t *testing.T, db *gorm.DB, repo inventorydomain.Repository, observer inventorydomain.RestockObserver) inventorydomain.Service {
	t.Helper()
	node, err := snowflake.NewNode(12)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if repo == nil {
		repo = inventoryrepo.Provide()
	}
	return inventoryservice.NewService(inventoryservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Repo:        repo,
		CatalogRepo: catalogrepo.Provide(),
		Observers:   []inventorydomain.RestockObserver{observer},
		Clock:       clock.NewFakeClock(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)),
	})
}

func TestSetCountOnHandEmitsOnlyOnRestock(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCatalog(t, db)
	observer := &recordingObserver{}
	svc := newService(t, db, nil, observer)

	steps := []struct {
		qty        int
		wantEvents int
	}{
		{qty: 5, wantEvents: 1},
		{qty: 5, wantEvents: 1},
		{qty: 7, wantEvents: 1},
		{qty: 0, wantEvents: 1},
		{qty: 3, wantEvents: 2},
	}
	for i, step := range steps {
		item, err := svc.SetCountOnHand(ctx, inventorydomain.SetCountRequest{
			StockLocationID: locationID,
			VariantID:       variantA,
			CountOnHand:     step.qty,
		})
		if err != nil {
			t.Fatalf("step %d: set count: %v", i, err)
		}
		if item.CountOnHand != step.qty {
			t.Fatalf("step %d: expected count %d, got %d", i, step.qty, item.CountOnHand)
		}
		if observer.count() != step.wantEvents {
			t.Fatalf("step %d: expected %d events, got %d", i, step.wantEvents, observer.count())
		}
	}

	last := observer.events[len(observer.events)-1]
	if last.VariantID != variantA || last.Previous != 0 || last.Current != 3 {
		t.Fatalf("unexpected restock event %+v", last)
	}
	assertCount(t, db, "SELECT COUNT(1) FROM stock_items", 1)
}

func TestSetCountOnHandValidation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCatalog(t, db)
	svc := newService(t, db, nil, &recordingObserver{})

	_, err := svc.SetCountOnHand(ctx, inventorydomain.SetCountRequest{StockLocationID: locationID, VariantID: variantA, CountOnHand: -1})
	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		t.Fatalf("expected validation errors, got %v", err)
	}

	_, err = svc.SetCountOnHand(ctx, inventorydomain.SetCountRequest{StockLocationID: 999, VariantID: variantA, CountOnHand: 1})
	if !errors.Is(err, inventorydomain.ErrStockLocationNotFound) {
		t.Fatalf("expected ErrStockLocationNotFound, got %v", err)
	}

	_, err = svc.SetCountOnHand(ctx, inventorydomain.SetCountRequest{StockLocationID: locationID, VariantID: variantD, CountOnHand: 1})
	if !errors.Is(err, catalogdomain.ErrVariantNotFound) {
		t.Fatalf("expected ErrVariantNotFound for deleted variant, got %v", err)
	}
}

func TestSetCountOnHandRetriesLostRace(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCatalog(t, db)
	seedStockItem(t, db, 100, variantA, 0)

	repo := &racingRepo{Repository: inventoryrepo.Provide(), db: db, racedTo: 4}
	observer := &recordingObserver{}
	svc := newService(t, db, repo, observer)

	item, err := svc.SetCountOnHand(ctx, inventorydomain.SetCountRequest{StockLocationID: locationID, VariantID: variantA, CountOnHand: 6})
	if err != nil {
		t.Fatalf("set count: %v", err)
	}
	if item.CountOnHand != 6 {
		t.Fatalf("expected count 6, got %d", item.CountOnHand)
	}
	if repo.casCalls != 2 {
		t.Fatalf("expected 2 compare-and-set attempts, got %d", repo.casCalls)
	}
	if observer.count() != 0 {
		t.Fatalf("expected no restock event after racing to 4, got %d", observer.count())
	}
	assertCount(t, db, "SELECT COUNT(1) FROM stock_items WHERE count_on_hand = 6", 1)
}

func TestSyncFeedStats(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	seedCatalog(t, db)
	seedStockItem(t, db, 100, variantA, 0)
	seedStockItem(t, db, 101, variantB, 4)

	observer := &recordingObserver{}
	svc := newService(t, db, nil, observer)

	stats, err := svc.SyncFeed(ctx, "bam", map[string]int{
		"EAN-A": 2,
		"EAN-B": 4,
		"EAN-C": 1,
		"EAN-D": 9,
		"EAN-X": 3,
	})
	if err != nil {
		t.Fatalf("sync feed: %v", err)
	}

	want := inventorydomain.SyncStats{Parsed: 5, WithStock: 5, Matched: 3, Updated: 2, Unchanged: 1, Unmatched: 2}
	if stats != want {
		t.Fatalf("expected %+v, got %+v", want, stats)
	}
	if observer.count() != 2 {
		t.Fatalf("expected 2 restock events, got %d", observer.count())
	}
	assertCount(t, db, "SELECT COUNT(1) FROM stock_items WHERE variant_id = 12 AND count_on_hand = 1 AND backorderable = 0", 1)
	assertCount(t, db, "SELECT COUNT(1) FROM stock_items WHERE variant_id = 13", 0)
}

func TestSyncFeedRequiresStockLocation(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	svc := newService(t, db, nil, &recordingObserver{})

	_, err := svc.SyncFeed(ctx, "pryde", map[string]int{"EAN-A": 1})
	if !errors.Is(err, inventorydomain.ErrNoStockLocation) {
		t.Fatalf("expected ErrNoStockLocation, got %v", err)
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
		`CREATE TABLE stock_locations (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE stock_items (
			id BIGINT PRIMARY KEY,
			stock_location_id BIGINT NOT NULL,
			variant_id BIGINT NOT NULL,
			count_on_hand INTEGER NOT NULL DEFAULT 0,
			backorderable BOOLEAN NOT NULL DEFAULT FALSE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			UNIQUE (stock_location_id, variant_id)
		)`,
	}
	for _, stmt := range schema {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}
	return db
}

func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Exec(
		`INSERT INTO stock_locations (id, name, is_default, created_at) VALUES (?, 'Warehouse', TRUE, ?)`,
		locationID, now,
	).Error; err != nil {
		t.Fatalf("seed location: %v", err)
	}

	variants := []struct {
		id      snowflake.ID
		barcode string
		deleted bool
	}{
		{variantA, "EAN-A", false},
		{variantB, "EAN-B", false},
		{variantC, "EAN-C", false},
		{variantD, "EAN-D", true},
	}
	for _, v := range variants {
		var deletedAt *time.Time
		if v.deleted {
			deletedAt = &now
		}
		if err := db.Exec(
			`INSERT INTO variants (id, product_id, barcode, deleted_at, created_at, updated_at) VALUES (?, 1, ?, ?, ?, ?)`,
			v.id, v.barcode, deletedAt, now, now,
		).Error; err != nil {
			t.Fatalf("seed variant: %v", err)
		}
	}
}

func seedStockItem(t *testing.T, db *gorm.DB, id, variantID snowflake.ID, count int) {
	t.Helper()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := db.Exec(
		`INSERT INTO stock_items (id, stock_location_id, variant_id, count_on_hand, backorderable, created_at, updated_at)
		 VALUES (?, ?, ?, ?, FALSE, ?, ?)`,
		id, locationID, variantID, count, now, now,
	).Error; err != nil {
		t.Fatalf("seed stock item: %v", err)
	}
}

func assertCount(t *testing.T, db *gorm.DB, query string, expected int) {
	t.Helper()
	var count int
	if err := db.Raw(query).Scan(&count).Error; err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d rows for %q, got %d", expected, query, count)
	}
}
