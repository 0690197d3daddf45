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
	"github.com/smallbiznis/storefront/internal/config"
	inventorydomain "github.com/smallbiznis/storefront/internal/inventory/domain"
	waitlistdomain "github.com/smallbiznis/storefront/internal/waitlist/domain"
	waitlistrepo "github.com/smallbiznis/storefront/internal/waitlist/repository"
	waitlistservice "github.com/smallbiznis/storefront/internal/waitlist/service"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	productID      snowflake.ID = 100
	variantID      snowflake.ID = 10
	otherVariant   snowflake.ID = 11
	deletedVariant snowflake.ID = 12
	orphanVariant  snowflake.ID = 13
)

type fakeNotifier struct {
	mu      sync.Mutex
	entries []waitlistdomain.Entry
	err     error
	onCall  func(entry waitlistdomain.Entry)
}

func (n *fakeNotifier) NotifyRestock(ctx context.Context, entry waitlistdomain.Entry) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.onCall != nil {
		n.onCall(entry)
	}
	if n.err != nil {
		return n.err
	}
	n.entries = append(n.entries, entry)
	return nil
}

type sentMail struct {
	to       []string
	template string
	data     map[string]any
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, to []string, subject string, htmlBody string) error {
	return m.err
}

func (m *fakeMailer) SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, template: templateName, data: data})
	return nil
}

type fixture struct {
	db       *gorm.DB
	svc      waitlistdomain.Service
	notifier *fakeNotifier
	mailer   *fakeMailer
	clock    *clock.FakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := setupTestDB(t)
	seedCatalog(t, db)

	node, err := snowflake.NewNode(7)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	f := &fixture{
		db:       db,
		notifier: &fakeNotifier{},
		mailer:   &fakeMailer{},
		clock:    clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)),
	}
	f.svc = waitlistservice.NewService(waitlistservice.Params{
		DB:          db,
		Log:         zap.NewNop(),
		GenID:       node,
		Cfg:         config.Config{StorefrontURL: "https://shop.example/"},
		Repo:        waitlistrepo.Provide(),
		CatalogRepo: catalogrepo.Provide(),
		Notifier:    f.notifier,
		Email:       f.mailer,
		Clock:       f.clock,
	})
	return f
}

func TestSubscribeNormalizesEmail(t *testing.T) {
	f := newFixture(t)

	entry, err := f.svc.Subscribe(context.Background(), waitlistdomain.SubscribeRequest{
		Email:     "  Rider@Example.COM ",
		VariantID: variantID,
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if entry.Email != "rider@example.com" {
		t.Fatalf("expected normalized email, got %q", entry.Email)
	}
	if !entry.Pending() {
		t.Fatalf("expected new entry to be pending")
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM waitlist_entries WHERE email = 'rider@example.com' AND notified_at IS NULL", 1)
}

func TestSubscribeRejectsDuplicatePendingEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Subscribe(ctx, waitlistdomain.SubscribeRequest{Email: "a@example.com", VariantID: variantID}); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	_, err := f.svc.Subscribe(ctx, waitlistdomain.SubscribeRequest{Email: "A@example.com", VariantID: variantID})
	if !errors.Is(err, waitlistdomain.ErrAlreadyWaitlisted) {
		t.Fatalf("expected ErrAlreadyWaitlisted, got %v", err)
	}

	if _, err := f.svc.Subscribe(ctx, waitlistdomain.SubscribeRequest{Email: "a@example.com", VariantID: otherVariant}); err != nil {
		t.Fatalf("subscribe other variant: %v", err)
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM waitlist_entries", 2)
}

func TestSubscribeAllowedAgainAfterNotification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Subscribe(ctx, waitlistdomain.SubscribeRequest{Email: "a@example.com", VariantID: variantID}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := f.svc.Fanout(ctx, variantID); err != nil {
		t.Fatalf("fanout: %v", err)
	}
	if _, err := f.svc.Subscribe(ctx, waitlistdomain.SubscribeRequest{Email: "a@example.com", VariantID: variantID}); err != nil {
		t.Fatalf("resubscribe after notification: %v", err)
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM waitlist_entries WHERE notified_at IS NULL", 1)
	assertCount(t, f.db, "SELECT COUNT(1) FROM waitlist_entries WHERE notified_at IS NOT NULL", 1)
}

func TestSubscribeValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		req   waitlistdomain.SubscribeRequest
		field string
	}{
		{name: "missing email", req: waitlistdomain.SubscribeRequest{VariantID: variantID}, field: "Email"},
		{name: "malformed email", req: waitlistdomain.SubscribeRequest{Email: "not-an-email", VariantID: variantID}, field: "Email"},
		{name: "missing variant", req: waitlistdomain.SubscribeRequest{Email: "a@example.com"}, field: "VariantID"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Subscribe(ctx, tc.req)
			var verrs validation.Errors
			if !errors.As(err, &verrs) {
				t.Fatalf("expected validation errors, got %v", err)
			}
			if _, ok := verrs[tc.field]; !ok {
				t.Fatalf("expected error on %s, got %v", tc.field, verrs)
			}
		})
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM waitlist_entries", 0)
}

func TestSubscribeUnknownVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, id := range []snowflake.ID{999, deletedVariant} {
		_, err := f.svc.Subscribe(ctx, waitlistdomain.SubscribeRequest{Email: "a@example.com", VariantID: id})
		if !errors.Is(err, catalogdomain.ErrVariantNotFound) {
			t.Fatalf("variant %d: expected ErrVariantNotFound, got %v", id, err)
		}
	}
}

func TestFanoutMarksOnlyPendingEntriesOfVariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	notifiedAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	seedEntry(t, f.db, 1, "a@example.com", variantID, nil)
	seedEntry(t, f.db, 2, "b@example.com", variantID, nil)
	seedEntry(t, f.db, 3, "c@example.com", variantID, nil)
	seedEntry(t, f.db, 4, "old@example.com", variantID, &notifiedAt)
	seedEntry(t, f.db, 5, "other@example.com", otherVariant, nil)

	marked, err := f.svc.Fanout(ctx, variantID)
	if err != nil {
		t.Fatalf("fanout: %v", err)
	}
	if marked != 3 {
		t.Fatalf("expected 3 entries marked, got %d", marked)
	}
	if len(f.notifier.entries) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(f.notifier.entries))
	}
	for _, entry := range f.notifier.entries {
		if entry.VariantID != variantID || entry.ID == 4 {
			t.Fatalf("unexpected entry notified: %+v", entry)
		}
	}

	assertCount(t, f.db, fmt.Sprintf("SELECT COUNT(1) FROM waitlist_entries WHERE variant_id = %d AND notified_at IS NULL", variantID), 0)
	assertCount(t, f.db, fmt.Sprintf("SELECT COUNT(1) FROM waitlist_entries WHERE variant_id = %d AND notified_at IS NULL", otherVariant), 1)

	var stamped time.Time
	if err := f.db.Raw("SELECT notified_at FROM waitlist_entries WHERE id = 4").Scan(&stamped).Error; err != nil {
		t.Fatalf("load notified_at: %v", err)
	}
	if !stamped.Equal(notifiedAt) {
		t.Fatalf("expected previously notified entry to keep %v, got %v", notifiedAt, stamped)
	}

	marked, err = f.svc.Fanout(ctx, variantID)
	if err != nil {
		t.Fatalf("second fanout: %v", err)
	}
	if marked != 0 || len(f.notifier.entries) != 3 {
		t.Fatalf("expected second fanout to be a no-op, marked=%d notifications=%d", marked, len(f.notifier.entries))
	}
}

func TestFanoutLeavesLateSubscribersPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedEntry(t, f.db, 1, "a@example.com", variantID, nil)
	late := false
	f.notifier.onCall = func(entry waitlistdomain.Entry) {
		if late {
			return
		}
		late = true
		seedEntry(t, f.db, 2, "late@example.com", variantID, nil)
	}

	marked, err := f.svc.Fanout(ctx, variantID)
	if err != nil {
		t.Fatalf("fanout: %v", err)
	}
	if marked != 1 {
		t.Fatalf("expected 1 entry marked, got %d", marked)
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM waitlist_entries WHERE id = 2 AND notified_at IS NULL", 1)
}

func TestFanoutNoOps(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedEntry(t, f.db, 1, "a@example.com", orphanVariant, nil)

	for _, id := range []snowflake.ID{variantID, 999, orphanVariant} {
		marked, err := f.svc.Fanout(ctx, id)
		if err != nil {
			t.Fatalf("variant %d: fanout: %v", id, err)
		}
		if marked != 0 {
			t.Fatalf("variant %d: expected nothing marked, got %d", id, marked)
		}
	}
	if len(f.notifier.entries) != 0 {
		t.Fatalf("expected no notifications, got %d", len(f.notifier.entries))
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM waitlist_entries WHERE notified_at IS NULL", 1)
}

func TestFanoutDispatchErrorMarksNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedEntry(t, f.db, 1, "a@example.com", variantID, nil)
	seedEntry(t, f.db, 2, "b@example.com", variantID, nil)
	f.notifier.err = errors.New("redis unavailable")

	if _, err := f.svc.Fanout(ctx, variantID); err == nil {
		t.Fatalf("expected dispatch error")
	}
	assertCount(t, f.db, "SELECT COUNT(1) FROM waitlist_entries WHERE notified_at IS NULL", 2)
}

func TestDeliverRestockEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	seedEntry(t, f.db, 1, "a@example.com", variantID, nil)

	if err := f.svc.DeliverRestockEmail(ctx, 1); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(f.mailer.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(f.mailer.sent))
	}
	mail := f.mailer.sent[0]
	if mail.template != "restock" || len(mail.to) != 1 || mail.to[0] != "a@example.com" {
		t.Fatalf("unexpected email %+v", mail)
	}
	if mail.data["product_name"] != "Wave Board 95" {
		t.Fatalf("unexpected product name %v", mail.data["product_name"])
	}
	if mail.data["options_text"] != "Size: 95L" {
		t.Fatalf("unexpected options text %v", mail.data["options_text"])
	}
	if mail.data["product_url"] != "https://shop.example/products/wave-board-95" {
		t.Fatalf("unexpected product url %v", mail.data["product_url"])
	}

	if err := f.svc.DeliverRestockEmail(ctx, 42); !errors.Is(err, waitlistdomain.ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}

	f.mailer.err = errors.New("smtp down")
	if err := f.svc.DeliverRestockEmail(ctx, 1); err == nil {
		t.Fatalf("expected mailer error to propagate")
	}
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		f.clock.Advance(time.Minute)
		if _, err := f.svc.Subscribe(ctx, waitlistdomain.SubscribeRequest{
			Email:     fmt.Sprintf("rider%d@example.com", i),
			VariantID: variantID,
		}); err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
	}

	first, err := f.svc.List(ctx, waitlistdomain.ListRequest{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(first.Entries) != 5 || first.PageInfo.HasMore {
		t.Fatalf("expected a single full page, got %d entries has_more=%v", len(first.Entries), first.PageInfo.HasMore)
	}

	req := waitlistdomain.ListRequest{VariantID: variantID.String()}
	req.PageSize = 2
	page, err := f.svc.List(ctx, req)
	if err != nil {
		t.Fatalf("list page 1: %v", err)
	}
	if len(page.Entries) != 2 || !page.PageInfo.HasMore || page.PageInfo.NextPageToken == "" {
		t.Fatalf("unexpected first page %+v", page.PageInfo)
	}
	if page.Entries[0].Email != "rider5@example.com" {
		t.Fatalf("expected newest entry first, got %s", page.Entries[0].Email)
	}

	seen := map[snowflake.ID]bool{}
	for _, entry := range page.Entries {
		seen[entry.ID] = true
	}
	for page.PageInfo.HasMore {
		req.PageToken = page.PageInfo.NextPageToken
		page, err = f.svc.List(ctx, req)
		if err != nil {
			t.Fatalf("list next page: %v", err)
		}
		for _, entry := range page.Entries {
			if seen[entry.ID] {
				t.Fatalf("entry %d returned twice", entry.ID)
			}
			seen[entry.ID] = true
		}
	}
	if len(seen) != 5 {
		t.Fatalf("expected 5 entries across pages, got %d", len(seen))
	}

	bad := waitlistdomain.ListRequest{}
	bad.PageToken = "%%%"
	if _, err := f.svc.List(ctx, bad); !errors.Is(err, waitlistdomain.ErrInvalidPageToken) {
		t.Fatalf("expected ErrInvalidPageToken, got %v", err)
	}
}

type fakeEnqueuer struct {
	variants []snowflake.ID
	err      error
}

func (e *fakeEnqueuer) EnqueueFanout(ctx context.Context, variantID snowflake.ID) error {
	e.variants = append(e.variants, variantID)
	return e.err
}

func TestRestockObserverEnqueuesWhenEntriesPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	enqueuer := &fakeEnqueuer{}
	observer := waitlistservice.NewRestockObserver(waitlistservice.ObserverParams{
		DB:       f.db,
		Log:      zap.NewNop(),
		Repo:     waitlistrepo.Provide(),
		Enqueuer: enqueuer,
	})

	seedEntry(t, f.db, 1, "a@example.com", variantID, nil)

	observer.OnRestock(ctx, inventorydomain.RestockEvent{VariantID: variantID, Previous: 0, Current: 4})
	observer.OnRestock(ctx, inventorydomain.RestockEvent{VariantID: variantID, Previous: 2, Current: 4})
	observer.OnRestock(ctx, inventorydomain.RestockEvent{VariantID: otherVariant, Previous: 0, Current: 1})

	if len(enqueuer.variants) != 1 || enqueuer.variants[0] != variantID {
		t.Fatalf("expected a single enqueue for variant %d, got %v", variantID, enqueuer.variants)
	}

	enqueuer.err = errors.New("queue down")
	observer.OnRestock(ctx, inventorydomain.RestockEvent{VariantID: variantID, Previous: -1, Current: 2})
	if len(enqueuer.variants) != 2 {
		t.Fatalf("expected enqueue attempt from negative stock, got %v", enqueuer.variants)
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
		`CREATE TABLE waitlist_entries (
			id BIGINT PRIMARY KEY,
			email TEXT NOT NULL,
			variant_id BIGINT NOT NULL,
			notified_at DATETIME,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,
		`CREATE UNIQUE INDEX idx_waitlist_pending_unique
			ON waitlist_entries (email, variant_id) WHERE notified_at IS NULL`,
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
		`INSERT INTO products (id, name, slug, created_at, updated_at) VALUES (?, 'Wave Board 95', 'wave-board-95', ?, ?)`,
		productID, now, now,
	).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}

	variants := []struct {
		id        snowflake.ID
		productID snowflake.ID
		deleted   bool
	}{
		{variantID, productID, false},
		{otherVariant, productID, false},
		{deletedVariant, productID, true},
		{orphanVariant, 404, false},
	}
	for _, v := range variants {
		var deletedAt *time.Time
		if v.deleted {
			deletedAt = &now
		}
		if err := db.Exec(
			`INSERT INTO variants (id, product_id, options_text, deleted_at, created_at, updated_at) VALUES (?, ?, 'Size: 95L', ?, ?, ?)`,
			v.id, v.productID, deletedAt, now, now,
		).Error; err != nil {
			t.Fatalf("seed variant: %v", err)
		}
	}
}

func seedEntry(t *testing.T, db *gorm.DB, id snowflake.ID, email string, variant snowflake.ID, notifiedAt *time.Time) {
	t.Helper()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC).Add(time.Duration(id) * time.Second)
	if err := db.Exec(
		`INSERT INTO waitlist_entries (id, email, variant_id, notified_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, email, variant, notifiedAt, now, now,
	).Error; err != nil {
		t.Fatalf("seed entry: %v", err)
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
