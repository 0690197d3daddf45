package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	MessageSubscribed        = "You'll be notified when this item is back in stock!"
	MessageAlreadyWaitlisted = "Email is already on the waitlist for this item"
	MessageVariantNotFound   = "Product variant not found"
)

var (
	ErrAlreadyWaitlisted = errors.New("already_waitlisted")
	ErrEntryNotFound     = errors.New("waitlist_entry_not_found")
	ErrInvalidPageToken  = errors.New("invalid_page_token")
)

type SubscribeRequest struct {
	Email     string
	VariantID snowflake.ID
}

type ListRequest struct {
	pagination.Pagination
	VariantID   string `form:"variant_id"`
	Email       string `form:"email"`
	PendingOnly bool   `form:"pending_only"`
}

type ListResponse struct {
	Entries  []Entry             `json:"entries"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type ListFilter struct {
	VariantID   *snowflake.ID
	Email       string
	PendingOnly bool
	Cursor      *EntryCursor
	Limit       int
}

type EntryCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type Service interface {
	Subscribe(ctx context.Context, req SubscribeRequest) (*Entry, error)
	List(ctx context.Context, req ListRequest) (ListResponse, error)
	// Fanout notifies every pending entry of a restocked variant and marks
	// them notified. It returns the number of entries marked.
	Fanout(ctx context.Context, variantID snowflake.ID) (int, error)
	// DeliverRestockEmail sends the restock email for one entry.
	DeliverRestockEmail(ctx context.Context, entryID snowflake.ID) error
}

// Notifier hands one entry to the email pipeline.
type Notifier interface {
	NotifyRestock(ctx context.Context, entry Entry) error
}

// FanoutEnqueuer schedules an asynchronous fan-out for a variant.
type FanoutEnqueuer interface {
	EnqueueFanout(ctx context.Context, variantID snowflake.ID) error
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *Entry) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Entry, error)
	ListPendingByVariant(ctx context.Context, db *gorm.DB, variantID snowflake.ID) ([]Entry, error)
	CountPendingByVariant(ctx context.Context, db *gorm.DB, variantID snowflake.ID) (int64, error)
	// MarkNotified stamps the given ids, skipping entries already notified.
	MarkNotified(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*Entry, error)
}
