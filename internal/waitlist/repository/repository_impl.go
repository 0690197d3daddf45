package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/internal/waitlist/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.Entry) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO waitlist_entries (id, email, variant_id, notified_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Email,
		entry.VariantID,
		entry.NotifiedAt,
		entry.CreatedAt,
		entry.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Entry, error) {
	var item domain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, variant_id, notified_at, created_at, updated_at
		 FROM waitlist_entries
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

func (r *repo) ListPendingByVariant(ctx context.Context, db *gorm.DB, variantID snowflake.ID) ([]domain.Entry, error) {
	var items []domain.Entry
	err := db.WithContext(ctx).Raw(
		`SELECT id, email, variant_id, notified_at, created_at, updated_at
		 FROM waitlist_entries
		 WHERE variant_id = ? AND notified_at IS NULL
		 ORDER BY created_at ASC, id ASC`,
		variantID,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountPendingByVariant(ctx context.Context, db *gorm.DB, variantID snowflake.ID) (int64, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM waitlist_entries
		 WHERE variant_id = ? AND notified_at IS NULL`,
		variantID,
	).Scan(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) MarkNotified(ctx context.Context, db *gorm.DB, ids []snowflake.ID, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).Exec(
		`UPDATE waitlist_entries
		 SET notified_at = ?, updated_at = ?
		 WHERE id IN ? AND notified_at IS NULL`,
		now,
		now,
		ids,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.Entry, error) {
	var items []*domain.Entry
	stmt := db.WithContext(ctx).Model(&domain.Entry{})

	if filter.VariantID != nil {
		stmt = stmt.Where("variant_id = ?", *filter.VariantID)
	}
	if email := strings.TrimSpace(filter.Email); email != "" {
		stmt = stmt.Where("email = ?", email)
	}
	if filter.PendingOnly {
		stmt = stmt.Where("notified_at IS NULL")
	}
	if filter.Cursor != nil {
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)",
			filter.Cursor.CreatedAt,
			filter.Cursor.CreatedAt,
			filter.Cursor.ID,
		)
	}

	stmt = stmt.Order("created_at desc, id desc")
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit + 1)
	}

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
