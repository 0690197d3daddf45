package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/storefront/internal/audit/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO audit_logs (
			id, action, target_type, target_id, actor, metadata, request_id, client_ip, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.Action,
		entry.TargetType,
		entry.TargetID,
		entry.Actor,
		entry.Metadata,
		entry.RequestID,
		entry.ClientIP,
		entry.CreatedAt,
	).Error
}

// List returns newest entries first, one row past filter.Limit so callers can
// tell whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]*domain.AuditLog, error) {
	clauses := make([]string, 0, 5)
	args := make([]any, 0, 8)

	for _, eq := range []struct {
		column string
		value  string
	}{
		{"actor", filter.Actor},
		{"action", filter.Action},
		{"target_type", filter.TargetType},
		{"target_id", filter.TargetID},
	} {
		if eq.value == "" {
			continue
		}
		clauses = append(clauses, eq.column+" = ?")
		args = append(args, eq.value)
	}
	if filter.Cursor != nil {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.CreatedAt, filter.Cursor.ID)
	}

	query := `SELECT id, action, target_type, target_id, actor, metadata, request_id, client_ip, created_at
		FROM audit_logs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit+1)
	}

	var logs []*domain.AuditLog
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
