package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/storefront/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionPaymentMeansRecorded = "payment.means_recorded"
	ActionPaymentRefunded      = "payment.refunded"
	ActionPaymentVoided        = "payment.voided"
	ActionDescriptionGenerated = "product.description_generated"

	TargetTypePayment = "payment"
	TargetTypeProduct = "product"

	// ActorSystem marks entries written by workers, schedulers and gateway callbacks.
	ActorSystem = "system"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	Action     string            `json:"action"`
	TargetType string            `json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	Actor      string            `json:"actor"`
	Metadata   datatypes.JSONMap `json:"metadata"`
	RequestID  *string           `json:"request_id,omitempty"`
	ClientIP   *string           `json:"client_ip,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	Actor      string
	Action     string
	TargetType string
	TargetID   string
	Cursor     *AuditCursor
	Limit      int
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Actor      string `form:"actor"`
	Action     string `form:"action"`
	TargetType string `form:"target_type"`
	TargetID   string `form:"target_id"`
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}

// Service records admin and payment side effects. The actor and client ip
// are taken from the request context.
type Service interface {
	AuditLog(ctx context.Context, action string, targetType string, targetID *string, metadata map[string]any) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidAction    = errors.New("invalid_action")
)
