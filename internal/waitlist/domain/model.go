package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Entry struct {
	ID         snowflake.ID `json:"id" gorm:"primaryKey"`
	Email      string       `json:"email"`
	VariantID  snowflake.ID `json:"variant_id"`
	NotifiedAt *time.Time   `json:"notified_at,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

func (Entry) TableName() string { return "waitlist_entries" }

func (e Entry) Pending() bool {
	return e.NotifiedAt == nil
}
