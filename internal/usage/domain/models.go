// Package domain contains persistence models for the usage ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// UsageRecord stores a single unit of billable activity. Records are
// append-only: never updated or deleted by this service.
type UsageRecord struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"not null;index;uniqueIndex:ux_usage_dedupe,priority:1" json:"org_id"`

	// Dimension is an opaque application-defined key, e.g. api_calls.
	Dimension string `gorm:"type:text;not null;uniqueIndex:ux_usage_dedupe,priority:2" json:"dimension"`
	Quantity  int64  `gorm:"not null" json:"quantity"`

	// RecordedAt is event time, caller-supplied or defaulted to record time.
	RecordedAt time.Time `gorm:"not null;index" json:"recorded_at"`

	// IdempotencyKey identifies the logical event within (org, dimension).
	// NULL keys never conflict; non-null keys are unique per pair.
	IdempotencyKey *string `gorm:"type:text;uniqueIndex:ux_usage_dedupe,priority:3" json:"idempotency_key"`

	Metadata  datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`
	CreatedAt time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (UsageRecord) TableName() string { return "usage_records" }
