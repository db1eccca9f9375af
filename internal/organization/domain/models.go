// Package domain contains persistence models for organizations and their
// billing snapshot.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// SubscriptionStatus mirrors the payment provider's subscription lifecycle
// states. Values are provider-controlled and passed through unchanged.
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
)

// Organization represents a tenant together with its locally cached billing
// snapshot. The snapshot columns (status/plan/seat_count) are derived state:
// they are always reproducible from the provider's latest subscription
// object and are authoritatively written only by the webhook reconciler.
type Organization struct {
	ID           snowflake.ID      `gorm:"primaryKey" json:"id"`
	Name         string            `gorm:"type:text;not null" json:"name"`
	Slug         string            `gorm:"type:text;not null;uniqueIndex:ux_organizations_slug" json:"slug"`
	SupportEmail string            `gorm:"type:text;column:support_email" json:"support_email"`
	Metadata     datatypes.JSONMap `gorm:"type:jsonb" json:"metadata"`

	StripeCustomerID     *string            `gorm:"type:text;uniqueIndex:ux_organizations_stripe_customer" json:"stripe_customer_id"`
	StripeSubscriptionID *string            `gorm:"type:text" json:"stripe_subscription_id"`
	SubscriptionStatus   SubscriptionStatus `gorm:"type:text" json:"subscription_status"`
	SubscriptionPlan     *string            `gorm:"type:text" json:"subscription_plan"`
	SeatCount            int64              `gorm:"not null;default:0" json:"seat_count"`

	// SnapshotEventAt is the provider timestamp of the last event applied to
	// the snapshot columns; older events are skipped.
	SnapshotEventAt *time.Time `gorm:"column:snapshot_event_at" json:"snapshot_event_at"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

// TableName sets the database table name.
func (Organization) TableName() string { return "organizations" }

// Membership roles, ordered by privilege.
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// OrganizationMember represents membership of a user in an organization.
type OrganizationMember struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID     snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:1" json:"org_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_org_user,priority:2" json:"user_id"`
	Role      string       `gorm:"type:text;not null" json:"role"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (OrganizationMember) TableName() string { return "organization_members" }

// SubscriptionState is the mapped billing snapshot derived from a provider
// subscription object. An empty SubscriptionID clears the stored id; a nil
// Plan means no recognized base plan.
type SubscriptionState struct {
	SubscriptionID string
	Status         SubscriptionStatus
	Plan           *string
	SeatCount      int64
}
