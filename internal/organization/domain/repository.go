package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrOrganizationNotFound = errors.New("organization_not_found")
	ErrMembershipNotFound   = errors.New("membership_not_found")
)

// Repository persists organizations and their billing snapshot.
//
// Writer discipline: the billing command service writes identifier fields
// only (SetStripeCustomerID); ApplySubscriptionState and MarkPastDue are
// reserved for the webhook reconciler, which owns status/plan/seat_count.
type Repository interface {
	Create(ctx context.Context, org *Organization) error
	Get(ctx context.Context, id snowflake.ID) (*Organization, error)

	// SetStripeCustomerID records the provider customer id. The column is
	// set-once: a second call with a different id is a no-op.
	SetStripeCustomerID(ctx context.Context, orgID snowflake.ID, customerID string) error

	// ApplySubscriptionState overwrites the snapshot columns with the mapped
	// state, guarded by the event timestamp: the write is skipped (returning
	// false) when a newer event has already been applied.
	ApplySubscriptionState(ctx context.Context, orgID snowflake.ID, state SubscriptionState, eventAt time.Time) (bool, error)

	// MarkPastDue overwrites subscription_status only, leaving plan and seat
	// count untouched. Same monotonic guard as ApplySubscriptionState.
	MarkPastDue(ctx context.Context, orgID snowflake.ID, eventAt time.Time) (bool, error)

	AddMember(ctx context.Context, member *OrganizationMember) error
	MemberRole(ctx context.Context, orgID, userID snowflake.ID) (string, error)
}
