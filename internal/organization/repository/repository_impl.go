package repository

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/tenantly/tenantly/internal/organization/domain"
	"gorm.io/gorm"
)

type repo struct {
	db *gorm.DB
}

// Provide builds the gorm-backed organization repository.
func Provide(db *gorm.DB) domain.Repository {
	return &repo{db: db}
}

func (r *repo) Create(ctx context.Context, org *domain.Organization) error {
	return r.db.WithContext(ctx).Create(org).Error
}

func (r *repo) Get(ctx context.Context, id snowflake.ID) (*domain.Organization, error) {
	var org domain.Organization
	err := r.db.WithContext(ctx).First(&org, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrOrganizationNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (r *repo) SetStripeCustomerID(ctx context.Context, orgID snowflake.ID, customerID string) error {
	// First write wins; retries and races cannot overwrite an existing id.
	return r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("id = ? AND stripe_customer_id IS NULL", orgID).
		Updates(map[string]any{
			"stripe_customer_id": customerID,
			"updated_at":         time.Now().UTC(),
		}).Error
}

func (r *repo) ApplySubscriptionState(ctx context.Context, orgID snowflake.ID, state domain.SubscriptionState, eventAt time.Time) (bool, error) {
	var subscriptionID any
	if state.SubscriptionID != "" {
		subscriptionID = state.SubscriptionID
	}
	var plan any
	if state.Plan != nil {
		plan = *state.Plan
	}

	// Single guarded UPDATE: the overwrite and the staleness check are one
	// atomic statement, so concurrent deliveries for the same organization
	// serialize on the row.
	result := r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("id = ?", orgID).
		Where("snapshot_event_at IS NULL OR snapshot_event_at <= ?", eventAt).
		Updates(map[string]any{
			"stripe_subscription_id": subscriptionID,
			"subscription_status":    state.Status,
			"subscription_plan":      plan,
			"seat_count":             state.SeatCount,
			"snapshot_event_at":      eventAt,
			"updated_at":             time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) MarkPastDue(ctx context.Context, orgID snowflake.ID, eventAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&domain.Organization{}).
		Where("id = ?", orgID).
		Where("snapshot_event_at IS NULL OR snapshot_event_at <= ?", eventAt).
		Updates(map[string]any{
			"subscription_status": domain.SubscriptionStatusPastDue,
			"snapshot_event_at":   eventAt,
			"updated_at":          time.Now().UTC(),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) AddMember(ctx context.Context, member *domain.OrganizationMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *repo) MemberRole(ctx context.Context, orgID, userID snowflake.ID) (string, error) {
	var member domain.OrganizationMember
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND user_id = ?", orgID, userID).
		First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", domain.ErrMembershipNotFound
		}
		return "", err
	}
	return member.Role, nil
}
