package repository

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenantly/tenantly/internal/organization/domain"
	"gorm.io/gorm"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&domain.Organization{},
		&domain.OrganizationMember{},
	))
	return Provide(conn)
}

func TestSetStripeCustomerID_FirstWriteWins(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Organization{ID: 1, Name: "Acme", Slug: "acme"}))

	require.NoError(t, repo.SetStripeCustomerID(ctx, 1, "cus_first"))
	require.NoError(t, repo.SetStripeCustomerID(ctx, 1, "cus_second"))

	org, err := repo.Get(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, org.StripeCustomerID)
	assert.Equal(t, "cus_first", *org.StripeCustomerID)
}

func TestApplySubscriptionState_MonotonicGuard(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Organization{ID: 2, Name: "Acme", Slug: "acme"}))

	plan := "pro"
	newer := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)

	applied, err := repo.ApplySubscriptionState(ctx, 2, domain.SubscriptionState{
		SubscriptionID: "sub_1",
		Status:         domain.SubscriptionStatusActive,
		Plan:           &plan,
		SeatCount:      8,
	}, newer)
	require.NoError(t, err)
	assert.True(t, applied)

	// Out-of-order older delivery is skipped.
	applied, err = repo.ApplySubscriptionState(ctx, 2, domain.SubscriptionState{
		SubscriptionID: "sub_1",
		Status:         domain.SubscriptionStatusTrialing,
		SeatCount:      1,
	}, older)
	require.NoError(t, err)
	assert.False(t, applied)

	org, err := repo.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusActive, org.SubscriptionStatus)
	assert.Equal(t, int64(8), org.SeatCount)

	// Same timestamp re-applies, so redelivery converges.
	applied, err = repo.ApplySubscriptionState(ctx, 2, domain.SubscriptionState{
		SubscriptionID: "sub_1",
		Status:         domain.SubscriptionStatusActive,
		Plan:           &plan,
		SeatCount:      8,
	}, newer)
	require.NoError(t, err)
	assert.True(t, applied)
}

func TestMarkPastDue_LeavesPlanAndSeats(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Organization{ID: 3, Name: "Acme", Slug: "acme"}))

	plan := "pro"
	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	applied, err := repo.ApplySubscriptionState(ctx, 3, domain.SubscriptionState{
		SubscriptionID: "sub_1",
		Status:         domain.SubscriptionStatusActive,
		Plan:           &plan,
		SeatCount:      5,
	}, base)
	require.NoError(t, err)
	require.True(t, applied)

	applied, err = repo.MarkPastDue(ctx, 3, base.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, applied)

	org, err := repo.Get(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, domain.SubscriptionStatusPastDue, org.SubscriptionStatus)
	require.NotNil(t, org.SubscriptionPlan)
	assert.Equal(t, "pro", *org.SubscriptionPlan)
	assert.Equal(t, int64(5), org.SeatCount)

	// Stale dunning event after recovery is skipped.
	applied, err = repo.MarkPastDue(ctx, 3, base.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, applied)
}

func TestMemberRole(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Organization{ID: 4, Name: "Acme", Slug: "acme"}))
	require.NoError(t, repo.AddMember(ctx, &domain.OrganizationMember{
		ID: 40, OrgID: 4, UserID: 400, Role: domain.RoleAdmin,
	}))

	role, err := repo.MemberRole(ctx, 4, 400)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, role)

	_, err = repo.MemberRole(ctx, 4, 999)
	assert.ErrorIs(t, err, domain.ErrMembershipNotFound)
}

func TestGet_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.Get(context.Background(), 999)
	assert.ErrorIs(t, err, domain.ErrOrganizationNotFound)
}
