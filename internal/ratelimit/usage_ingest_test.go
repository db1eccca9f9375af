package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenantly/tenantly/internal/config"
)

func newTestLimiter(t *testing.T, rate float64, burst int) *UsageIngestLimiter {
	t.Helper()

	srv := miniredis.RunT(t)
	limiter, err := NewUsageIngestLimiter(config.Config{
		RateLimit: config.RateLimitConfig{
			Enabled:   true,
			RedisAddr: srv.Addr(),
			OrgRate:   rate,
			OrgBurst:  burst,
		},
	})
	require.NoError(t, err)
	require.True(t, limiter.Enabled())
	return limiter
}

func TestAllowOrg_BurstThenDeny(t *testing.T) {
	limiter := newTestLimiter(t, 1, 2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.AllowOrg(ctx, 4001)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d within burst", i+1)
	}

	res, err := limiter.AllowOrg(ctx, 4001)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))
}

func TestAllowOrg_BucketsArePerOrg(t *testing.T) {
	limiter := newTestLimiter(t, 1, 1)
	ctx := context.Background()

	res, err := limiter.AllowOrg(ctx, 4002)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = limiter.AllowOrg(ctx, 4002)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	// A different organization still has its full burst.
	res, err = limiter.AllowOrg(ctx, 4003)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestDisabledLimiterAllowsEverything(t *testing.T) {
	limiter, err := NewUsageIngestLimiter(config.Config{})
	require.NoError(t, err)
	require.False(t, limiter.Enabled())

	res, err := limiter.AllowOrg(context.Background(), 4004)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestNewUsageIngestLimiter_Validation(t *testing.T) {
	_, err := NewUsageIngestLimiter(config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true},
	})
	assert.Error(t, err)

	_, err = NewUsageIngestLimiter(config.Config{
		RateLimit: config.RateLimitConfig{Enabled: true, RedisAddr: "localhost:6379"},
	})
	assert.Error(t, err)
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, 1, RetryAfterSeconds(0))
	assert.Equal(t, 1, RetryAfterSeconds(300*time.Millisecond))
	assert.Equal(t, 2, RetryAfterSeconds(1100*time.Millisecond))
}
