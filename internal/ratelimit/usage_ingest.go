package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/tenantly/tenantly/internal/config"
)

const keyUsageIngestOrg = "usage:ingest:org:%s"

// UsageIngestLimiter throttles usage ingestion per organization. A nil
// limiter (rate limiting disabled) allows everything.
type UsageIngestLimiter struct {
	enabled bool

	bucket *TokenBucket

	orgRate  float64
	orgBurst int
}

func NewUsageIngestLimiter(cfg config.Config) (*UsageIngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.OrgRate <= 0 || limitCfg.OrgBurst <= 0 {
		return nil, errors.New("usage ingest org rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &UsageIngestLimiter{
		enabled:  true,
		bucket:   NewTokenBucket(client),
		orgRate:  limitCfg.OrgRate,
		orgBurst: limitCfg.OrgBurst,
	}, nil
}

func (l *UsageIngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *UsageIngestLimiter) AllowOrg(ctx context.Context, orgID snowflake.ID) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyUsageIngestOrg, orgID.String()), l.orgRate, l.orgBurst)
}

// RetryAfterSeconds rounds a retry hint up to whole seconds for the
// Retry-After response header.
func RetryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	secs := int((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
