package auth

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	apperrors "aeroclaim.io/aeroclaim/internal/pkg/errors"
	"aeroclaim.io/aeroclaim/internal/pkg/logger"
)

// Sliding-window limits from the abuse policy. Window membership is by
// attempt time; over-limit attempts still count toward the window.
const (
	loginIPLimit     = 5
	loginIPWindow    = time.Minute
	loginEmailLimit  = 20
	loginEmailWindow = time.Hour

	magicLinkLimit  = 3
	magicLinkWindow = time.Hour

	resetLimit  = 3
	resetWindow = time.Hour
)

// Limiter implements sliding-window rate limits and the login failure
// counter on Redis. Redis outages fail open: losing rate limiting is
// preferable to losing login.
type Limiter struct {
	rdb redis.UniversalClient
	now func() time.Time
}

// NewLimiter wraps a Redis client.
func NewLimiter(rdb redis.UniversalClient) *Limiter {
	return &Limiter{rdb: rdb, now: time.Now}
}

// Allow records one attempt under key and reports whether the sliding
// window still has room. The attempt is recorded before the decision so
// rejected attempts also count.
func (l *Limiter) Allow(ctx context.Context, key string, limit int, window time.Duration) error {
	now := l.now().UTC()
	windowStart := now.Add(-window)

	member := strconv.FormatInt(now.UnixNano(), 10) + ":" + uuid.NewString()

	pipe := l.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixMilli(), 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: member})
	card := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		logger.Warn("rate limiter unavailable, allowing request",
			zap.String("key", key), zap.Error(err))
		return nil
	}

	if card.Val() > int64(limit) {
		return apperrors.RateLimited(apperrors.CodeRateLimited, "too many requests, slow down")
	}
	return nil
}

// Bump increments the consecutive-failure counter under key and returns
// the new count. The key expires after ttl so stale counters decay.
func (l *Limiter) Bump(ctx context.Context, key string, ttl time.Duration) (int, error) {
	pipe := l.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("bump counter %s: %w", key, err)
	}
	return int(incr.Val()), nil
}

// Clear removes a failure counter, typically after a successful login.
func (l *Limiter) Clear(ctx context.Context, key string) {
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		logger.Warn("failed to clear counter", zap.String("key", key), zap.Error(err))
	}
}
