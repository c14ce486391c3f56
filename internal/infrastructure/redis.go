package infrastructure

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"aeroclaim.io/aeroclaim/internal/config"
)

// NewRedisClient connects the rate-limit and lockout counter store.
// Redis here is ephemeral bookkeeping; losing it resets counters but
// never loses domain state (ADR-0002: the queue lives in Postgres).
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
