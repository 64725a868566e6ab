// Package cache builds the shared Redis client.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/swasthyaflow/intake/internal/platform/health"
)

// NewClient connects to the Redis instance at redisURL
// (redis://[:password@]host:port/db) and verifies it answers.
func NewClient(ctx context.Context, redisURL string, log zerolog.Logger) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().Str("addr", opts.Addr).Int("db", opts.DB).Msg("redis client ready")
	return client, nil
}

// HealthCheck pings Redis.
func HealthCheck(client *redis.Client) health.Check {
	return health.Check{
		Name: "redis",
		Probe: func(ctx context.Context) (interface{}, error) {
			stats := client.PoolStats()
			return map[string]uint32{
				"total_conns": stats.TotalConns,
				"idle_conns":  stats.IdleConns,
			}, client.Ping(ctx).Err()
		},
	}
}
