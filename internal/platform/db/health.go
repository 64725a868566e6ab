package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/swasthyaflow/intake/internal/platform/health"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
	}
}

// HealthCheck pings the database and reports pool statistics.
func HealthCheck(pool *pgxpool.Pool) health.Check {
	return health.Check{
		Name: "database",
		Probe: func(ctx context.Context) (interface{}, error) {
			err := pool.Ping(ctx)
			return GetPoolStats(pool), err
		},
	}
}
