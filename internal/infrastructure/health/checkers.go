package health

import (
	"context"
	"fmt"

	"github.com/avatarctic/herdbook/go/internal/core/ports"
	infraDB "github.com/avatarctic/herdbook/go/internal/infrastructure/db"
	"github.com/go-redis/redis/v8"
)

// dbHealthChecker wraps the database for health checks.
type dbHealthChecker struct{ db *infraDB.Database }

func (d *dbHealthChecker) Name() string { return "database" }
func (d *dbHealthChecker) Check(ctx context.Context) error {
	if err := d.db.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// redisHealthChecker wraps the redis client for health checks. The profile
// cache, sessions and invalidation bus all depend on it.
type redisHealthChecker struct{ client redis.Cmdable }

func (r *redisHealthChecker) Name() string { return "redis" }
func (r *redisHealthChecker) Check(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// NewDBHealthChecker creates a health checker for the database.
func NewDBHealthChecker(db *infraDB.Database) ports.HealthChecker { return &dbHealthChecker{db: db} }

// NewRedisHealthChecker creates a health checker for Redis.
func NewRedisHealthChecker(client redis.Cmdable) ports.HealthChecker {
	return &redisHealthChecker{client: client}
}
