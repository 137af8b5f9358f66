package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache implements ports.Cache using a Redis client. Every key is
// namespaced under prefix so several deployments can share one Redis.
type RedisCache struct {
	r      redis.Cmdable
	prefix string
}

// NewRedisCache creates a new Redis-backed cache.
func NewRedisCache(r redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{r: r, prefix: prefix}
}

func (c *RedisCache) namespaced(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + ":" + key
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.r.Get(ctx, c.namespaced(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis cache get %s: %w", key, err)
	}
	return val, true, nil
}

// Set stores value under key. A non-positive ttl is rejected; entries in this
// cache must always expire.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("redis cache set %s: ttl must be positive", key)
	}
	if err := c.r.Set(ctx, c.namespaced(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis cache set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, key string) error {
	if err := c.r.Del(ctx, c.namespaced(key)).Err(); err != nil {
		return fmt.Errorf("redis cache delete %s: %w", key, err)
	}
	return nil
}
