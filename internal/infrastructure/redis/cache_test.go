package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisCache_SetGetDelete(t *testing.T) {
	mr, client := newMiniRedis(t)
	cache := NewRedisCache(client, "herdbook")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
	assert.True(t, mr.Exists("herdbook:k"))

	got, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, cache.Delete(ctx, "k"))
	_, ok, err = cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_EntriesExpire(t *testing.T) {
	mr, client := newMiniRedis(t)
	cache := NewRedisCache(client, "")
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Second))
	assert.True(t, mr.Exists("k"))
	mr.FastForward(2 * time.Second)

	_, ok, err := cache.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCache_RejectsNonPositiveTTL(t *testing.T) {
	mr, client := newMiniRedis(t)
	cache := NewRedisCache(client, "herdbook")

	assert.Error(t, cache.Set(context.Background(), "k", []byte("v"), 0))
	assert.False(t, mr.Exists("herdbook:k"))
}

func TestRedisCache_BackendErrorsSurface(t *testing.T) {
	mr, client := newMiniRedis(t)
	cache := NewRedisCache(client, "herdbook")
	mr.Close()

	_, ok, err := cache.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.False(t, ok)
}
