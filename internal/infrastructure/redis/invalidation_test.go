package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvalidationBus_DeliversToEverySubscriber(t *testing.T) {
	_, client := newMiniRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	received := map[string][]string{}
	for _, name := range []string{"a", "b"} {
		name := name
		bus := NewInvalidationBus(client, "herdbook:invalidate", nil)
		require.NoError(t, bus.Subscribe(ctx, func(key string) {
			mu.Lock()
			defer mu.Unlock()
			received[name] = append(received[name], key)
		}))
	}

	publisher := NewInvalidationBus(client, "herdbook:invalidate", nil)
	require.NoError(t, publisher.Publish(ctx, "org:1:profile:2"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received["a"]) == 1 && len(received["b"]) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "org:1:profile:2", received["a"][0])
}

func TestInvalidationBus_OtherChannelIgnored(t *testing.T) {
	_, client := newMiniRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	bus := NewInvalidationBus(client, "herdbook:invalidate", nil)
	require.NoError(t, bus.Subscribe(ctx, func(key string) { got <- key }))

	other := NewInvalidationBus(client, "elsewhere", nil)
	require.NoError(t, other.Publish(ctx, "k"))
	require.NoError(t, bus.Publish(ctx, "mine"))

	select {
	case key := <-got:
		assert.Equal(t, "mine", key)
	case <-time.After(2 * time.Second):
		t.Fatal("invalidation not delivered")
	}
}

func TestInvalidationBus_SubscribeFailsWhenRedisDown(t *testing.T) {
	mr, client := newMiniRedis(t)
	mr.Close()

	bus := NewInvalidationBus(client, "herdbook:invalidate", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.Error(t, bus.Subscribe(ctx, func(string) {}))
}
