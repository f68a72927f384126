package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/findclassnz/findclass/core"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

// testCacheContract runs the behaviour every core.Cache must share.
func testCacheContract(t *testing.T, c core.Cache) {
	ctx := context.Background()

	require.NoError(t, c.Ping(ctx))

	_, err := c.Get(ctx, "missing")
	assert.Equal(t, core.ErrCacheMiss, err)

	require.NoError(t, c.Set(ctx, "k1", []byte("v1"), 0))
	val, err := c.Get(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), val)

	ok, err := c.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := c.TTL(ctx, "k1")
	require.NoError(t, err)
	assert.Zero(t, ttl, "no expiry")

	require.NoError(t, c.Set(ctx, "k2", []byte("v2"), time.Minute))
	ttl, err = c.TTL(ctx, "k2")
	require.NoError(t, err)
	assert.InDelta(t, time.Minute, ttl, float64(time.Second))

	require.NoError(t, c.Delete(ctx, "k1", "k2", "missing"))
	ok, err = c.Exists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)

	for i := int64(1); i <= 3; i++ {
		n, err := c.Incr(ctx, "counter", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	val, err = c.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, "3", string(val))
	ttl, err = c.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.InDelta(t, time.Hour, ttl, float64(time.Second))

	require.NoError(t, c.Set(ctx, "text", []byte("lol"), 0))
	_, err = c.Incr(ctx, "text", 0)
	assert.Error(t, err)

	// Take hands the value to a single caller
	require.NoError(t, c.Set(ctx, "once", []byte("v"), time.Minute))
	var wg sync.WaitGroup
	var taken int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if val, err := c.Take(ctx, "once"); err == nil && string(val) == "v" {
				atomic.AddInt32(&taken, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), taken)
	_, err = c.Take(ctx, "once")
	assert.Equal(t, core.ErrCacheMiss, err)
}

func TestMemoryCache(t *testing.T) {
	testCacheContract(t, NewMemoryCache())
}

func TestRedisCache(t *testing.T) {
	_, client := newTestRedis(t)
	testCacheContract(t, NewRedisCache(client, "test:"))
}

func TestRedisCache_prefix(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewRedisCache(client, "findclass:")

	require.NoError(t, c.Set(context.Background(), "bl:abc", []byte("1"), 0))
	got, err := mr.Get("findclass:bl:abc")
	require.NoError(t, err)
	assert.Equal(t, "1", got)
}

func TestRedisCache_expiry(t *testing.T) {
	mr, client := newTestRedis(t)
	c := NewRedisCache(client, "")
	ctx := context.Background()

	_, err := c.Incr(ctx, "window", time.Minute)
	require.NoError(t, err)
	mr.FastForward(30 * time.Second)
	n, err := c.Incr(ctx, "window", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	mr.FastForward(31 * time.Second) // the window is not extended by later hits
	ok, err := c.Exists(ctx, "window")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCache_expiry(t *testing.T) {
	now := time.Now()
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	c := NewMemoryCache()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	_, err := c.Incr(ctx, "window", time.Minute)
	require.NoError(t, err)

	now = now.Add(30 * time.Second)
	n, err := c.Incr(ctx, "window", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	ttl, err := c.TTL(ctx, "window")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, ttl)

	now = now.Add(30 * time.Second)
	_, err = c.Get(ctx, "k")
	assert.Equal(t, core.ErrCacheMiss, err)
	ok, err := c.Exists(ctx, "window")
	require.NoError(t, err)
	assert.False(t, ok)
}
