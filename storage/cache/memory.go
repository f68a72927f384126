package cache

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
)

var nowFunc = time.Now // mockable

type memEntry struct {
	val       []byte
	expiresAt time.Time // zero: never
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// memoryCache is a mutex protected map with lazy expiry, for tests and local runs.
type memoryCache struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

var _ core.Cache = (*memoryCache)(nil)

func NewMemoryCache() core.Cache {
	return &memoryCache{entries: make(map[string]memEntry)}
}

// get must be called with mu held.
func (c *memoryCache) get(key string) (memEntry, bool) {
	entry, ok := c.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if entry.expired(nowFunc()) {
		delete(c.entries, key)
		return memEntry{}, false
	}
	return entry, true
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.get(key)
	if !ok {
		return nil, core.ErrCacheMiss
	}
	val := make([]byte, len(entry.val))
	copy(val, entry.val)
	return val, nil
}

func (c *memoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memEntry{val: append([]byte(nil), val...)}
	if ttl > 0 {
		entry.expiresAt = nowFunc().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}

func (c *memoryCache) Take(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.get(key)
	if !ok {
		return nil, core.ErrCacheMiss
	}
	delete(c.entries, key)
	return entry.val, nil
}

func (c *memoryCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.get(key)
	return ok, nil
}

func (c *memoryCache) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.get(key)
	var count int64
	if ok {
		var err error
		if count, err = strconv.ParseInt(string(entry.val), 10, 64); err != nil {
			return 0, errors.Wrapf(err, "incrementing %q: value is not an integer", key)
		}
	} else if ttl > 0 {
		entry.expiresAt = nowFunc().Add(ttl)
	}
	count++
	entry.val = []byte(strconv.FormatInt(count, 10))
	c.entries[key] = entry
	return count, nil
}

func (c *memoryCache) TTL(_ context.Context, key string) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.get(key)
	if !ok || entry.expiresAt.IsZero() {
		return 0, nil
	}
	return entry.expiresAt.Sub(nowFunc()), nil
}

func (c *memoryCache) Ping(context.Context) error { return nil }
