package core

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

var ErrCacheMiss = errors.New("cache: key not found")

// Cache is the key/value store backing sessions blacklist, verification codes and rate limits.
type Cache interface {
	// Get returns ErrCacheMiss when the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores val under key; a zero ttl means no expiry.
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Take atomically gets and deletes key. Concurrent callers never both get the value.
	Take(ctx context.Context, key string) ([]byte, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Incr increments the counter under key and sets ttl on its first increment (fixed window).
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// TTL returns the remaining time to live of key, 0 if the key does not exist or never expires.
	TTL(ctx context.Context, key string) (time.Duration, error)
	Ping(ctx context.Context) error
}
