// Package cache provides the core.Cache implementations: Redis for deployments, in-memory for tests and DEV.
package cache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/findclassnz/findclass/core"
)

// incrScript increments a counter and only sets its expiry on the first hit (fixed window).
var incrScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 and tonumber(ARGV[1]) > 0 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

type redisCache struct {
	client redis.UniversalClient
	prefix string
}

var _ core.Cache = (*redisCache)(nil)

func NewRedisClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Cache.RedisAddr,
		Password: conf.Cache.RedisPassword,
		DB:       conf.Cache.RedisDB,
	})
}

// NewRedisCache returns a core.Cache storing every key under prefix.
func NewRedisCache(client redis.UniversalClient, prefix string) core.Cache {
	return &redisCache{client: client, prefix: prefix}
}

func (c *redisCache) key(k string) string { return c.prefix + k }

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, core.ErrCacheMiss
		}
		return nil, errors.Wrap(err, "redis get")
	}
	return val, nil
}

func (c *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return errors.Wrap(c.client.Set(ctx, c.key(key), val, ttl).Err(), "redis set")
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, 0, len(keys))
	for _, k := range keys {
		prefixed = append(prefixed, c.key(k))
	}
	return errors.Wrap(c.client.Del(ctx, prefixed...).Err(), "redis del")
}

func (c *redisCache) Take(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.GetDel(ctx, c.key(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, core.ErrCacheMiss
		}
		return nil, errors.Wrap(err, "redis getdel")
	}
	return val, nil
}

func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.client.Exists(ctx, c.key(key)).Result()
	if err != nil {
		return false, errors.Wrap(err, "redis exists")
	}
	return n > 0, nil
}

func (c *redisCache) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := incrScript.Run(ctx, c.client, []string{c.key(key)}, ttl.Milliseconds()).Int64()
	if err != nil {
		return 0, errors.Wrap(err, "redis incr")
	}
	return count, nil
}

func (c *redisCache) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.client.PTTL(ctx, c.key(key)).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis pttl")
	}
	if ttl < 0 { // -1: no expiry, -2: missing key
		return 0, nil
	}
	return ttl, nil
}

func (c *redisCache) Ping(ctx context.Context) error {
	return errors.Wrap(c.client.Ping(ctx).Err(), "redis ping")
}
