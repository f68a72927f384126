// Package ratelimit implements fixed-window counters on top of core.Cache.
package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
)

const defaultMessage = "too many requests"

// Limiter allows at most Max hits per identifier within Window.
// The window starts on the first hit and is never extended.
type Limiter struct {
	cache   core.Cache
	prefix  string
	max     int
	window  time.Duration
	message string
}

func New(cache core.Cache, prefix string, max int, window time.Duration, message ...string) *Limiter {
	msg := defaultMessage
	if len(message) > 0 && message[0] != "" {
		msg = message[0]
	}
	return &Limiter{
		cache:   cache,
		prefix:  "rl:" + prefix + ":",
		max:     max,
		window:  window,
		message: msg,
	}
}

func (l *Limiter) key(id string) string { return l.prefix + id }

// Allow counts a hit for id and returns a core.TooManyRequestsError once the budget is spent.
func (l *Limiter) Allow(ctx context.Context, id string) error {
	if l.max <= 0 {
		return nil
	}
	count, err := l.cache.Incr(ctx, l.key(id), l.window)
	if err != nil {
		return errors.Wrap(err, "incrementing rate counter")
	}
	if count > int64(l.max) {
		return l.limited(ctx, id)
	}
	return nil
}

func (l *Limiter) Count(ctx context.Context, id string) (int64, error) {
	val, err := l.cache.Get(ctx, l.key(id))
	if err != nil {
		if errors.Cause(err) == core.ErrCacheMiss {
			return 0, nil
		}
		return 0, errors.Wrap(err, "getting rate counter")
	}
	count, err := strconv.ParseInt(string(val), 10, 64)
	return count, errors.Wrapf(err, "parsing rate counter %q", val)
}

func (l *Limiter) Reset(ctx context.Context, id string) error {
	return errors.Wrap(l.cache.Delete(ctx, l.key(id)), "resetting rate counter")
}

func (l *Limiter) limited(ctx context.Context, id string) error {
	retryAfter, err := l.cache.TTL(ctx, l.key(id))
	if err != nil || retryAfter <= 0 {
		retryAfter = l.window
	}
	return core.NewTooManyRequestsError(l.message, retryAfter)
}
