package auth

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
)

const blacklistPrefix = "bl:"

// Blacklist holds revoked token ids until the tokens expire on their own.
type Blacklist struct {
	cache core.Cache
}

func NewBlacklist(cache core.Cache) *Blacklist {
	return &Blacklist{cache: cache}
}

// Add blacklists jti until expiresAt. Already expired tokens are skipped.
func (b *Blacklist) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(nowFunc())
	if ttl <= 0 {
		return nil
	}
	return errors.Wrap(b.cache.Set(ctx, blacklistPrefix+jti, []byte("1"), ttl), "blacklisting token")
}

func (b *Blacklist) Contains(ctx context.Context, jti string) (bool, error) {
	ok, err := b.cache.Exists(ctx, blacklistPrefix+jti)
	return ok, errors.Wrap(err, "checking token blacklist")
}
