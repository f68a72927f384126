package auth

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/ratelimit"
)

// Verification code purposes
const (
	PurposeEmailVerification = "email_verification"
	PurposePasswordReset     = "password_reset"
)

// VerificationStore issues one-time numeric codes, keyed by purpose and email and stored hashed.
type VerificationStore struct {
	cache       core.Cache
	secret      []byte
	length      int
	ttl         time.Duration
	maxAttempts int
	cooldown    time.Duration
	sendLimiter *ratelimit.Limiter
}

func NewVerificationStore(conf *core.Config, cache core.Cache) *VerificationStore {
	return &VerificationStore{
		cache:       cache,
		secret:      []byte(conf.SecretKey),
		length:      conf.Auth.CodeLength,
		ttl:         conf.Auth.CodeTTL,
		maxAttempts: conf.Auth.CodeMaxAttempts,
		cooldown:    conf.Auth.CodeCooldown,
		sendLimiter: ratelimit.New(cache, "vc-send", conf.Auth.CodeSendLimit, conf.Auth.CodeSendWindow,
			"too many verification codes requested"),
	}
}

func (vs *VerificationStore) TTL() time.Duration { return vs.ttl }

func codeKey(purpose, email string) string     { return "vc:" + purpose + ":" + email }
func cooldownKey(purpose, email string) string { return "vc-cd:" + purpose + ":" + email }
func attemptsKey(purpose, email string) string { return "vc-at:" + purpose + ":" + email }

func (vs *VerificationStore) hash(purpose, email, code string) string {
	mac := hmac.New(sha256.New, vs.secret)
	_, _ = fmt.Fprintf(mac, "%s|%s|%s", purpose, email, code)
	return hex.EncodeToString(mac.Sum(nil))
}

func (vs *VerificationStore) newCode() (string, error) {
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(vs.length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", errors.Wrap(err, "generating random code")
	}
	return fmt.Sprintf("%0*d", vs.length, n), nil
}

// Generate issues a new code for purpose and email, replacing any previous one.
// It returns a core.TooManyRequestsError while the resend cooldown runs or once the send budget is spent.
func (vs *VerificationStore) Generate(ctx context.Context, purpose, email string) (string, error) {
	if vs.cooldown > 0 {
		ttl, err := vs.cache.TTL(ctx, cooldownKey(purpose, email))
		if err != nil {
			return "", errors.Wrap(err, "checking code cooldown")
		}
		if ttl > 0 {
			return "", core.NewTooManyRequestsError("please wait before requesting a new code", ttl)
		}
	}
	if err := vs.sendLimiter.Allow(ctx, purpose+":"+email); err != nil {
		return "", err
	}

	code, err := vs.newCode()
	if err != nil {
		return "", err
	}
	if err = vs.cache.Set(ctx, codeKey(purpose, email), []byte(vs.hash(purpose, email, code)), vs.ttl); err != nil {
		return "", errors.Wrap(err, "storing code")
	}
	if err = vs.cache.Delete(ctx, attemptsKey(purpose, email)); err != nil {
		return "", errors.Wrap(err, "resetting code attempts")
	}
	if vs.cooldown > 0 {
		if err = vs.cache.Set(ctx, cooldownKey(purpose, email), []byte("1"), vs.cooldown); err != nil {
			return "", errors.Wrap(err, "storing code cooldown")
		}
	}
	return code, nil
}

// Verify consumes the code on success. Every submission counts an attempt before the code is
// compared; the code is dropped once the attempts are exhausted.
func (vs *VerificationStore) Verify(ctx context.Context, purpose, email, code string) error {
	key := codeKey(purpose, email)
	stored, err := vs.cache.Get(ctx, key)
	if err != nil {
		if errors.Cause(err) == core.ErrCacheMiss {
			return ErrInvalidCode
		}
		return errors.Wrap(err, "getting code")
	}

	attempts, err := vs.cache.Incr(ctx, attemptsKey(purpose, email), vs.ttl)
	if err != nil {
		return errors.Wrap(err, "counting code attempts")
	}
	if attempts > int64(vs.maxAttempts) {
		return vs.drop(ctx, purpose, email)
	}

	hash := []byte(vs.hash(purpose, email, code))
	if !hmac.Equal(stored, hash) {
		if attempts >= int64(vs.maxAttempts) {
			return vs.drop(ctx, purpose, email)
		}
		return ErrInvalidCode
	}

	// only one of concurrent submissions takes the code
	taken, err := vs.cache.Take(ctx, key)
	if err != nil {
		if errors.Cause(err) == core.ErrCacheMiss {
			return ErrInvalidCode
		}
		return errors.Wrap(err, "consuming code")
	}
	if !hmac.Equal(taken, hash) {
		// a new code was issued meanwhile
		if err = vs.cache.Set(ctx, key, taken, vs.ttl); err != nil {
			return errors.Wrap(err, "restoring code")
		}
		return ErrInvalidCode
	}
	return errors.Wrap(vs.cache.Delete(ctx, attemptsKey(purpose, email)), "clearing code attempts")
}

func (vs *VerificationStore) drop(ctx context.Context, purpose, email string) error {
	if err := vs.cache.Delete(ctx, codeKey(purpose, email), attemptsKey(purpose, email)); err != nil {
		return errors.Wrap(err, "dropping code")
	}
	return ErrCodeAttemptsExceeded
}

// Clear drops the pending code and its cooldown.
func (vs *VerificationStore) Clear(ctx context.Context, purpose, email string) error {
	keys := []string{codeKey(purpose, email), attemptsKey(purpose, email), cooldownKey(purpose, email)}
	return errors.Wrap(vs.cache.Delete(ctx, keys...), "clearing code")
}
