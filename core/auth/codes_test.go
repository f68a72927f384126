package auth

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/storage/cache"
)

const testEmail = "hero@test.nz"

func TestVerificationStore_GenerateVerify(t *testing.T) {
	ctx := context.Background()
	c := cache.NewMemoryCache()
	vs := NewVerificationStore(newTestConfig(), c)

	code, err := vs.Generate(ctx, PurposeEmailVerification, testEmail)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)

	// stored hashed
	data, err := c.Get(ctx, codeKey(PurposeEmailVerification, testEmail))
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), code))

	// codes are bound to their purpose
	assert.Equal(t, ErrInvalidCode, vs.Verify(ctx, PurposePasswordReset, testEmail, code))

	assert.NoError(t, vs.Verify(ctx, PurposeEmailVerification, testEmail, code))
	// single use
	assert.Equal(t, ErrInvalidCode, vs.Verify(ctx, PurposeEmailVerification, testEmail, code))
}

func TestVerificationStore_attempts(t *testing.T) {
	ctx := context.Background()
	vs := NewVerificationStore(newTestConfig(), cache.NewMemoryCache())

	code, err := vs.Generate(ctx, PurposePasswordReset, testEmail)
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	assert.Equal(t, ErrInvalidCode, vs.Verify(ctx, PurposePasswordReset, testEmail, wrong))
	assert.Equal(t, ErrInvalidCode, vs.Verify(ctx, PurposePasswordReset, testEmail, wrong))
	assert.Equal(t, ErrCodeAttemptsExceeded, vs.Verify(ctx, PurposePasswordReset, testEmail, wrong))

	// the code is gone, even the right one fails
	assert.Equal(t, ErrInvalidCode, vs.Verify(ctx, PurposePasswordReset, testEmail, code))
}

func TestVerificationStore_concurrentGuesses(t *testing.T) {
	ctx := context.Background()
	conf := newTestConfig()
	vs := NewVerificationStore(conf, cache.NewMemoryCache())

	code, err := vs.Generate(ctx, PurposePasswordReset, testEmail)
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	var wg sync.WaitGroup
	var checked int32
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if vs.Verify(ctx, PurposePasswordReset, testEmail, wrong) == ErrInvalidCode {
				atomic.AddInt32(&checked, 1)
			}
		}()
	}
	wg.Wait()

	assert.True(t, checked < int32(conf.Auth.CodeMaxAttempts), "%d wrong guesses were checked", checked)
	assert.Equal(t, ErrInvalidCode, vs.Verify(ctx, PurposePasswordReset, testEmail, code))
}

func TestVerificationStore_concurrentConsume(t *testing.T) {
	ctx := context.Background()
	conf := newTestConfig()
	conf.Auth.CodeMaxAttempts = 100
	vs := NewVerificationStore(conf, cache.NewMemoryCache())

	code, err := vs.Generate(ctx, PurposeEmailVerification, testEmail)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var accepted int32
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if vs.Verify(ctx, PurposeEmailVerification, testEmail, code) == nil {
				atomic.AddInt32(&accepted, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted)
}

func TestVerificationStore_cooldown(t *testing.T) {
	ctx := context.Background()
	conf := newTestConfig()
	conf.Auth.CodeCooldown = time.Minute
	vs := NewVerificationStore(conf, cache.NewMemoryCache())

	first, err := vs.Generate(ctx, PurposeEmailVerification, testEmail)
	require.NoError(t, err)

	_, err = vs.Generate(ctx, PurposeEmailVerification, testEmail)
	require.Error(t, err)
	tmr, ok := err.(*core.TooManyRequestsError)
	require.True(t, ok)
	assert.True(t, tmr.RetryAfter > 0 && tmr.RetryAfter <= time.Minute)

	// other purposes have their own cooldown
	_, err = vs.Generate(ctx, PurposePasswordReset, testEmail)
	assert.NoError(t, err)

	require.NoError(t, vs.Clear(ctx, PurposeEmailVerification, testEmail))
	assert.Equal(t, ErrInvalidCode, vs.Verify(ctx, PurposeEmailVerification, testEmail, first))
	_, err = vs.Generate(ctx, PurposeEmailVerification, testEmail)
	assert.NoError(t, err)
}

func TestVerificationStore_sendLimit(t *testing.T) {
	ctx := context.Background()
	vs := NewVerificationStore(newTestConfig(), cache.NewMemoryCache())

	first, err := vs.Generate(ctx, PurposeEmailVerification, testEmail)
	require.NoError(t, err)
	second, err := vs.Generate(ctx, PurposeEmailVerification, testEmail)
	require.NoError(t, err)

	_, err = vs.Generate(ctx, PurposeEmailVerification, testEmail)
	require.Error(t, err)
	assert.IsType(t, &core.TooManyRequestsError{}, err)

	// a new code replaces the previous one
	if first != second {
		assert.Equal(t, ErrInvalidCode, vs.Verify(ctx, PurposeEmailVerification, testEmail, first))
	}
	assert.NoError(t, vs.Verify(ctx, PurposeEmailVerification, testEmail, second))
}
