package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// Session is the server side record of one issued token.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	JTI       string    `json:"-"`
	TokenHash string    `json:"-"`
	TokenType string    `json:"token_type"`
	UserAgent string    `json:"user_agent"`
	ClientIP  string    `json:"client_ip"`
	ExpiresAt time.Time `json:"expires_at"` // UTC
	RevokedAt time.Time `json:"-"`          // UTC; zero if active
	CreatedAt time.Time `json:"created_at"` // UTC
	Current   bool      `json:"current"`    // not persisted
}

func (s Session) IsRevoked() bool { return !s.RevokedAt.IsZero() }

func (s Session) IsActive(now time.Time) bool {
	return !s.IsRevoked() && now.Before(s.ExpiresAt)
}

func (s Session) MatchesToken(token string) bool {
	return subtle.ConstantTimeCompare([]byte(s.TokenHash), []byte(HashToken(token))) == 1
}

// SessionRepository persists sessions.
type SessionRepository interface {
	CreateSession(ctx context.Context, sess Session) error
	// GetSessionByJTI returns ErrSessionNotFound if no session has jti.
	GetSessionByJTI(ctx context.Context, jti string) (Session, error)
	// QueryUserSessions lists the non-revoked sessions of a user that are still valid at `at`, newest first.
	QueryUserSessions(ctx context.Context, userID string, at time.Time) ([]Session, error)
	// RevokeSession returns ErrSessionNotFound if no session has jti. Revoking twice keeps the first timestamp
	// and only the call that actually revoked the session gets true.
	RevokeSession(ctx context.Context, jti string, at time.Time) (bool, error)
	// RevokeUserSessions revokes every active session of a user and returns them.
	RevokeUserSessions(ctx context.Context, userID string, at time.Time) ([]Session, error)
	// DeleteExpiredSessions deletes the sessions expired before `before` and returns how many were deleted.
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error)
}

// HashToken returns the hex encoded SHA-256 of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
