package inmemdb

import (
	"context"
	"time"

	"github.com/findclassnz/findclass/core/auth"
)

type sessionRepository struct {
	db *DB
}

var _ auth.SessionRepository = (*sessionRepository)(nil)

func NewSessionRepository(db *DB) auth.SessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(_ context.Context, sess auth.Session) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sess.Current = false
	repo.db.sessions[sess.JTI] = &sess
	return nil
}

func (repo *sessionRepository) GetSessionByJTI(_ context.Context, jti string) (auth.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if sess, ok := repo.db.sessions[jti]; ok {
		return *sess, nil
	}
	return auth.Session{}, auth.ErrSessionNotFound
}

func (repo *sessionRepository) QueryUserSessions(_ context.Context, userID string, at time.Time) ([]auth.Session, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	sessions := make([]auth.Session, 0)
	for _, sess := range repo.db.sessions {
		if sess.UserID == userID && sess.IsActive(at) {
			sessions = append(sessions, *sess)
		}
	}
	return paginate(sessions, func(a, b auth.Session) bool { return a.CreatedAt.After(b.CreatedAt) }, 0, 0), nil
}

func (repo *sessionRepository) RevokeSession(_ context.Context, jti string, at time.Time) (bool, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	sess, ok := repo.db.sessions[jti]
	if !ok {
		return false, auth.ErrSessionNotFound
	}
	if sess.IsRevoked() {
		return false, nil
	}
	sess.RevokedAt = at
	return true, nil
}

func (repo *sessionRepository) RevokeUserSessions(_ context.Context, userID string, at time.Time) ([]auth.Session, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	revoked := make([]auth.Session, 0)
	for _, sess := range repo.db.sessions {
		if sess.UserID == userID && sess.IsActive(at) {
			sess.RevokedAt = at
			revoked = append(revoked, *sess)
		}
	}
	return revoked, nil
}

func (repo *sessionRepository) DeleteExpiredSessions(_ context.Context, before time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for jti, sess := range repo.db.sessions {
		if sess.ExpiresAt.Before(before) {
			delete(repo.db.sessions, jti)
			n++
		}
	}
	return n, nil
}
