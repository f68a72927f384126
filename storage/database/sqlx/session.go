package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core/auth"
	"github.com/findclassnz/findclass/storage/database"
)

const sessionColumns = "id, user_id, jti, token_hash, token_type, user_agent, client_ip, expires_at, revoked_at, created_at"

type sessionRow struct {
	ID        string       `db:"id"`
	UserID    string       `db:"user_id"`
	JTI       string       `db:"jti"`
	TokenHash string       `db:"token_hash"`
	TokenType string       `db:"token_type"`
	UserAgent string       `db:"user_agent"`
	ClientIP  string       `db:"client_ip"`
	ExpiresAt time.Time    `db:"expires_at"`
	RevokedAt sql.NullTime `db:"revoked_at"`
	CreatedAt time.Time    `db:"created_at"`
}

func (row sessionRow) toSession() auth.Session {
	return auth.Session{
		ID:        row.ID,
		UserID:    row.UserID,
		JTI:       row.JTI,
		TokenHash: row.TokenHash,
		TokenType: row.TokenType,
		UserAgent: row.UserAgent,
		ClientIP:  row.ClientIP,
		ExpiresAt: row.ExpiresAt.UTC(),
		RevokedAt: fromNullTime(row.RevokedAt),
		CreatedAt: row.CreatedAt.UTC(),
	}
}

func toSessions(rows []sessionRow) []auth.Session {
	sessions := make([]auth.Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, row.toSession())
	}
	return sessions
}

type sessionRepository struct {
	db *sqlx.DB
}

var _ auth.SessionRepository = (*sessionRepository)(nil)

func NewSessionRepository(db *sqlx.DB) auth.SessionRepository {
	return &sessionRepository{db: db}
}

func (repo *sessionRepository) CreateSession(ctx context.Context, sess auth.Session) error {
	row := sessionRow{
		ID:        sess.ID,
		UserID:    sess.UserID,
		JTI:       sess.JTI,
		TokenHash: sess.TokenHash,
		TokenType: sess.TokenType,
		UserAgent: sess.UserAgent,
		ClientIP:  sess.ClientIP,
		ExpiresAt: sess.ExpiresAt.UTC(),
		RevokedAt: toNullTime(sess.RevokedAt),
		CreatedAt: sess.CreatedAt.UTC(),
	}
	q := `INSERT INTO sessions (` + sessionColumns + `) VALUES (:id, :user_id, :jti, :token_hash, :token_type,
		:user_agent, :client_ip, :expires_at, :revoked_at, :created_at)`
	_, err := repo.db.NamedExecContext(ctx, q, row)
	return errors.Wrap(err, "inserting session")
}

func (repo *sessionRepository) GetSessionByJTI(ctx context.Context, jti string) (auth.Session, error) {
	if !isUUID(jti) {
		return auth.Session{}, auth.ErrSessionNotFound
	}
	var row sessionRow
	q := repo.db.Rebind("SELECT " + sessionColumns + " FROM sessions WHERE jti = ?")
	if err := repo.db.GetContext(ctx, &row, q, jti); err != nil {
		if database.IsNoRows(err) {
			return auth.Session{}, auth.ErrSessionNotFound
		}
		return auth.Session{}, errors.Wrap(err, "getting session")
	}
	return row.toSession(), nil
}

func (repo *sessionRepository) QueryUserSessions(ctx context.Context, userID string, at time.Time) ([]auth.Session, error) {
	if !isUUID(userID) {
		return []auth.Session{}, nil
	}
	var rows []sessionRow
	q := repo.db.Rebind("SELECT " + sessionColumns + ` FROM sessions
		WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ? ORDER BY created_at DESC`)
	if err := repo.db.SelectContext(ctx, &rows, q, userID, at.UTC()); err != nil {
		return nil, errors.Wrap(err, "querying user sessions")
	}
	return toSessions(rows), nil
}

func (repo *sessionRepository) RevokeSession(ctx context.Context, jti string, at time.Time) (bool, error) {
	if !isUUID(jti) {
		return false, auth.ErrSessionNotFound
	}
	q := repo.db.Rebind("UPDATE sessions SET revoked_at = ? WHERE jti = ? AND revoked_at IS NULL")
	res, err := repo.db.ExecContext(ctx, q, at.UTC(), jti)
	if err != nil {
		return false, errors.Wrap(err, "revoking session")
	}
	switch err = rowsAffected(res, auth.ErrSessionNotFound); err {
	case nil:
		return true, nil
	case auth.ErrSessionNotFound:
	default:
		return false, err
	}

	// already revoked or missing
	var exists bool
	q = repo.db.Rebind("SELECT EXISTS (SELECT 1 FROM sessions WHERE jti = ?)")
	if err = repo.db.GetContext(ctx, &exists, q, jti); err != nil {
		return false, errors.Wrap(err, "checking session")
	}
	if !exists {
		return false, auth.ErrSessionNotFound
	}
	return false, nil
}

func (repo *sessionRepository) RevokeUserSessions(ctx context.Context, userID string, at time.Time) ([]auth.Session, error) {
	if !isUUID(userID) {
		return []auth.Session{}, nil
	}
	var rows []sessionRow
	q := repo.db.Rebind(`UPDATE sessions SET revoked_at = ?
		WHERE user_id = ? AND revoked_at IS NULL AND expires_at > ? RETURNING ` + sessionColumns)
	if err := repo.db.SelectContext(ctx, &rows, q, at.UTC(), userID, at.UTC()); err != nil {
		return nil, errors.Wrap(err, "revoking user sessions")
	}
	return toSessions(rows), nil
}

func (repo *sessionRepository) DeleteExpiredSessions(ctx context.Context, before time.Time) (int, error) {
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM sessions WHERE expires_at < ?"), before.UTC())
	if err != nil {
		return 0, errors.Wrap(err, "deleting expired sessions")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "getting affected rows")
}
