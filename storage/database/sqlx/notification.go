package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/notification"
)

const notificationColumns = "id, user_id, type, title, body, link, read_at, created_at"

type notificationRow struct {
	ID        string       `db:"id"`
	UserID    string       `db:"user_id"`
	Type      string       `db:"type"`
	Title     string       `db:"title"`
	Body      string       `db:"body"`
	Link      string       `db:"link"`
	ReadAt    sql.NullTime `db:"read_at"`
	CreatedAt time.Time    `db:"created_at"`
}

func (row notificationRow) toNotification() notification.Notification {
	n := notification.Notification{
		ID:        row.ID,
		UserID:    row.UserID,
		Type:      row.Type,
		Title:     row.Title,
		Body:      row.Body,
		Link:      row.Link,
		CreatedAt: row.CreatedAt.UTC(),
	}
	if row.ReadAt.Valid {
		readAt := row.ReadAt.Time.UTC()
		n.ReadAt = &readAt
	}
	return n
}

type notificationRepository struct {
	db *sqlx.DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *sqlx.DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(ctx context.Context, n notification.Notification) error {
	var readAt sql.NullTime
	if n.ReadAt != nil {
		readAt = toNullTime(*n.ReadAt)
	}
	q := repo.db.Rebind("INSERT INTO notifications (" + notificationColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?, ?)")
	_, err := repo.db.ExecContext(ctx, q, n.ID, n.UserID, n.Type, n.Title, n.Body, n.Link, readAt, n.CreatedAt.UTC())
	return errors.Wrap(err, "inserting notification")
}

func (repo *notificationRepository) QueryNotifications(ctx context.Context, userID string, unreadOnly bool, page core.Pagination) ([]notification.Notification, int, error) {
	if !isUUID(userID) {
		return []notification.Notification{}, 0, nil
	}
	var where whereClause
	where.add("user_id = ?", userID)
	if unreadOnly {
		where.add("read_at IS NULL")
	}

	total, err := count(ctx, repo.db, "notifications", where)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting notifications")
	}

	var rows []notificationRow
	q := repo.db.Rebind("SELECT " + notificationColumns + " FROM notifications" + where.String() +
		" ORDER BY created_at DESC LIMIT ? OFFSET ?")
	args := append(where.args, page.Limit, page.Offset())
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying notifications")
	}
	items := make([]notification.Notification, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toNotification())
	}
	return items, total, nil
}

func (repo *notificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	if !isUUID(userID) {
		return 0, nil
	}
	var where whereClause
	where.add("user_id = ?", userID)
	where.add("read_at IS NULL")
	return count(ctx, repo.db, "notifications", where)
}

func (repo *notificationRepository) MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int, error) {
	if !isUUID(userID) {
		return 0, nil
	}
	var where whereClause
	where.add("user_id = ?", userID)
	where.add("read_at IS NULL")
	if len(ids) > 0 {
		if ids = uuids(ids); len(ids) == 0 {
			return 0, nil
		}
		where.add("id = ANY(?::uuid[])", pq.Array(ids))
	}

	q := repo.db.Rebind("UPDATE notifications SET read_at = ?" + where.String())
	res, err := repo.db.ExecContext(ctx, q, append([]interface{}{at.UTC()}, where.args...)...)
	if err != nil {
		return 0, errors.Wrap(err, "marking notifications read")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "getting affected rows")
}

func (repo *notificationRepository) DeleteNotification(ctx context.Context, userID, id string) error {
	if !isUUID(userID) || !isUUID(id) {
		return notification.ErrNotFound
	}
	q := repo.db.Rebind("DELETE FROM notifications WHERE id = ? AND user_id = ?")
	res, err := repo.db.ExecContext(ctx, q, id, userID)
	if err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	return rowsAffected(res, notification.ErrNotFound)
}
