package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/favorite"
	"github.com/findclassnz/findclass/storage/database"
)

type favoriteRepository struct {
	db *sqlx.DB
}

var _ favorite.Repository = (*favoriteRepository)(nil)

func NewFavoriteRepository(db *sqlx.DB) favorite.Repository {
	return &favoriteRepository{db: db}
}

func (repo *favoriteRepository) AddFavorite(ctx context.Context, userID, courseID string, at time.Time) error {
	if !isUUID(userID) || !isUUID(courseID) {
		return course.ErrNotFound
	}
	q := repo.db.Rebind(`INSERT INTO favorites (user_id, course_id, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, course_id) DO NOTHING`)
	if _, err := repo.db.ExecContext(ctx, q, userID, courseID, at.UTC()); err != nil {
		if database.IsForeignKeyViolation(err) {
			return course.ErrNotFound
		}
		return errors.Wrap(err, "inserting favorite")
	}
	return nil
}

func (repo *favoriteRepository) RemoveFavorite(ctx context.Context, userID, courseID string) error {
	if !isUUID(userID) || !isUUID(courseID) {
		return nil
	}
	q := repo.db.Rebind("DELETE FROM favorites WHERE user_id = ? AND course_id = ?")
	_, err := repo.db.ExecContext(ctx, q, userID, courseID)
	return errors.Wrap(err, "deleting favorite")
}

func (repo *favoriteRepository) QueryFavoriteCourses(ctx context.Context, userID string, page core.Pagination) ([]course.Course, int, error) {
	if !isUUID(userID) {
		return []course.Course{}, 0, nil
	}
	var where whereClause
	where.add("f.user_id = ?", userID)
	where.add("c.status = ?", course.StatusPublished)

	from := "favorites f JOIN courses c ON c.id = f.course_id"
	total, err := count(ctx, repo.db, from, where)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting favorites")
	}

	var rows []courseRow
	q := repo.db.Rebind("SELECT c.* FROM " + from + where.String() + " ORDER BY f.created_at DESC LIMIT ? OFFSET ?")
	args := append(where.args, page.Limit, page.Offset())
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying favorite courses")
	}
	return toCourses(rows), total, nil
}
