package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/review"
	"github.com/findclassnz/findclass/storage/database"
)

const reviewSelect = `SELECT r.id, r.course_id, r.teacher_id, r.author_id, u.name AS author_name, r.rating, r.comment,
	r.created_at, r.updated_at FROM reviews r JOIN users u ON u.id = r.author_id`

type reviewRow struct {
	ID         string    `db:"id"`
	CourseID   string    `db:"course_id"`
	TeacherID  string    `db:"teacher_id"`
	AuthorID   string    `db:"author_id"`
	AuthorName string    `db:"author_name"`
	Rating     int       `db:"rating"`
	Comment    string    `db:"comment"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func (row reviewRow) toReview() review.Review {
	return review.Review{
		ID:         row.ID,
		CourseID:   row.CourseID,
		TeacherID:  row.TeacherID,
		AuthorID:   row.AuthorID,
		AuthorName: row.AuthorName,
		Rating:     row.Rating,
		Comment:    row.Comment,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

type ratingTarget struct {
	CourseID  string `db:"course_id"`
	TeacherID string `db:"teacher_id"`
}

type reviewRepository struct {
	db *sqlx.DB
}

var _ review.Repository = (*reviewRepository)(nil)

func NewReviewRepository(db *sqlx.DB) review.Repository {
	return &reviewRepository{db: db}
}

func (repo *reviewRepository) CreateReview(ctx context.Context, r review.Review) (review.Review, error) {
	q := repo.db.Rebind(`INSERT INTO reviews (id, course_id, teacher_id, author_id, rating, comment, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := repo.db.ExecContext(ctx, q,
		r.ID, r.CourseID, r.TeacherID, r.AuthorID, r.Rating, r.Comment, r.CreatedAt.UTC(), r.UpdatedAt.UTC())
	if err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return review.Review{}, review.ErrAlreadyReviewed
		case database.IsForeignKeyViolation(err):
			return review.Review{}, course.ErrNotFound
		}
		return review.Review{}, errors.Wrap(err, "inserting review")
	}
	return repo.GetReview(ctx, r.ID)
}

func (repo *reviewRepository) GetReview(ctx context.Context, id string) (review.Review, error) {
	if !isUUID(id) {
		return review.Review{}, review.ErrNotFound
	}
	var row reviewRow
	if err := repo.db.GetContext(ctx, &row, repo.db.Rebind(reviewSelect+" WHERE r.id = ?"), id); err != nil {
		if database.IsNoRows(err) {
			return review.Review{}, review.ErrNotFound
		}
		return review.Review{}, errors.Wrap(err, "getting review")
	}
	return row.toReview(), nil
}

func (repo *reviewRepository) UpdateReview(ctx context.Context, r review.Review) (review.Review, error) {
	if !isUUID(r.ID) {
		return review.Review{}, review.ErrNotFound
	}
	q := repo.db.Rebind("UPDATE reviews SET rating = ?, comment = ?, updated_at = ? WHERE id = ?")
	res, err := repo.db.ExecContext(ctx, q, r.Rating, r.Comment, r.UpdatedAt.UTC(), r.ID)
	if err != nil {
		return review.Review{}, errors.Wrap(err, "updating review")
	}
	if err = rowsAffected(res, review.ErrNotFound); err != nil {
		return review.Review{}, err
	}
	return repo.GetReview(ctx, r.ID)
}

func (repo *reviewRepository) DeleteReview(ctx context.Context, id string) error {
	if !isUUID(id) {
		return review.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind("DELETE FROM reviews WHERE id = ?"), id)
	if err != nil {
		return errors.Wrap(err, "deleting review")
	}
	return rowsAffected(res, review.ErrNotFound)
}

func (repo *reviewRepository) QueryReviews(ctx context.Context, filter review.QueryFilter, page core.Pagination) ([]review.Review, int, error) {
	var where whereClause
	for col, id := range map[string]string{
		"r.course_id":  filter.CourseID,
		"r.teacher_id": filter.TeacherID,
		"r.author_id":  filter.AuthorID,
	} {
		if id == "" {
			continue
		}
		if !isUUID(id) {
			return []review.Review{}, 0, nil
		}
		where.add(col+" = ?", id)
	}

	total, err := count(ctx, repo.db, "reviews r", where)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting reviews")
	}

	var rows []reviewRow
	q := repo.db.Rebind(reviewSelect + where.String() + " ORDER BY r.created_at DESC LIMIT ? OFFSET ?")
	args := append(where.args, page.Limit, page.Offset())
	if err = repo.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying reviews")
	}
	items := make([]review.Review, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toReview())
	}
	return items, total, nil
}

func (repo *reviewRepository) RefreshRatings(ctx context.Context, courseID, teacherID string) error {
	return refreshRatings(ctx, repo.db, courseID, teacherID)
}

func refreshRatings(ctx context.Context, exec sqlx.ExtContext, courseID, teacherID string) error {
	q := exec.Rebind(`UPDATE courses SET (avg_rating, review_count) = (
		SELECT COALESCE(ROUND(AVG(rating)::numeric, 2), 0), COUNT(*) FROM reviews WHERE course_id = ?
	) WHERE id = ?`)
	if _, err := exec.ExecContext(ctx, q, courseID, courseID); err != nil {
		return errors.Wrap(err, "refreshing course rating")
	}
	return refreshTeacherRating(ctx, exec, teacherID)
}

func refreshTeacherRating(ctx context.Context, exec sqlx.ExtContext, teacherID string) error {
	q := exec.Rebind(`UPDATE teachers SET (avg_rating, review_count) = (
		SELECT COALESCE(ROUND(AVG(rating)::numeric, 2), 0), COUNT(*) FROM reviews WHERE teacher_id = ?
	) WHERE id = ?`)
	_, err := exec.ExecContext(ctx, q, teacherID, teacherID)
	return errors.Wrap(err, "refreshing teacher rating")
}
