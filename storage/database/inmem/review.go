package inmemdb

import (
	"context"
	"math"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/review"
)

type reviewRepository struct {
	db *DB
}

var _ review.Repository = (*reviewRepository)(nil)

func NewReviewRepository(db *DB) review.Repository {
	return &reviewRepository{db: db}
}

// withAuthor fills the read only author name. The lock must be held.
func (repo *reviewRepository) withAuthor(r review.Review) review.Review {
	if usr, ok := repo.db.users[r.AuthorID]; ok {
		r.AuthorName = usr.Name
	}
	return r
}

func (repo *reviewRepository) CreateReview(_ context.Context, r review.Review) (review.Review, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[r.CourseID]; !ok {
		return review.Review{}, course.ErrNotFound
	}
	for _, other := range repo.db.reviews {
		if other.CourseID == r.CourseID && other.AuthorID == r.AuthorID {
			return review.Review{}, review.ErrAlreadyReviewed
		}
	}
	repo.db.reviews[r.ID] = &r
	return repo.withAuthor(r), nil
}

func (repo *reviewRepository) GetReview(_ context.Context, id string) (review.Review, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if r, ok := repo.db.reviews[id]; ok {
		return repo.withAuthor(*r), nil
	}
	return review.Review{}, review.ErrNotFound
}

func (repo *reviewRepository) UpdateReview(_ context.Context, r review.Review) (review.Review, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.reviews[r.ID]
	if !ok {
		return review.Review{}, review.ErrNotFound
	}
	orig.Rating = r.Rating
	orig.Comment = r.Comment
	orig.UpdatedAt = r.UpdatedAt
	return repo.withAuthor(*orig), nil
}

func (repo *reviewRepository) DeleteReview(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.reviews[id]; !ok {
		return review.ErrNotFound
	}
	delete(repo.db.reviews, id)
	return nil
}

func (repo *reviewRepository) QueryReviews(_ context.Context, filter review.QueryFilter, page core.Pagination) ([]review.Review, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	items := make([]review.Review, 0)
	for _, r := range repo.db.reviews {
		if filter.CourseID != "" && r.CourseID != filter.CourseID {
			continue
		}
		if filter.TeacherID != "" && r.TeacherID != filter.TeacherID {
			continue
		}
		if filter.AuthorID != "" && r.AuthorID != filter.AuthorID {
			continue
		}
		items = append(items, repo.withAuthor(*r))
	}
	total := len(items)
	newest := func(a, b review.Review) bool { return a.CreatedAt.After(b.CreatedAt) }
	return paginate(items, newest, page.Offset(), page.Limit), total, nil
}

func (repo *reviewRepository) RefreshRatings(_ context.Context, courseID, teacherID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.refreshRatings(courseID, teacherID)
	return nil
}

// refreshRatings recomputes the course and teacher aggregates. The lock must be held.
func (db *DB) refreshRatings(courseID, teacherID string) {
	if c, ok := db.courses[courseID]; ok {
		c.AvgRating, c.ReviewCount = db.aggregate(func(r *review.Review) bool { return r.CourseID == courseID })
	}
	db.refreshTeacherRating(teacherID)
}

func (db *DB) refreshTeacherRating(teacherID string) {
	if t, ok := db.teachers[teacherID]; ok {
		t.AvgRating, t.ReviewCount = db.aggregate(func(r *review.Review) bool { return r.TeacherID == teacherID })
	}
}

func (db *DB) aggregate(match func(r *review.Review) bool) (float64, int) {
	var sum, count int
	for _, r := range db.reviews {
		if match(r) {
			sum += r.Rating
			count++
		}
	}
	if count == 0 {
		return 0, 0
	}
	return roundRating(float64(sum) / float64(count)), count
}

// roundRating rounds to 2 decimals, like the numeric rounding of the SQL repositories.
func roundRating(avg float64) float64 {
	return math.Round(avg*100) / 100
}
