package inmemdb

import (
	"context"
	"time"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/favorite"
)

type favoriteRepository struct {
	db *DB
}

var _ favorite.Repository = (*favoriteRepository)(nil)

func NewFavoriteRepository(db *DB) favorite.Repository {
	return &favoriteRepository{db: db}
}

func (repo *favoriteRepository) AddFavorite(_ context.Context, userID, courseID string, at time.Time) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.courses[courseID]; !ok {
		return course.ErrNotFound
	}
	saved, ok := repo.db.favorites[userID]
	if !ok {
		saved = make(map[string]time.Time)
		repo.db.favorites[userID] = saved
	}
	if _, ok = saved[courseID]; !ok {
		saved[courseID] = at
	}
	return nil
}

func (repo *favoriteRepository) RemoveFavorite(_ context.Context, userID, courseID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	delete(repo.db.favorites[userID], courseID)
	return nil
}

func (repo *favoriteRepository) QueryFavoriteCourses(_ context.Context, userID string, page core.Pagination) ([]course.Course, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	type savedCourse struct {
		course  course.Course
		savedAt time.Time
	}
	saved := make([]savedCourse, 0)
	for courseID, at := range repo.db.favorites[userID] {
		if c, ok := repo.db.courses[courseID]; ok && c.IsPublished() {
			saved = append(saved, savedCourse{course: *c, savedAt: at})
		}
	}
	total := len(saved)
	saved = paginate(saved, func(a, b savedCourse) bool { return a.savedAt.After(b.savedAt) }, page.Offset(), page.Limit)

	items := make([]course.Course, 0, len(saved))
	for _, s := range saved {
		items = append(items, s.course)
	}
	return items, total, nil
}
