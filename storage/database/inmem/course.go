package inmemdb

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/teacher"
)

var errSlugExists = errors.New("course slug already exists")

type courseRepository struct {
	db *DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.teachers[c.TeacherID]; !ok {
		return course.Course{}, teacher.ErrNotFound
	}
	for _, other := range repo.db.courses {
		if other.Slug == c.Slug {
			return course.Course{}, errSlugExists
		}
	}
	c.Tags = copyStrings(c.Tags)
	repo.db.courses[c.ID] = &c
	return c, nil
}

func (repo *courseRepository) GetCourse(_ context.Context, filter course.GetFilter) (course.Course, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if filter.ID != "" {
		if c, ok := repo.db.courses[filter.ID]; ok {
			return *c, nil
		}
		return course.Course{}, course.ErrNotFound
	}
	if filter.Slug != "" {
		for _, c := range repo.db.courses {
			if c.Slug == filter.Slug {
				return *c, nil
			}
		}
	}
	return course.Course{}, course.ErrNotFound
}

func (repo *courseRepository) UpdateCourse(_ context.Context, c course.Course) (course.Course, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.courses[c.ID]
	if !ok {
		return course.Course{}, course.ErrNotFound
	}
	orig.Title = c.Title
	orig.Description = c.Description
	orig.Category = c.Category
	orig.Level = c.Level
	orig.Mode = c.Mode
	orig.City = c.City
	orig.Region = c.Region
	orig.Price = c.Price
	orig.LessonMinutes = c.LessonMinutes
	orig.Tags = copyStrings(c.Tags)
	orig.CoverImageURL = c.CoverImageURL
	orig.Status = c.Status
	orig.UpdatedAt = c.UpdatedAt
	return *orig, nil
}

func (repo *courseRepository) DeleteCourse(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c, ok := repo.db.courses[id]
	if !ok {
		return course.ErrNotFound
	}
	teacherID := c.TeacherID
	repo.db.deleteCourse(id)
	repo.db.refreshTeacherRating(teacherID)
	return nil
}

func (repo *courseRepository) SearchCourses(_ context.Context, filter course.SearchFilter, page core.Pagination) ([]course.Course, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	items := make([]course.Course, 0)
	for _, c := range repo.db.courses {
		if matchCourse(*c, filter) {
			items = append(items, *c)
		}
	}
	total := len(items)
	return paginate(items, courseLess(filter.Sort), page.Offset(), page.Limit), total, nil
}

func matchCourse(c course.Course, filter course.SearchFilter) bool {
	switch {
	case filter.Keyword != "" && !containsFold(c.Title, filter.Keyword) &&
		!containsFold(c.Description, filter.Keyword) && !anyContainsFold(c.Tags, filter.Keyword):
		return false
	case filter.Category != "" && c.Category != filter.Category:
		return false
	case filter.Level != "" && c.Level != filter.Level:
		return false
	case filter.Mode != "" && c.Mode != filter.Mode:
		return false
	case filter.City != "" && !strings.EqualFold(c.City, filter.City):
		return false
	case filter.Region != "" && c.Region != filter.Region:
		return false
	case filter.MinPrice != nil && c.Price < *filter.MinPrice:
		return false
	case filter.MaxPrice != nil && c.Price > *filter.MaxPrice:
		return false
	case len(filter.TrustLevels) > 0 && !contains(filter.TrustLevels, c.TrustLevel):
		return false
	case filter.MinRating > 0 && c.AvgRating < filter.MinRating:
		return false
	case filter.TeacherID != "" && c.TeacherID != filter.TeacherID:
		return false
	case len(filter.Statuses) > 0 && !contains(filter.Statuses, c.Status):
		return false
	}
	return true
}

func courseLess(sortBy string) func(a, b course.Course) bool {
	return func(a, b course.Course) bool {
		switch sortBy {
		case course.SortPriceAsc:
			if a.Price != b.Price {
				return a.Price < b.Price
			}
		case course.SortPriceDesc:
			if a.Price != b.Price {
				return a.Price > b.Price
			}
		case course.SortRating:
			if a.AvgRating != b.AvgRating {
				return a.AvgRating > b.AvgRating
			}
			if a.ReviewCount != b.ReviewCount {
				return a.ReviewCount > b.ReviewCount
			}
		}
		return a.CreatedAt.After(b.CreatedAt)
	}
}

// deleteCourse removes a course with its reviews and favorites. The lock must be held.
func (db *DB) deleteCourse(id string) {
	for rid, r := range db.reviews {
		if r.CourseID == id {
			delete(db.reviews, rid)
		}
	}
	for _, saved := range db.favorites {
		delete(saved, id)
	}
	delete(db.courses, id)
}
