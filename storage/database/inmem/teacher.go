package inmemdb

import (
	"context"
	"strings"
	"time"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/teacher"
)

type teacherRepository struct {
	db *DB
}

var _ teacher.Repository = (*teacherRepository)(nil)

func NewTeacherRepository(db *DB) teacher.Repository {
	return &teacherRepository{db: db}
}

func (repo *teacherRepository) CreateTeacher(_ context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, other := range repo.db.teachers {
		if other.UserID == t.UserID {
			return teacher.Teacher{}, teacher.ErrProfileExists
		}
	}
	t.Subjects = copyStrings(t.Subjects)
	repo.db.teachers[t.ID] = &t
	return t, nil
}

func (repo *teacherRepository) GetTeacher(_ context.Context, filter teacher.GetFilter) (teacher.Teacher, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	for _, t := range repo.db.teachers {
		if (filter.ID != "" && t.ID == filter.ID) || (filter.ID == "" && filter.UserID != "" && t.UserID == filter.UserID) {
			return *t, nil
		}
	}
	return teacher.Teacher{}, teacher.ErrNotFound
}

func (repo *teacherRepository) UpdateTeacher(_ context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	orig, ok := repo.db.teachers[t.ID]
	if !ok {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	orig.DisplayName = t.DisplayName
	orig.Headline = t.Headline
	orig.Bio = t.Bio
	orig.Subjects = copyStrings(t.Subjects)
	orig.HourlyRate = t.HourlyRate
	orig.City = t.City
	orig.Region = t.Region
	orig.OnlineAvailable = t.OnlineAvailable
	orig.YearsExperience = t.YearsExperience
	orig.UpdatedAt = t.UpdatedAt
	return *orig, nil
}

func (repo *teacherRepository) SearchTeachers(_ context.Context, filter teacher.SearchFilter, page core.Pagination) ([]teacher.Teacher, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	items := make([]teacher.Teacher, 0)
	for _, t := range repo.db.teachers {
		if filter.Keyword != "" && !containsFold(t.DisplayName, filter.Keyword) && !containsFold(t.Headline, filter.Keyword) &&
			!containsFold(t.Bio, filter.Keyword) && !anyContainsFold(t.Subjects, filter.Keyword) {
			continue
		}
		if filter.Subject != "" && !contains(t.Subjects, filter.Subject) {
			continue
		}
		if filter.City != "" && !strings.EqualFold(t.City, filter.City) {
			continue
		}
		if filter.Region != "" && t.Region != filter.Region {
			continue
		}
		if len(filter.TrustLevels) > 0 && !contains(filter.TrustLevels, t.TrustLevel) {
			continue
		}
		if filter.MinRating > 0 && t.AvgRating < filter.MinRating {
			continue
		}
		if filter.Online != nil && t.OnlineAvailable != *filter.Online {
			continue
		}
		items = append(items, *t)
	}
	total := len(items)
	return paginate(items, teacherLess(filter.Sort), page.Offset(), page.Limit), total, nil
}

func teacherLess(sortBy string) func(a, b teacher.Teacher) bool {
	newest := func(a, b teacher.Teacher) bool { return a.CreatedAt.After(b.CreatedAt) }
	return func(a, b teacher.Teacher) bool {
		switch sortBy {
		case teacher.SortRateAsc:
			if a.HourlyRate != b.HourlyRate {
				return a.HourlyRate < b.HourlyRate
			}
		case teacher.SortRateDesc:
			if a.HourlyRate != b.HourlyRate {
				return a.HourlyRate > b.HourlyRate
			}
		case teacher.SortRating:
			if a.AvgRating != b.AvgRating {
				return a.AvgRating > b.AvgRating
			}
			if a.ReviewCount != b.ReviewCount {
				return a.ReviewCount > b.ReviewCount
			}
		}
		return newest(a, b)
	}
}

func (repo *teacherRepository) SetTrustLevel(_ context.Context, id, level string, verified bool, at time.Time) (teacher.Teacher, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	t, ok := repo.db.teachers[id]
	if !ok {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	t.TrustLevel = level
	t.Verified = verified
	t.UpdatedAt = at
	for _, c := range repo.db.courses {
		if c.TeacherID == id {
			c.TrustLevel = level
		}
	}
	return *t, nil
}

// deleteTeacher removes a teacher and everything hanging off their courses. The lock must be held.
func (db *DB) deleteTeacher(id string) {
	for cid, c := range db.courses {
		if c.TeacherID == id {
			db.deleteCourse(cid)
		}
	}
	delete(db.teachers, id)
}
