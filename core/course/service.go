// Package course manages courses and the marketplace search.
package course

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/notification"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound        = errors.New("course not found")
	ErrTeacherRequired = errors.New("a teacher profile is required to manage courses")
)

type (
	Repository interface {
		CreateCourse(ctx context.Context, c Course) (Course, error)
		GetCourse(ctx context.Context, filter GetFilter) (Course, error)
		// UpdateCourse saves the editable fields, cover and status; ratings and trust level are left as is.
		UpdateCourse(ctx context.Context, c Course) (Course, error)
		DeleteCourse(ctx context.Context, id string) error
		SearchCourses(ctx context.Context, filter SearchFilter, page core.Pagination) ([]Course, int, error)
	}

	Service struct {
		repo       Repository
		teacherSvc *teacher.Service
		notifSvc   *notification.Service
	}
)

func NewService(repo Repository, teacherSvc *teacher.Service, notifSvc *notification.Service) *Service {
	return &Service{
		repo:       repo,
		teacherSvc: teacherSvc,
		notifSvc:   notifSvc,
	}
}

// Create adds a course to the teacher profile of usr, at the teacher's trust level.
func (svc *Service) Create(ctx context.Context, usr user.User, nc NewCourse) (Course, error) {
	t, err := svc.teacherSvc.GetByUserID(ctx, usr.ID)
	if err != nil {
		if errors.Cause(err) == teacher.ErrNotFound {
			return Course{}, ErrTeacherRequired
		}
		return Course{}, errors.Wrap(err, "finding teacher by user ID")
	}

	now := nowFunc().UTC()
	c, err := svc.repo.CreateCourse(ctx, Course{
		ID:            uuid.NewString(),
		TeacherID:     t.ID,
		Title:         nc.Title,
		Slug:          newSlug(nc.Title),
		Description:   nc.Description,
		Category:      nc.Category,
		Level:         nc.Level,
		Mode:          nc.Mode,
		City:          nc.City,
		Region:        nc.Region,
		Price:         nc.Price,
		LessonMinutes: nc.LessonMinutes,
		Tags:          nc.Tags,
		Status:        nc.Status,
		TrustLevel:    t.TrustLevel,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return Course{}, errors.Wrap(err, "creating course")
	}
	if c.IsPublished() {
		svc.notifyPublished(ctx, t, c)
	}
	return c, nil
}

func (svc *Service) notifyPublished(ctx context.Context, t teacher.Teacher, c Course) {
	_, _ = svc.notifSvc.Notify(ctx, notification.NewNotification{
		UserID: t.UserID,
		Type:   notification.TypeCoursePublished,
		Title:  "Your course is live",
		Body:   c.Title + " is now listed on the marketplace.",
		Link:   "/courses/" + c.Slug,
	})
}

func (svc *Service) GetByID(ctx context.Context, id string) (Course, error) {
	if id == "" {
		return Course{}, ErrNotFound
	}
	return svc.repo.GetCourse(ctx, GetFilter{ID: id})
}

// Get finds a course by id or slug.
func (svc *Service) Get(ctx context.Context, idOrSlug string) (Course, error) {
	if _, err := uuid.Parse(idOrSlug); err == nil {
		return svc.GetByID(ctx, idOrSlug)
	}
	if idOrSlug == "" {
		return Course{}, ErrNotFound
	}
	return svc.repo.GetCourse(ctx, GetFilter{Slug: idOrSlug})
}

// CanManage reports whether usr is an admin or the teacher owning c.
func (svc *Service) CanManage(ctx context.Context, usr user.User, c Course) (bool, error) {
	if usr.IsAdmin() {
		return true, nil
	}
	t, err := svc.teacherSvc.GetByUserID(ctx, usr.ID)
	if err != nil {
		if errors.Cause(err) == teacher.ErrNotFound {
			return false, nil
		}
		return false, errors.Wrap(err, "finding teacher by user ID")
	}
	return t.ID == c.TeacherID, nil
}

func (svc *Service) Update(ctx context.Context, c Course, uc UpdateCourse) (Course, error) {
	wasPublished := c.IsPublished()
	if uc.Title != nil {
		c.Title = *uc.Title
	}
	if uc.Description != nil {
		c.Description = *uc.Description
	}
	if uc.Category != nil {
		c.Category = *uc.Category
	}
	if uc.Level != nil {
		c.Level = *uc.Level
	}
	if uc.Mode != nil {
		c.Mode = *uc.Mode
	}
	if uc.City != nil {
		c.City = *uc.City
	}
	if uc.Region != nil {
		c.Region = *uc.Region
	}
	if uc.Price != nil {
		c.Price = *uc.Price
	}
	if uc.LessonMinutes != nil {
		c.LessonMinutes = *uc.LessonMinutes
	}
	if uc.Tags != nil {
		c.Tags = uc.Tags
	}
	if uc.Status != nil {
		c.Status = *uc.Status
	}
	if c.Mode != ModeOnline && c.City == "" {
		return Course{}, core.NewFieldError("city", "this field is required")
	}
	c.UpdatedAt = nowFunc().UTC()

	c, err := svc.repo.UpdateCourse(ctx, c)
	if err != nil {
		return Course{}, errors.Wrap(err, "updating course")
	}
	if !wasPublished && c.IsPublished() {
		if t, err := svc.teacherSvc.GetByID(ctx, c.TeacherID); err == nil {
			svc.notifyPublished(ctx, t, c)
		}
	}
	return c, nil
}

func (svc *Service) SetCover(ctx context.Context, c Course, url string) (Course, error) {
	c.CoverImageURL = url
	c.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateCourse(ctx, c)
}

func (svc *Service) Delete(ctx context.Context, c Course) error {
	return svc.repo.DeleteCourse(ctx, c.ID)
}

// Search runs the marketplace search. Unless statuses are given, only published courses are returned.
func (svc *Service) Search(ctx context.Context, filter SearchFilter, page core.Pagination) (Page, error) {
	filter.Clean()
	if len(filter.Statuses) == 0 {
		filter.Statuses = []string{StatusPublished}
	}
	page.Clean()
	items, total, err := svc.repo.SearchCourses(ctx, filter, page)
	if err != nil {
		return Page{}, errors.Wrap(err, "searching courses")
	}
	if items == nil {
		items = []Course{}
	}
	return Page{Items: items, PageInfo: core.NewPageInfo(page, total)}, nil
}
