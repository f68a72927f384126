// Package review manages course reviews and keeps the course and teacher ratings in sync.
package review

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/notification"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound         = errors.New("review not found")
	ErrAlreadyReviewed  = errors.New("you have already reviewed this course")
	ErrSelfReview       = errors.New("you cannot review your own course")
	ErrCourseNotOpenYet = errors.New("only published courses can be reviewed")
)

type (
	Repository interface {
		// CreateReview returns ErrAlreadyReviewed if the author already reviewed the course.
		CreateReview(ctx context.Context, r Review) (Review, error)
		GetReview(ctx context.Context, id string) (Review, error)
		UpdateReview(ctx context.Context, r Review) (Review, error)
		DeleteReview(ctx context.Context, id string) error
		// QueryReviews lists reviews, newest first.
		QueryReviews(ctx context.Context, filter QueryFilter, page core.Pagination) ([]Review, int, error)
		// RefreshRatings recomputes the average rating and review count of a course and of a teacher.
		RefreshRatings(ctx context.Context, courseID, teacherID string) error
	}

	Service struct {
		repo       Repository
		courseSvc  *course.Service
		teacherSvc *teacher.Service
		notifSvc   *notification.Service
		logger     core.Logger
	}
)

func NewService(
	repo Repository,
	courseSvc *course.Service,
	teacherSvc *teacher.Service,
	notifSvc *notification.Service,
	logger core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		courseSvc:  courseSvc,
		teacherSvc: teacherSvc,
		notifSvc:   notifSvc,
		logger:     logger,
	}
}

// Create adds the review of usr on c and notifies the teacher. A failed notification is logged only.
func (svc *Service) Create(ctx context.Context, usr user.User, c course.Course, nr NewReview) (Review, error) {
	if !c.IsPublished() {
		return Review{}, core.NewValidationError(ErrCourseNotOpenYet)
	}
	t, err := svc.teacherSvc.GetByID(ctx, c.TeacherID)
	if err != nil {
		return Review{}, errors.Wrap(err, "finding teacher by ID")
	}
	if t.UserID == usr.ID {
		return Review{}, core.NewValidationError(ErrSelfReview)
	}

	now := nowFunc().UTC()
	r, err := svc.repo.CreateReview(ctx, Review{
		ID:         uuid.NewString(),
		CourseID:   c.ID,
		TeacherID:  t.ID,
		AuthorID:   usr.ID,
		AuthorName: usr.Name,
		Rating:     nr.Rating,
		Comment:    nr.Comment,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		if errors.Cause(err) == ErrAlreadyReviewed {
			return Review{}, core.NewValidationError(err)
		}
		return Review{}, errors.Wrap(err, "creating review")
	}
	if err = svc.repo.RefreshRatings(ctx, r.CourseID, r.TeacherID); err != nil {
		return Review{}, errors.Wrap(err, "refreshing ratings")
	}

	if _, err = svc.notifSvc.Notify(ctx, notification.NewNotification{
		UserID:    t.UserID,
		Type:      notification.TypeReviewReceived,
		Title:     fmt.Sprintf("New %d-star review", r.Rating),
		Body:      fmt.Sprintf("%s reviewed %s.", usr.Name, c.Title),
		Link:      "/courses/" + c.Slug,
		Important: true,
	}); err != nil {
		svc.logger.Error("notifying teacher of a review", err, map[string]interface{}{"review_id": r.ID})
	}
	return r, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Review, error) {
	if id == "" {
		return Review{}, ErrNotFound
	}
	return svc.repo.GetReview(ctx, id)
}

func (svc *Service) Update(ctx context.Context, r Review, ur UpdateReview) (Review, error) {
	if ur.Rating != nil {
		r.Rating = *ur.Rating
	}
	if ur.Comment != nil {
		r.Comment = *ur.Comment
	}
	r.UpdatedAt = nowFunc().UTC()
	r, err := svc.repo.UpdateReview(ctx, r)
	if err != nil {
		return Review{}, errors.Wrap(err, "updating review")
	}
	if err = svc.repo.RefreshRatings(ctx, r.CourseID, r.TeacherID); err != nil {
		return Review{}, errors.Wrap(err, "refreshing ratings")
	}
	return r, nil
}

func (svc *Service) Delete(ctx context.Context, r Review) error {
	if err := svc.repo.DeleteReview(ctx, r.ID); err != nil {
		return errors.Wrap(err, "deleting review")
	}
	return errors.Wrap(svc.repo.RefreshRatings(ctx, r.CourseID, r.TeacherID), "refreshing ratings")
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter, page core.Pagination) (Page, error) {
	page.Clean()
	items, total, err := svc.repo.QueryReviews(ctx, filter, page)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying reviews")
	}
	if items == nil {
		items = []Review{}
	}
	return Page{Items: items, PageInfo: core.NewPageInfo(page, total)}, nil
}
