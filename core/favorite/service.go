// Package favorite keeps the courses saved by users.
package favorite

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
)

var nowFunc = time.Now // mockable

type (
	Repository interface {
		// AddFavorite is idempotent.
		AddFavorite(ctx context.Context, userID, courseID string, at time.Time) error
		RemoveFavorite(ctx context.Context, userID, courseID string) error
		// QueryFavoriteCourses lists the saved published courses of a user, most recently saved first.
		QueryFavoriteCourses(ctx context.Context, userID string, page core.Pagination) ([]course.Course, int, error)
	}

	Service struct {
		repo Repository
	}
)

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (svc *Service) Add(ctx context.Context, userID string, c course.Course) error {
	if !c.IsPublished() {
		return course.ErrNotFound
	}
	return errors.Wrap(svc.repo.AddFavorite(ctx, userID, c.ID, nowFunc().UTC()), "adding favorite")
}

func (svc *Service) Remove(ctx context.Context, userID, courseID string) error {
	return errors.Wrap(svc.repo.RemoveFavorite(ctx, userID, courseID), "removing favorite")
}

func (svc *Service) List(ctx context.Context, userID string, page core.Pagination) (course.Page, error) {
	page.Clean()
	items, total, err := svc.repo.QueryFavoriteCourses(ctx, userID, page)
	if err != nil {
		return course.Page{}, errors.Wrap(err, "querying favorite courses")
	}
	if items == nil {
		items = []course.Course{}
	}
	return course.Page{Items: items, PageInfo: core.NewPageInfo(page, total)}, nil
}
