// Package teacher manages teacher profiles and their trust levels.
package teacher

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/notification"
	"github.com/findclassnz/findclass/core/user"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound      = errors.New("teacher not found")
	ErrProfileExists = errors.New("a teacher profile already exists for this user")
)

type (
	Repository interface {
		// CreateTeacher returns ErrProfileExists if the user already has a profile.
		CreateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		GetTeacher(ctx context.Context, filter GetFilter) (Teacher, error)
		// UpdateTeacher saves the profile fields; trust level, verification and ratings are left as is.
		UpdateTeacher(ctx context.Context, t Teacher) (Teacher, error)
		SearchTeachers(ctx context.Context, filter SearchFilter, page core.Pagination) ([]Teacher, int, error)
		// SetTrustLevel updates the teacher and copies the level onto all of their courses.
		SetTrustLevel(ctx context.Context, id, level string, verified bool, at time.Time) (Teacher, error)
	}

	Service struct {
		repo     Repository
		usrSvc   *user.Service
		notifSvc *notification.Service
	}
)

func NewService(repo Repository, usrSvc *user.Service, notifSvc *notification.Service) *Service {
	return &Service{
		repo:     repo,
		usrSvc:   usrSvc,
		notifSvc: notifSvc,
	}
}

// Create opens the teacher profile of usr at the basic trust level; students are promoted to teachers.
func (svc *Service) Create(ctx context.Context, usr user.User, nt NewTeacher) (Teacher, error) {
	now := nowFunc().UTC()
	t, err := svc.repo.CreateTeacher(ctx, Teacher{
		ID:              uuid.NewString(),
		UserID:          usr.ID,
		DisplayName:     nt.DisplayName,
		Headline:        nt.Headline,
		Bio:             nt.Bio,
		Subjects:        nt.Subjects,
		HourlyRate:      nt.HourlyRate,
		City:            nt.City,
		Region:          nt.Region,
		OnlineAvailable: nt.OnlineAvailable,
		YearsExperience: nt.YearsExperience,
		TrustLevel:      TrustLevelB,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		if errors.Cause(err) == ErrProfileExists {
			return Teacher{}, core.NewValidationError(err)
		}
		return Teacher{}, errors.Wrap(err, "creating teacher")
	}

	if usr.IsStudent() {
		if _, err = svc.usrSvc.SetRole(ctx, usr, user.RoleTeacher); err != nil {
			return Teacher{}, errors.Wrap(err, "promoting user to teacher")
		}
	}
	return t, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (Teacher, error) {
	if id == "" {
		return Teacher{}, ErrNotFound
	}
	return svc.repo.GetTeacher(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUserID(ctx context.Context, userID string) (Teacher, error) {
	if userID == "" {
		return Teacher{}, ErrNotFound
	}
	return svc.repo.GetTeacher(ctx, GetFilter{UserID: userID})
}

func (svc *Service) Update(ctx context.Context, t Teacher, ut UpdateTeacher) (Teacher, error) {
	if ut.DisplayName != "" {
		t.DisplayName = ut.DisplayName
	}
	if ut.Headline != nil {
		t.Headline = core.CleanString(*ut.Headline)
	}
	if ut.Bio != nil {
		t.Bio = core.CleanString(*ut.Bio)
	}
	if ut.Subjects != nil {
		t.Subjects = ut.Subjects
	}
	if ut.HourlyRate != nil {
		t.HourlyRate = *ut.HourlyRate
	}
	if ut.City != nil {
		t.City = core.CleanString(*ut.City)
	}
	if ut.Region != nil {
		t.Region = *ut.Region
	}
	if ut.OnlineAvailable != nil {
		t.OnlineAvailable = *ut.OnlineAvailable
	}
	if ut.YearsExperience != nil {
		t.YearsExperience = *ut.YearsExperience
	}
	t.UpdatedAt = nowFunc().UTC()
	return svc.repo.UpdateTeacher(ctx, t)
}

func (svc *Service) Search(ctx context.Context, filter SearchFilter, page core.Pagination) (Page, error) {
	filter.Clean()
	page.Clean()
	items, total, err := svc.repo.SearchTeachers(ctx, filter, page)
	if err != nil {
		return Page{}, errors.Wrap(err, "searching teachers")
	}
	if items == nil {
		items = []Teacher{}
	}
	return Page{Items: items, PageInfo: core.NewPageInfo(page, total)}, nil
}

// SetTrustLevel changes the trust level (and verification) of a teacher, propagates it to their
// courses and notifies the teacher.
func (svc *Service) SetTrustLevel(ctx context.Context, t Teacher, st SetTrust) (Teacher, error) {
	verified := t.Verified
	if st.Verified != nil {
		verified = *st.Verified
	}
	updated, err := svc.repo.SetTrustLevel(ctx, t.ID, st.TrustLevel, verified, nowFunc().UTC())
	if err != nil {
		return Teacher{}, errors.Wrap(err, "setting trust level")
	}

	if updated.TrustLevel != t.TrustLevel || updated.Verified != t.Verified {
		body := fmt.Sprintf("Your trust level is now %s.", updated.TrustLevel)
		if updated.Verified {
			body += " Your profile is verified."
		}
		if _, err = svc.notifSvc.Notify(ctx, notification.NewNotification{
			UserID:    updated.UserID,
			Type:      notification.TypeTeacherVerified,
			Title:     "Your teacher profile has been reviewed",
			Body:      body,
			Link:      "/teachers/" + updated.ID,
			Important: true,
		}); err != nil {
			return Teacher{}, errors.Wrap(err, "notifying teacher")
		}
	}
	return updated, nil
}
