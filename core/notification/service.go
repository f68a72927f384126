// Package notification stores in-app notifications and emails the important ones.
package notification

import (
	"context"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/user"
)

var (
	nowFunc = time.Now // mockable

	// errors
	ErrNotFound    = errors.New("notification not found")
	errUnknownType = errors.New("unknown notification type")
)

type (
	Repository interface {
		CreateNotification(ctx context.Context, n Notification) error
		// QueryNotifications lists the notifications of a user, newest first.
		QueryNotifications(ctx context.Context, userID string, unreadOnly bool, page core.Pagination) ([]Notification, int, error)
		CountUnread(ctx context.Context, userID string) (int, error)
		// MarkRead marks the unread notifications of a user as read; all of them when ids is empty.
		MarkRead(ctx context.Context, userID string, ids []string, at time.Time) (int, error)
		// DeleteNotification returns ErrNotFound unless the notification exists and belongs to userID.
		DeleteNotification(ctx context.Context, userID, id string) error
	}

	emailData struct {
		Name  string
		Title string
		Body  string
		Link  string
	}

	Service struct {
		repo    Repository
		usrSvc  *user.Service
		mailSvc core.EmailService
		logger  core.Logger
	}
)

func NewService(repo Repository, usrSvc *user.Service, mailSvc core.EmailService, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		usrSvc:  usrSvc,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

func isValidType(typ string) bool {
	for _, t := range Types {
		if t == typ {
			return true
		}
	}
	return false
}

// Notify stores a notification and emails it when important. Email failures are logged only.
func (svc *Service) Notify(ctx context.Context, nn NewNotification) (Notification, error) {
	if !isValidType(nn.Type) {
		return Notification{}, errors.Wrap(errUnknownType, nn.Type)
	}
	n := Notification{
		ID:        uuid.NewString(),
		UserID:    nn.UserID,
		Type:      nn.Type,
		Title:     nn.Title,
		Body:      nn.Body,
		Link:      nn.Link,
		CreatedAt: nowFunc().UTC(),
	}
	if err := svc.repo.CreateNotification(ctx, n); err != nil {
		return Notification{}, errors.Wrap(err, "creating notification")
	}

	if nn.Important {
		usr, err := svc.usrSvc.GetByID(ctx, nn.UserID)
		if err != nil {
			svc.logger.Error("getting notified user", errors.Wrap(err, "finding user by ID"))
			return n, nil
		}
		if usr.IsActive {
			svc.mailSvc.SendMessages(&core.EmailMessage{
				To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
				Subject:      n.Title,
				Tag:          n.Type,
				TemplateName: "notification",
				TemplateData: emailData{Name: usr.Name, Title: n.Title, Body: n.Body, Link: n.Link},
			})
		}
	}
	return n, nil
}

func (svc *Service) List(ctx context.Context, userID string, unreadOnly bool, page core.Pagination) (Page, error) {
	page.Clean()
	items, total, err := svc.repo.QueryNotifications(ctx, userID, unreadOnly, page)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying notifications")
	}
	if items == nil {
		items = []Notification{}
	}
	unread, err := svc.UnreadCount(ctx, userID)
	if err != nil {
		return Page{}, err
	}
	return Page{Items: items, PageInfo: core.NewPageInfo(page, total), Unread: unread}, nil
}

func (svc *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := svc.repo.CountUnread(ctx, userID)
	return n, errors.Wrap(err, "counting unread notifications")
}

func (svc *Service) MarkRead(ctx context.Context, userID string, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := svc.repo.MarkRead(ctx, userID, ids, nowFunc().UTC())
	return n, errors.Wrap(err, "marking notifications read")
}

func (svc *Service) MarkAllRead(ctx context.Context, userID string) (int, error) {
	n, err := svc.repo.MarkRead(ctx, userID, nil, nowFunc().UTC())
	return n, errors.Wrap(err, "marking all notifications read")
}

func (svc *Service) Delete(ctx context.Context, userID, id string) error {
	return svc.repo.DeleteNotification(ctx, userID, id)
}
