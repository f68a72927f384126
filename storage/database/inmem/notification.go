package inmemdb

import (
	"context"
	"time"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/notification"
)

type notificationRepository struct {
	db *DB
}

var _ notification.Repository = (*notificationRepository)(nil)

func NewNotificationRepository(db *DB) notification.Repository {
	return &notificationRepository{db: db}
}

func (repo *notificationRepository) CreateNotification(_ context.Context, n notification.Notification) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	repo.db.notifications[n.ID] = &n
	return nil
}

func (repo *notificationRepository) QueryNotifications(_ context.Context, userID string, unreadOnly bool, page core.Pagination) ([]notification.Notification, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	items := make([]notification.Notification, 0)
	for _, n := range repo.db.notifications {
		if n.UserID != userID || (unreadOnly && n.IsRead()) {
			continue
		}
		items = append(items, *n)
	}
	total := len(items)
	newest := func(a, b notification.Notification) bool { return a.CreatedAt.After(b.CreatedAt) }
	return paginate(items, newest, page.Offset(), page.Limit), total, nil
}

func (repo *notificationRepository) CountUnread(_ context.Context, userID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, n := range repo.db.notifications {
		if n.UserID == userID && !n.IsRead() {
			count++
		}
	}
	return count, nil
}

func (repo *notificationRepository) MarkRead(_ context.Context, userID string, ids []string, at time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var count int
	for _, n := range repo.db.notifications {
		if n.UserID != userID || n.IsRead() || (len(ids) > 0 && !contains(ids, n.ID)) {
			continue
		}
		readAt := at
		n.ReadAt = &readAt
		count++
	}
	return count, nil
}

func (repo *notificationRepository) DeleteNotification(_ context.Context, userID, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	n, ok := repo.db.notifications[id]
	if !ok || n.UserID != userID {
		return notification.ErrNotFound
	}
	delete(repo.db.notifications, id)
	return nil
}
