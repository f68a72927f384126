// Package inmemdb implements every repository in memory, for local runs and tests.
package inmemdb

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/findclassnz/findclass/core/auth"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/notification"
	"github.com/findclassnz/findclass/core/review"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
)

// DB holds all the tables behind a single lock so that cross-table updates stay consistent.
type DB struct {
	mutex sync.RWMutex

	users         map[string]*user.User
	sessions      map[string]*auth.Session // by jti
	teachers      map[string]*teacher.Teacher
	courses       map[string]*course.Course
	reviews       map[string]*review.Review
	notifications map[string]*notification.Notification
	favorites     map[string]map[string]time.Time // {userID: {courseID: savedAt}}
}

func Open() *DB {
	return &DB{
		users:         make(map[string]*user.User),
		sessions:      make(map[string]*auth.Session),
		teachers:      make(map[string]*teacher.Teacher),
		courses:       make(map[string]*course.Course),
		reviews:       make(map[string]*review.Review),
		notifications: make(map[string]*notification.Notification),
		favorites:     make(map[string]map[string]time.Time),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	fresh := Open()
	db.users = fresh.users
	db.sessions = fresh.sessions
	db.teachers = fresh.teachers
	db.courses = fresh.courses
	db.reviews = fresh.reviews
	db.notifications = fresh.notifications
	db.favorites = fresh.favorites
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func anyContainsFold(ss []string, substr string) bool {
	for _, s := range ss {
		if containsFold(s, substr) {
			return true
		}
	}
	return false
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}

func copyStrings(ss []string) []string {
	if ss == nil {
		return []string{}
	}
	return append([]string(nil), ss...)
}

// paginate sorts items with less then returns the requested page.
func paginate[T any](items []T, less func(a, b T) bool, offset, limit int) []T {
	sort.SliceStable(items, func(i, j int) bool { return less(items[i], items[j]) })
	total := len(items)
	if offset < 0 {
		offset = 0
	}
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return items[offset:end]
}
