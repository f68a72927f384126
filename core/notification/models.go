package notification

import (
	"time"

	"github.com/findclassnz/findclass/core"
)

// Notification types
const (
	TypeReviewReceived  = "review_received"
	TypeTeacherVerified = "teacher_verified"
	TypeCoursePublished = "course_published"
	TypeSystem          = "system"
)

var Types = []string{TypeReviewReceived, TypeTeacherVerified, TypeCoursePublished, TypeSystem}

type Notification struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Link      string     `json:"link"`
	ReadAt    *time.Time `json:"read_at"`    // UTC
	CreatedAt time.Time  `json:"created_at"` // UTC
}

func (n Notification) IsRead() bool { return n.ReadAt != nil }

// NewNotification contains information needed to notify a user.
// Important notifications are also sent by email.
type NewNotification struct {
	UserID    string
	Type      string
	Title     string
	Body      string
	Link      string // relative to the frontend base URL
	Important bool
}

type MarkRead struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,uuid"`
}

type Page struct {
	Items []Notification `json:"items"`
	core.PageInfo
	Unread int `json:"unread"`
}
