package review

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/findclassnz/findclass/core"
)

type Review struct {
	ID         string    `json:"id"`
	CourseID   string    `json:"course_id"`
	TeacherID  string    `json:"teacher_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"` // read only
	Rating     int       `json:"rating"`
	Comment    string    `json:"comment"`
	CreatedAt  time.Time `json:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at"` // UTC
}

type NewReview struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

func (nr *NewReview) Validate(validate *validator.Validate) error {
	nr.Comment = core.CleanString(nr.Comment)
	return validate.Struct(nr)
}

type UpdateReview struct {
	Rating  *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	Comment *string `json:"comment" validate:"omitempty,max=2000"`
}

func (ur *UpdateReview) Validate(validate *validator.Validate) error {
	if ur.Comment != nil {
		comment := core.CleanString(*ur.Comment)
		ur.Comment = &comment
	}
	return validate.Struct(ur)
}

// QueryFilter applies AND operation on the provided fields.
type QueryFilter struct {
	CourseID  string
	TeacherID string
	AuthorID  string
}

type Page struct {
	Items []Review `json:"items"`
	core.PageInfo
}
