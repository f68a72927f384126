package course

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/teacher"
)

// Modes
const (
	ModeOnline   = "online"
	ModeInPerson = "in_person"
	ModeHybrid   = "hybrid"
)

// Statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
	StatusArchived  = "archived"
)

// Search orderings
const (
	SortNewest    = "newest"
	SortPriceAsc  = "price_asc"
	SortPriceDesc = "price_desc"
	SortRating    = "rating"
)

type Choice struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

var (
	Modes    = []string{ModeOnline, ModeInPerson, ModeHybrid}
	Statuses = []string{StatusDraft, StatusPublished, StatusArchived}

	Categories = []Choice{
		{Name: "Mathematics", Value: "mathematics"},
		{Name: "Science", Value: "science"},
		{Name: "English", Value: "english"},
		{Name: "Languages", Value: "languages"},
		{Name: "Te Reo Māori", Value: "te_reo"},
		{Name: "Music", Value: "music"},
		{Name: "Arts", Value: "arts"},
		{Name: "Technology", Value: "technology"},
		{Name: "Sports", Value: "sports"},
		{Name: "Exam Preparation", Value: "exam_prep"},
		{Name: "Other", Value: "other"},
	}

	Levels = []Choice{
		{Name: "Primary", Value: "primary"},
		{Name: "Intermediate", Value: "intermediate"},
		{Name: "Secondary", Value: "secondary"},
		{Name: "NCEA", Value: "ncea"},
		{Name: "University", Value: "university"},
		{Name: "Adult", Value: "adult"},
		{Name: "All Levels", Value: "all"},
	}
)

func hasChoice(choices []Choice, val string) bool {
	for _, c := range choices {
		if c.Value == val {
			return true
		}
	}
	return false
}

func IsValidCategory(val string) bool { return hasChoice(Categories, val) }
func IsValidLevel(val string) bool    { return hasChoice(Levels, val) }

type Course struct {
	ID            string    `json:"id"`
	TeacherID     string    `json:"teacher_id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	Description   string    `json:"description"`
	Category      string    `json:"category"`
	Level         string    `json:"level"`
	Mode          string    `json:"mode"`
	City          string    `json:"city"`
	Region        string    `json:"region"`
	Price         int       `json:"price"` // NZD cents per lesson
	LessonMinutes int       `json:"lesson_minutes"`
	Tags          []string  `json:"tags"`
	CoverImageURL string    `json:"cover_image_url"`
	Status        string    `json:"status"`
	TrustLevel    string    `json:"trust_level"`
	AvgRating     float64   `json:"avg_rating"`
	ReviewCount   int       `json:"review_count"`
	CreatedAt     time.Time `json:"created_at"` // UTC
	UpdatedAt     time.Time `json:"updated_at"` // UTC
}

func (c Course) IsPublished() bool { return c.Status == StatusPublished }

// NewCourse contains information needed to create a Course.
type NewCourse struct {
	Title         string   `json:"title" validate:"required,min=3,max=150"`
	Description   string   `json:"description" validate:"max=10000"`
	Category      string   `json:"category" validate:"required,category"`
	Level         string   `json:"level" validate:"required,courselevel"`
	Mode          string   `json:"mode" validate:"required,oneof=online in_person hybrid"`
	City          string   `json:"city" validate:"required_unless=Mode online,max=100"`
	Region        string   `json:"region" validate:"omitempty,nzregion"`
	Price         int      `json:"price" validate:"min=0,max=10000000"`
	LessonMinutes int      `json:"lesson_minutes" validate:"required,min=15,max=480"`
	Tags          []string `json:"tags" validate:"max=10,dive,required,max=30"`
	Status        string   `json:"status" validate:"omitempty,oneof=draft published"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Description = core.CleanString(nc.Description)
	nc.Category = core.CleanString(nc.Category, true /* lower */)
	nc.Level = core.CleanString(nc.Level, true /* lower */)
	nc.Mode = core.CleanString(nc.Mode, true /* lower */)
	nc.City = core.CleanString(nc.City)
	nc.Tags = core.CleanStrings(nc.Tags, true /* lower */)
	nc.Status = core.CleanString(nc.Status, true /* lower */)
	if err := validate.Struct(nc); err != nil {
		return err
	}
	nc.Region = core.NormalizeRegion(nc.Region)
	if nc.Status == "" {
		nc.Status = StatusDraft
	}
	return nil
}

// UpdateCourse defines what information may be provided to modify an existing Course; nil fields are left unchanged.
type UpdateCourse struct {
	Title         *string  `json:"title" validate:"omitempty,min=3,max=150"`
	Description   *string  `json:"description" validate:"omitempty,max=10000"`
	Category      *string  `json:"category" validate:"omitempty,category"`
	Level         *string  `json:"level" validate:"omitempty,courselevel"`
	Mode          *string  `json:"mode" validate:"omitempty,oneof=online in_person hybrid"`
	City          *string  `json:"city" validate:"omitempty,max=100"`
	Region        *string  `json:"region" validate:"omitempty,nzregion"`
	Price         *int     `json:"price" validate:"omitempty,min=0,max=10000000"`
	LessonMinutes *int     `json:"lesson_minutes" validate:"omitempty,min=15,max=480"`
	Tags          []string `json:"tags" validate:"omitempty,max=10,dive,required,max=30"`
	Status        *string  `json:"status" validate:"omitempty,oneof=draft published archived"`
}

func (uc *UpdateCourse) Validate(validate *validator.Validate) error {
	cleanPtr := func(s *string, lower bool) {
		if s != nil {
			*s = core.CleanString(*s, lower)
		}
	}
	cleanPtr(uc.Title, false)
	cleanPtr(uc.Description, false)
	cleanPtr(uc.Category, true)
	cleanPtr(uc.Level, true)
	cleanPtr(uc.Mode, true)
	cleanPtr(uc.City, false)
	cleanPtr(uc.Status, true)
	if uc.Tags != nil {
		uc.Tags = core.CleanStrings(uc.Tags, true /* lower */)
	}
	if err := validate.Struct(uc); err != nil {
		return err
	}
	if uc.Region != nil {
		region := core.NormalizeRegion(*uc.Region)
		uc.Region = &region
	}
	return nil
}

// SearchFilter applies AND operation on the provided fields.
// Keyword does a case-insensitive match on the title, description or tags.
type SearchFilter struct {
	Keyword     string
	Category    string
	Level       string
	Mode        string
	City        string
	Region      string
	MinPrice    *int
	MaxPrice    *int
	TrustLevels []string
	MinRating   float64
	TeacherID   string
	Statuses    []string
	Sort        string
}

func (sf *SearchFilter) Clean() {
	sf.Keyword = core.CleanString(sf.Keyword)
	sf.Category = core.CleanString(sf.Category, true /* lower */)
	sf.Level = core.CleanString(sf.Level, true /* lower */)
	sf.Mode = core.CleanString(sf.Mode, true /* lower */)
	sf.City = core.CleanString(sf.City)
	sf.Region = core.NormalizeRegion(sf.Region)
	sf.TeacherID = core.CleanString(sf.TeacherID)
	sf.Statuses = core.CleanStrings(sf.Statuses, true /* lower */)

	levels := make([]string, 0, len(sf.TrustLevels))
	for _, l := range core.CleanStrings(sf.TrustLevels) {
		if l = strings.ToUpper(l); teacher.IsValidTrustLevel(l) {
			levels = append(levels, l)
		}
	}
	sf.TrustLevels = levels

	if sf.MinRating < 0 {
		sf.MinRating = 0
	}
	switch sf.Sort {
	case SortNewest, SortPriceAsc, SortPriceDesc, SortRating:
	default:
		sf.Sort = SortNewest
	}
}

// GetFilter selects a single Course; ID takes precedence over Slug.
type GetFilter struct {
	ID   string
	Slug string
}

type Page struct {
	Items []Course `json:"items"`
	core.PageInfo
}
