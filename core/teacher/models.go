package teacher

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/findclassnz/findclass/core"
)

// Trust levels, from lowest to highest.
const (
	TrustLevelB = "B" // basic: identity checked
	TrustLevelA = "A" // advanced: qualifications checked
	TrustLevelS = "S" // super: outstanding track record
)

var TrustLevels = []string{TrustLevelB, TrustLevelA, TrustLevelS}

// TrustRank orders trust levels; 0 for unknown levels.
func TrustRank(level string) int {
	for i, l := range TrustLevels {
		if l == level {
			return i + 1
		}
	}
	return 0
}

func IsValidTrustLevel(level string) bool { return TrustRank(level) > 0 }

// Search orderings
const (
	SortRating   = "rating"
	SortNewest   = "newest"
	SortRateAsc  = "rate_asc"
	SortRateDesc = "rate_desc"
)

type Teacher struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	DisplayName     string    `json:"display_name"`
	Headline        string    `json:"headline"`
	Bio             string    `json:"bio"`
	Subjects        []string  `json:"subjects"`
	HourlyRate      int       `json:"hourly_rate"` // NZD cents
	City            string    `json:"city"`
	Region          string    `json:"region"`
	OnlineAvailable bool      `json:"online_available"`
	YearsExperience int       `json:"years_experience"`
	TrustLevel      string    `json:"trust_level"`
	Verified        bool      `json:"verified"`
	AvgRating       float64   `json:"avg_rating"`
	ReviewCount     int       `json:"review_count"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

// NewTeacher contains information needed to create a teacher profile.
type NewTeacher struct {
	DisplayName     string   `json:"display_name" validate:"required,max=100"`
	Headline        string   `json:"headline" validate:"max=200"`
	Bio             string   `json:"bio" validate:"max=5000"`
	Subjects        []string `json:"subjects" validate:"required,min=1,max=20,dive,required,max=50"`
	HourlyRate      int      `json:"hourly_rate" validate:"min=0,max=10000000"`
	City            string   `json:"city" validate:"max=100"`
	Region          string   `json:"region" validate:"omitempty,nzregion"`
	OnlineAvailable bool     `json:"online_available"`
	YearsExperience int      `json:"years_experience" validate:"min=0,max=80"`
}

func (nt *NewTeacher) Validate(validate *validator.Validate) error {
	nt.DisplayName = core.CleanString(nt.DisplayName)
	nt.Headline = core.CleanString(nt.Headline)
	nt.Bio = core.CleanString(nt.Bio)
	nt.Subjects = core.CleanStrings(nt.Subjects, true /* lower */)
	nt.City = core.CleanString(nt.City)
	if err := validate.Struct(nt); err != nil {
		return err
	}
	nt.Region = core.NormalizeRegion(nt.Region)
	return nil
}

// UpdateTeacher defines what a teacher may change on their profile; nil/empty fields are left unchanged.
type UpdateTeacher struct {
	DisplayName     string   `json:"display_name" validate:"max=100"`
	Headline        *string  `json:"headline" validate:"omitempty,max=200"`
	Bio             *string  `json:"bio" validate:"omitempty,max=5000"`
	Subjects        []string `json:"subjects" validate:"omitempty,min=1,max=20,dive,required,max=50"`
	HourlyRate      *int     `json:"hourly_rate" validate:"omitempty,min=0,max=10000000"`
	City            *string  `json:"city" validate:"omitempty,max=100"`
	Region          *string  `json:"region" validate:"omitempty,nzregion"`
	OnlineAvailable *bool    `json:"online_available"`
	YearsExperience *int     `json:"years_experience" validate:"omitempty,min=0,max=80"`
}

func (ut *UpdateTeacher) Validate(validate *validator.Validate) error {
	ut.DisplayName = core.CleanString(ut.DisplayName)
	if ut.Subjects != nil {
		ut.Subjects = core.CleanStrings(ut.Subjects, true /* lower */)
	}
	if err := validate.Struct(ut); err != nil {
		return err
	}
	if ut.Region != nil {
		region := core.NormalizeRegion(*ut.Region)
		ut.Region = &region
	}
	return nil
}

// SetTrust is the admin request to change the trust level of a teacher.
type SetTrust struct {
	TrustLevel string `json:"trust_level" validate:"required,trustlevel"`
	Verified   *bool  `json:"verified"`
}

func (st *SetTrust) Validate(validate *validator.Validate) error {
	st.TrustLevel = strings.ToUpper(core.CleanString(st.TrustLevel))
	return validate.Struct(st)
}

type SearchFilter struct {
	Keyword     string
	Subject     string
	City        string
	Region      string
	TrustLevels []string
	MinRating   float64
	Online      *bool
	Sort        string
}

func (sf *SearchFilter) Clean() {
	sf.Keyword = core.CleanString(sf.Keyword)
	sf.Subject = core.CleanString(sf.Subject, true /* lower */)
	sf.City = core.CleanString(sf.City)
	sf.Region = core.NormalizeRegion(sf.Region)
	levels := make([]string, 0, len(sf.TrustLevels))
	for _, l := range core.CleanStrings(sf.TrustLevels) {
		if l = strings.ToUpper(l); IsValidTrustLevel(l) {
			levels = append(levels, l)
		}
	}
	sf.TrustLevels = levels
	switch sf.Sort {
	case SortRating, SortNewest, SortRateAsc, SortRateDesc:
	default:
		sf.Sort = SortRating
	}
}

// GetFilter selects a single Teacher; ID takes precedence over UserID.
type GetFilter struct {
	ID     string
	UserID string
}

type Page struct {
	Items []Teacher `json:"items"`
	core.PageInfo
}
