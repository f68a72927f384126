package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/storage/database"
)

const teacherColumns = `id, user_id, display_name, headline, bio, subjects, hourly_rate, city, region,
	online_available, years_experience, trust_level, verified, avg_rating, review_count, created_at, updated_at`

var teacherSorts = map[string]string{
	teacher.SortRating:   "avg_rating DESC, review_count DESC, created_at DESC",
	teacher.SortNewest:   "created_at DESC",
	teacher.SortRateAsc:  "hourly_rate ASC, created_at DESC",
	teacher.SortRateDesc: "hourly_rate DESC, created_at DESC",
}

type teacherRow struct {
	ID              string         `db:"id"`
	UserID          string         `db:"user_id"`
	DisplayName     string         `db:"display_name"`
	Headline        string         `db:"headline"`
	Bio             string         `db:"bio"`
	Subjects        pq.StringArray `db:"subjects"`
	HourlyRate      int            `db:"hourly_rate"`
	City            string         `db:"city"`
	Region          string         `db:"region"`
	OnlineAvailable bool           `db:"online_available"`
	YearsExperience int            `db:"years_experience"`
	TrustLevel      string         `db:"trust_level"`
	Verified        bool           `db:"verified"`
	AvgRating       float64        `db:"avg_rating"`
	ReviewCount     int            `db:"review_count"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

func toTeacherRow(t teacher.Teacher) teacherRow {
	subjects := t.Subjects
	if subjects == nil {
		subjects = []string{}
	}
	return teacherRow{
		ID:              t.ID,
		UserID:          t.UserID,
		DisplayName:     t.DisplayName,
		Headline:        t.Headline,
		Bio:             t.Bio,
		Subjects:        subjects,
		HourlyRate:      t.HourlyRate,
		City:            t.City,
		Region:          t.Region,
		OnlineAvailable: t.OnlineAvailable,
		YearsExperience: t.YearsExperience,
		TrustLevel:      t.TrustLevel,
		Verified:        t.Verified,
		AvgRating:       t.AvgRating,
		ReviewCount:     t.ReviewCount,
		CreatedAt:       t.CreatedAt.UTC(),
		UpdatedAt:       t.UpdatedAt.UTC(),
	}
}

func (row teacherRow) toTeacher() teacher.Teacher {
	subjects := []string(row.Subjects)
	if subjects == nil {
		subjects = []string{}
	}
	return teacher.Teacher{
		ID:              row.ID,
		UserID:          row.UserID,
		DisplayName:     row.DisplayName,
		Headline:        row.Headline,
		Bio:             row.Bio,
		Subjects:        subjects,
		HourlyRate:      row.HourlyRate,
		City:            row.City,
		Region:          row.Region,
		OnlineAvailable: row.OnlineAvailable,
		YearsExperience: row.YearsExperience,
		TrustLevel:      row.TrustLevel,
		Verified:        row.Verified,
		AvgRating:       row.AvgRating,
		ReviewCount:     row.ReviewCount,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
}

type teacherRepository struct {
	db *sqlx.DB
}

var _ teacher.Repository = (*teacherRepository)(nil)

func NewTeacherRepository(db *sqlx.DB) teacher.Repository {
	return &teacherRepository{db: db}
}

func (repo *teacherRepository) CreateTeacher(ctx context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	q := `INSERT INTO teachers (` + teacherColumns + `) VALUES (:id, :user_id, :display_name, :headline, :bio,
		:subjects, :hourly_rate, :city, :region, :online_available, :years_experience, :trust_level, :verified,
		:avg_rating, :review_count, :created_at, :updated_at)`
	row := toTeacherRow(t)
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		if database.IsUniqueViolation(err) {
			return teacher.Teacher{}, teacher.ErrProfileExists
		}
		return teacher.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return row.toTeacher(), nil
}

func (repo *teacherRepository) GetTeacher(ctx context.Context, filter teacher.GetFilter) (teacher.Teacher, error) {
	var cond, arg string
	switch {
	case filter.ID != "":
		cond, arg = "id = ?", filter.ID
	case filter.UserID != "":
		cond, arg = "user_id = ?", filter.UserID
	}
	if cond == "" || !isUUID(arg) {
		return teacher.Teacher{}, teacher.ErrNotFound
	}

	var row teacherRow
	q := repo.db.Rebind("SELECT " + teacherColumns + " FROM teachers WHERE " + cond)
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if database.IsNoRows(err) {
			return teacher.Teacher{}, teacher.ErrNotFound
		}
		return teacher.Teacher{}, errors.Wrap(err, "getting teacher")
	}
	return row.toTeacher(), nil
}

func (repo *teacherRepository) UpdateTeacher(ctx context.Context, t teacher.Teacher) (teacher.Teacher, error) {
	if !isUUID(t.ID) {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	q := `UPDATE teachers SET display_name = :display_name, headline = :headline, bio = :bio, subjects = :subjects,
		hourly_rate = :hourly_rate, city = :city, region = :region, online_available = :online_available,
		years_experience = :years_experience, updated_at = :updated_at
		WHERE id = :id RETURNING ` + teacherColumns
	return repo.namedGet(ctx, q, toTeacherRow(t))
}

func (repo *teacherRepository) namedGet(ctx context.Context, q string, arg interface{}) (teacher.Teacher, error) {
	rows, err := repo.db.NamedQueryContext(ctx, q, arg)
	if err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "updating teacher")
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return teacher.Teacher{}, errors.Wrap(err, "updating teacher")
		}
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	var row teacherRow
	if err = rows.StructScan(&row); err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "scanning teacher")
	}
	return row.toTeacher(), nil
}

func buildTeacherSearch(filter teacher.SearchFilter) whereClause {
	var where whereClause
	if filter.Keyword != "" {
		val := likePattern(filter.Keyword)
		where.add(`(display_name ILIKE ? OR headline ILIKE ? OR bio ILIKE ?
			OR EXISTS (SELECT 1 FROM unnest(subjects) AS subject WHERE subject ILIKE ?))`, val, val, val, val)
	}
	if filter.Subject != "" {
		where.add("? = ANY(subjects)", filter.Subject)
	}
	if filter.City != "" {
		where.add("lower(city) = lower(?)", filter.City)
	}
	if filter.Region != "" {
		where.add("region = ?", filter.Region)
	}
	if len(filter.TrustLevels) > 0 {
		where.add("trust_level = ANY(?)", pq.Array(filter.TrustLevels))
	}
	if filter.MinRating > 0 {
		where.add("avg_rating >= ?", filter.MinRating)
	}
	if filter.Online != nil {
		where.add("online_available = ?", *filter.Online)
	}
	return where
}

func (repo *teacherRepository) SearchTeachers(ctx context.Context, filter teacher.SearchFilter, page core.Pagination) ([]teacher.Teacher, int, error) {
	where := buildTeacherSearch(filter)
	total, err := count(ctx, repo.db, "teachers", where)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting teachers")
	}

	orderBy, ok := teacherSorts[filter.Sort]
	if !ok {
		orderBy = teacherSorts[teacher.SortRating]
	}
	q := "SELECT " + teacherColumns + " FROM teachers" + where.String() + " ORDER BY " + orderBy + " LIMIT ? OFFSET ?"
	var rows []teacherRow
	args := append(where.args, page.Limit, page.Offset())
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, 0, errors.Wrap(err, "searching teachers")
	}
	items := make([]teacher.Teacher, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toTeacher())
	}
	return items, total, nil
}

func (repo *teacherRepository) SetTrustLevel(ctx context.Context, id, level string, verified bool, at time.Time) (teacher.Teacher, error) {
	if !isUUID(id) {
		return teacher.Teacher{}, teacher.ErrNotFound
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var row teacherRow
	q := tx.Rebind(`UPDATE teachers SET trust_level = ?, verified = ?, updated_at = ?
		WHERE id = ? RETURNING ` + teacherColumns)
	if err = tx.GetContext(ctx, &row, q, level, verified, at.UTC(), id); err != nil {
		if database.IsNoRows(err) {
			return teacher.Teacher{}, teacher.ErrNotFound
		}
		return teacher.Teacher{}, errors.Wrap(err, "updating teacher trust level")
	}
	if _, err = tx.ExecContext(ctx, tx.Rebind("UPDATE courses SET trust_level = ? WHERE teacher_id = ?"), level, id); err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "updating courses trust level")
	}
	if err = tx.Commit(); err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "committing transaction")
	}
	return row.toTeacher(), nil
}
