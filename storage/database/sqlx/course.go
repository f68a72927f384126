package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/storage/database"
)

const courseColumns = `id, teacher_id, title, slug, description, category, level, mode, city, region, price,
	lesson_minutes, tags, cover_image_url, status, trust_level, avg_rating, review_count, created_at, updated_at`

var courseSorts = map[string]string{
	course.SortNewest:    "created_at DESC",
	course.SortPriceAsc:  "price ASC, created_at DESC",
	course.SortPriceDesc: "price DESC, created_at DESC",
	course.SortRating:    "avg_rating DESC, review_count DESC, created_at DESC",
}

type courseRow struct {
	ID            string         `db:"id"`
	TeacherID     string         `db:"teacher_id"`
	Title         string         `db:"title"`
	Slug          string         `db:"slug"`
	Description   string         `db:"description"`
	Category      string         `db:"category"`
	Level         string         `db:"level"`
	Mode          string         `db:"mode"`
	City          string         `db:"city"`
	Region        string         `db:"region"`
	Price         int            `db:"price"`
	LessonMinutes int            `db:"lesson_minutes"`
	Tags          pq.StringArray `db:"tags"`
	CoverImageURL string         `db:"cover_image_url"`
	Status        string         `db:"status"`
	TrustLevel    string         `db:"trust_level"`
	AvgRating     float64        `db:"avg_rating"`
	ReviewCount   int            `db:"review_count"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func toCourseRow(c course.Course) courseRow {
	tags := c.Tags
	if tags == nil {
		tags = []string{}
	}
	return courseRow{
		ID:            c.ID,
		TeacherID:     c.TeacherID,
		Title:         c.Title,
		Slug:          c.Slug,
		Description:   c.Description,
		Category:      c.Category,
		Level:         c.Level,
		Mode:          c.Mode,
		City:          c.City,
		Region:        c.Region,
		Price:         c.Price,
		LessonMinutes: c.LessonMinutes,
		Tags:          tags,
		CoverImageURL: c.CoverImageURL,
		Status:        c.Status,
		TrustLevel:    c.TrustLevel,
		AvgRating:     c.AvgRating,
		ReviewCount:   c.ReviewCount,
		CreatedAt:     c.CreatedAt.UTC(),
		UpdatedAt:     c.UpdatedAt.UTC(),
	}
}

func (row courseRow) toCourse() course.Course {
	tags := []string(row.Tags)
	if tags == nil {
		tags = []string{}
	}
	return course.Course{
		ID:            row.ID,
		TeacherID:     row.TeacherID,
		Title:         row.Title,
		Slug:          row.Slug,
		Description:   row.Description,
		Category:      row.Category,
		Level:         row.Level,
		Mode:          row.Mode,
		City:          row.City,
		Region:        row.Region,
		Price:         row.Price,
		LessonMinutes: row.LessonMinutes,
		Tags:          tags,
		CoverImageURL: row.CoverImageURL,
		Status:        row.Status,
		TrustLevel:    row.TrustLevel,
		AvgRating:     row.AvgRating,
		ReviewCount:   row.ReviewCount,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
}

func toCourses(rows []courseRow) []course.Course {
	items := make([]course.Course, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.toCourse())
	}
	return items
}

type courseRepository struct {
	db *sqlx.DB
}

var _ course.Repository = (*courseRepository)(nil)

func NewCourseRepository(db *sqlx.DB) course.Repository {
	return &courseRepository{db: db}
}

func (repo *courseRepository) CreateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	q := `INSERT INTO courses (` + courseColumns + `) VALUES (:id, :teacher_id, :title, :slug, :description,
		:category, :level, :mode, :city, :region, :price, :lesson_minutes, :tags, :cover_image_url, :status,
		:trust_level, :avg_rating, :review_count, :created_at, :updated_at)`
	row := toCourseRow(c)
	if _, err := repo.db.NamedExecContext(ctx, q, row); err != nil {
		if database.IsForeignKeyViolation(err) {
			return course.Course{}, teacher.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "inserting course")
	}
	return row.toCourse(), nil
}

func (repo *courseRepository) GetCourse(ctx context.Context, filter course.GetFilter) (course.Course, error) {
	var cond, arg string
	switch {
	case filter.ID != "":
		if !isUUID(filter.ID) {
			return course.Course{}, course.ErrNotFound
		}
		cond, arg = "id = ?", filter.ID
	case filter.Slug != "":
		cond, arg = "slug = ?", filter.Slug
	default:
		return course.Course{}, course.ErrNotFound
	}

	var row courseRow
	q := repo.db.Rebind("SELECT " + courseColumns + " FROM courses WHERE " + cond)
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if database.IsNoRows(err) {
			return course.Course{}, course.ErrNotFound
		}
		return course.Course{}, errors.Wrap(err, "getting course")
	}
	return row.toCourse(), nil
}

func (repo *courseRepository) UpdateCourse(ctx context.Context, c course.Course) (course.Course, error) {
	if !isUUID(c.ID) {
		return course.Course{}, course.ErrNotFound
	}
	q := `UPDATE courses SET title = :title, description = :description, category = :category, level = :level,
		mode = :mode, city = :city, region = :region, price = :price, lesson_minutes = :lesson_minutes, tags = :tags,
		cover_image_url = :cover_image_url, status = :status, updated_at = :updated_at
		WHERE id = :id RETURNING ` + courseColumns
	rows, err := repo.db.NamedQueryContext(ctx, q, toCourseRow(c))
	if err != nil {
		return course.Course{}, errors.Wrap(err, "updating course")
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return course.Course{}, errors.Wrap(err, "updating course")
		}
		return course.Course{}, course.ErrNotFound
	}
	var row courseRow
	if err = rows.StructScan(&row); err != nil {
		return course.Course{}, errors.Wrap(err, "scanning course")
	}
	return row.toCourse(), nil
}

// DeleteCourse deletes the course with its reviews, then refreshes the teacher rating.
func (repo *courseRepository) DeleteCourse(ctx context.Context, id string) error {
	if !isUUID(id) {
		return course.ErrNotFound
	}
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	var teacherID string
	if err = tx.GetContext(ctx, &teacherID, tx.Rebind("DELETE FROM courses WHERE id = ? RETURNING teacher_id"), id); err != nil {
		if database.IsNoRows(err) {
			return course.ErrNotFound
		}
		return errors.Wrap(err, "deleting course")
	}
	if err = refreshTeacherRating(ctx, tx, teacherID); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "committing transaction")
}

// buildCourseSearch turns filter into the WHERE clause of the marketplace search.
func buildCourseSearch(filter course.SearchFilter) whereClause {
	var where whereClause
	if filter.Keyword != "" {
		val := likePattern(filter.Keyword)
		where.add(`(title ILIKE ? OR description ILIKE ?
			OR EXISTS (SELECT 1 FROM unnest(tags) AS tag WHERE tag ILIKE ?))`, val, val, val)
	}
	if filter.Category != "" {
		where.add("category = ?", filter.Category)
	}
	if filter.Level != "" {
		where.add("level = ?", filter.Level)
	}
	if filter.Mode != "" {
		where.add("mode = ?", filter.Mode)
	}
	if filter.City != "" {
		where.add("lower(city) = lower(?)", filter.City)
	}
	if filter.Region != "" {
		where.add("region = ?", filter.Region)
	}
	if filter.MinPrice != nil {
		where.add("price >= ?", *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		where.add("price <= ?", *filter.MaxPrice)
	}
	if len(filter.TrustLevels) > 0 {
		where.add("trust_level = ANY(?)", pq.Array(filter.TrustLevels))
	}
	if filter.MinRating > 0 {
		where.add("avg_rating >= ?", filter.MinRating)
	}
	if filter.TeacherID != "" {
		where.add("teacher_id::text = ?", filter.TeacherID)
	}
	if len(filter.Statuses) > 0 {
		where.add("status = ANY(?)", pq.Array(filter.Statuses))
	}
	return where
}

func (repo *courseRepository) SearchCourses(ctx context.Context, filter course.SearchFilter, page core.Pagination) ([]course.Course, int, error) {
	where := buildCourseSearch(filter)
	total, err := count(ctx, repo.db, "courses", where)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting courses")
	}

	orderBy, ok := courseSorts[filter.Sort]
	if !ok {
		orderBy = courseSorts[course.SortNewest]
	}
	q := "SELECT " + courseColumns + " FROM courses" + where.String() + " ORDER BY " + orderBy + " LIMIT ? OFFSET ?"
	var rows []courseRow
	args := append(where.args, page.Limit, page.Offset())
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, 0, errors.Wrap(err, "searching courses")
	}
	return toCourses(rows), total, nil
}
