package sqlxrepos

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/review"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
	logsvc "github.com/findclassnz/findclass/services/logger"
	"github.com/findclassnz/findclass/storage/database"
)

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%maths%", likePattern("maths"))
	assert.Equal(t, `%100\%\_off\\%`, likePattern(`100%_off\`))
}

func TestBuildCourseSearch(t *testing.T) {
	minPrice, maxPrice := 1000, 5000
	where := buildCourseSearch(course.SearchFilter{
		Keyword:     "piano",
		Category:    "music",
		City:        "Wellington",
		MinPrice:    &minPrice,
		MaxPrice:    &maxPrice,
		TrustLevels: []string{"A", "S"},
		MinRating:   4,
		Statuses:    []string{course.StatusPublished},
	})

	q := sqlx.Rebind(sqlx.DOLLAR, "SELECT id FROM courses"+where.String())
	assert.Contains(t, q, "(title ILIKE $1 OR description ILIKE $2")
	assert.Contains(t, q, "tag ILIKE $3")
	assert.Contains(t, q, "category = $4")
	assert.Contains(t, q, "lower(city) = lower($5)")
	assert.Contains(t, q, "price >= $6 AND price <= $7")
	assert.Contains(t, q, "trust_level = ANY($8)")
	assert.Contains(t, q, "avg_rating >= $9")
	assert.Contains(t, q, "status = ANY($10)")
	assert.NotContains(t, q, "AND level =")
	assert.NotContains(t, q, "WHERE level =")
	assert.NotContains(t, q, "teacher_id")

	require.Len(t, where.args, 10)
	assert.Equal(t, "%piano%", where.args[0])
	assert.Equal(t, 1000, where.args[5])
	assert.Equal(t, pq.Array([]string{"A", "S"}), where.args[7])

	assert.Empty(t, buildCourseSearch(course.SearchFilter{}).String())
}

func TestBuildTeacherSearch(t *testing.T) {
	online := true
	where := buildTeacherSearch(teacher.SearchFilter{Subject: "physics", Region: "Otago", Online: &online})
	q := sqlx.Rebind(sqlx.DOLLAR, where.String())
	assert.Equal(t, " WHERE $1 = ANY(subjects) AND region = $2 AND online_available = $3", q)
	assert.Equal(t, []interface{}{"physics", "Otago", true}, where.args)
}

// testDB connects to TEST_DATABASE_URL and migrates it; the test is skipped when it is not set.
func testDB(t *testing.T) *sqlx.DB {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(ctx, db, logsvc.NewNopLogger()))

	t.Cleanup(func() {
		_, _ = db.Exec("TRUNCATE users, sessions, teachers, courses, reviews, notifications, favorites CASCADE")
		_ = db.Close()
	})
	return db
}

func TestRepositories(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	usrRepo := NewUserRepository(db)
	teacherRepo := NewTeacherRepository(db)
	courseRepo := NewCourseRepository(db)
	reviewRepo := NewReviewRepository(db)
	favRepo := NewFavoriteRepository(db)

	newUser := func(name, email, role string) user.User {
		usr := user.User{ID: uuid.NewString(), Name: name, Email: email, Role: role, IsActive: true, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, usr.SetPassword("Kp8#vLq2!x"))
		usr, err := usrRepo.CreateUser(ctx, usr)
		require.NoError(t, err)
		return usr
	}
	tui := newUser("Tui", "tui@findclass.nz", user.RoleTeacher)
	kiri := newUser("Kiri", "kiri@findclass.nz", user.RoleStudent)

	_, err := usrRepo.CreateUser(ctx, user.User{ID: uuid.NewString(), Email: kiri.Email, Role: user.RoleStudent, CreatedAt: now, UpdatedAt: now})
	assert.Equal(t, user.ErrEmailExists, err)
	assert.Equal(t, user.ErrEmailExists, usrRepo.CheckEmailUniqueness(ctx, kiri.Email))
	assert.NoError(t, usrRepo.CheckEmailUniqueness(ctx, kiri.Email, kiri))

	users, total, err := usrRepo.QueryUsers(ctx, user.QueryFilter{Search: "KIRI"}, nil, core.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, kiri.ID, users[0].ID)

	tch, err := teacherRepo.CreateTeacher(ctx, teacher.Teacher{
		ID: uuid.NewString(), UserID: tui.ID, DisplayName: "Tui", Subjects: []string{"piano"},
		TrustLevel: teacher.TrustLevelB, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	_, err = teacherRepo.CreateTeacher(ctx, teacher.Teacher{ID: uuid.NewString(), UserID: tui.ID, TrustLevel: teacher.TrustLevelB, CreatedAt: now, UpdatedAt: now})
	assert.Equal(t, teacher.ErrProfileExists, err)

	crs, err := courseRepo.CreateCourse(ctx, course.Course{
		ID: uuid.NewString(), TeacherID: tch.ID, Title: "Piano for beginners", Slug: "piano-for-beginners-" + uuid.NewString()[:8],
		Category: "music", Level: "all", Mode: course.ModeOnline, Price: 4500, LessonMinutes: 45,
		Tags: []string{"piano"}, Status: course.StatusPublished, TrustLevel: tch.TrustLevel, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)

	_, err = teacherRepo.SetTrustLevel(ctx, tch.ID, teacher.TrustLevelA, true, now)
	require.NoError(t, err)
	crs, err = courseRepo.GetCourse(ctx, course.GetFilter{Slug: crs.Slug})
	require.NoError(t, err)
	assert.Equal(t, teacher.TrustLevelA, crs.TrustLevel)

	rvw, err := reviewRepo.CreateReview(ctx, review.Review{
		ID: uuid.NewString(), CourseID: crs.ID, TeacherID: tch.ID, AuthorID: kiri.ID, Rating: 4, CreatedAt: now, UpdatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, "Kiri", rvw.AuthorName)
	_, err = reviewRepo.CreateReview(ctx, review.Review{
		ID: uuid.NewString(), CourseID: crs.ID, TeacherID: tch.ID, AuthorID: kiri.ID, Rating: 5, CreatedAt: now, UpdatedAt: now,
	})
	assert.Equal(t, review.ErrAlreadyReviewed, err)
	require.NoError(t, reviewRepo.RefreshRatings(ctx, crs.ID, tch.ID))

	items, total, err := courseRepo.SearchCourses(ctx, course.SearchFilter{
		Keyword: "piano", MinRating: 4, Statuses: []string{course.StatusPublished}, Sort: course.SortRating,
	}, core.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, 4.0, items[0].AvgRating)
	assert.Equal(t, 1, items[0].ReviewCount)

	require.NoError(t, favRepo.AddFavorite(ctx, kiri.ID, crs.ID, now))
	require.NoError(t, favRepo.AddFavorite(ctx, kiri.ID, crs.ID, now), "idempotent")
	favs, total, err := favRepo.QueryFavoriteCourses(ctx, kiri.ID, core.Pagination{Page: 1, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, crs.ID, favs[0].ID)

	require.NoError(t, usrRepo.DeleteUsersByID(ctx, kiri.ID))
	tch, err = teacherRepo.GetTeacher(ctx, teacher.GetFilter{ID: tch.ID})
	require.NoError(t, err)
	assert.Zero(t, tch.ReviewCount, "ratings refreshed once the author is gone")
}
