package teacher_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/notification"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
	"github.com/findclassnz/findclass/tests"
)

func TestTrustRank(t *testing.T) {
	assert.True(t, teacher.TrustRank(teacher.TrustLevelB) < teacher.TrustRank(teacher.TrustLevelA))
	assert.True(t, teacher.TrustRank(teacher.TrustLevelA) < teacher.TrustRank(teacher.TrustLevelS))
	assert.Equal(t, 0, teacher.TrustRank("s"))
	assert.False(t, teacher.IsValidTrustLevel("C"))
}

func TestService_Create(t *testing.T) {
	ctx := context.Background()
	stack := testutil.NewStack(t)
	student := testutil.CreateUser(t, stack.UserRepo, "Aroha", "aroha@test.nz", user.RoleStudent, true)
	admin := testutil.CreateUser(t, stack.UserRepo, "Admin", "admin@test.nz", user.RoleAdmin, true)

	tchr, err := stack.TeacherSvc.Create(ctx, student, teacher.NewTeacher{DisplayName: "Aroha", Subjects: []string{"music"}})
	require.NoError(t, err)
	assert.Equal(t, teacher.TrustLevelB, tchr.TrustLevel)
	assert.Equal(t, 0, tchr.ReviewCount)

	usr, err := stack.UserSvc.GetByID(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleTeacher, usr.Role)

	got, err := stack.TeacherSvc.GetByUserID(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, tchr.ID, got.ID)

	_, err = stack.TeacherSvc.Create(ctx, usr, teacher.NewTeacher{DisplayName: "Again", Subjects: []string{"music"}})
	vErr, ok := err.(*core.ValidationError)
	require.True(t, ok)
	assert.Equal(t, teacher.ErrProfileExists, vErr.Err)

	// admins keep their role
	_, err = stack.TeacherSvc.Create(ctx, admin, teacher.NewTeacher{DisplayName: "Admin", Subjects: []string{"science"}})
	require.NoError(t, err)
	usr, err = stack.UserSvc.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, usr.Role)

	_, err = stack.TeacherSvc.GetByID(ctx, "")
	assert.Equal(t, teacher.ErrNotFound, err)
}

func TestService_SetTrustLevel(t *testing.T) {
	ctx := context.Background()
	stack := testutil.NewStack(t)
	usr, tchr := stack.CreateTeacher(t, "Mere", "mere@test.nz")
	c := stack.CreateCourse(t, usr, "Algebra Basics", course.StatusDraft, 2000)

	verified := true
	updated, err := stack.TeacherSvc.SetTrustLevel(ctx, tchr, teacher.SetTrust{TrustLevel: teacher.TrustLevelS, Verified: &verified})
	require.NoError(t, err)
	assert.Equal(t, teacher.TrustLevelS, updated.TrustLevel)
	assert.True(t, updated.Verified)

	got, err := stack.CourseSvc.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, teacher.TrustLevelS, got.TrustLevel)

	page, err := stack.NotifSvc.List(ctx, usr.ID, false, core.Pagination{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, notification.TypeTeacherVerified, page.Items[0].Type)
	assert.Contains(t, page.Items[0].Body, "verified")

	// verification is kept when omitted; nothing changes, nobody is notified
	updated, err = stack.TeacherSvc.SetTrustLevel(ctx, updated, teacher.SetTrust{TrustLevel: teacher.TrustLevelS})
	require.NoError(t, err)
	assert.True(t, updated.Verified)
	count, err := stack.NotifSvc.UnreadCount(ctx, usr.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	stack := testutil.NewStack(t)
	_, tchr := stack.CreateTeacher(t, "Mere", "mere@test.nz", "mathematics")

	bio, rate := "  Twenty years in the classroom ", 7500
	updated, err := stack.TeacherSvc.Update(ctx, tchr, teacher.UpdateTeacher{Bio: &bio, HourlyRate: &rate})
	require.NoError(t, err)
	assert.Equal(t, "Twenty years in the classroom", updated.Bio)
	assert.Equal(t, 7500, updated.HourlyRate)
	assert.Equal(t, tchr.DisplayName, updated.DisplayName)
	assert.Equal(t, []string{"mathematics"}, updated.Subjects)
	assert.True(t, updated.UpdatedAt.After(tchr.UpdatedAt) || updated.UpdatedAt.Equal(tchr.UpdatedAt))
}

func TestSearchFilter_Clean(t *testing.T) {
	sf := teacher.SearchFilter{
		Keyword:     "  maths ",
		Subject:     "Music",
		Region:      "waikato",
		TrustLevels: []string{"a", " s ", "z"},
		Sort:        "cheapest",
	}
	sf.Clean()
	assert.Equal(t, "maths", sf.Keyword)
	assert.Equal(t, "music", sf.Subject)
	assert.Equal(t, "Waikato", sf.Region)
	assert.Equal(t, []string{teacher.TrustLevelA, teacher.TrustLevelS}, sf.TrustLevels)
	assert.Equal(t, teacher.SortRating, sf.Sort)
}
