package tests

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/user"
	"github.com/findclassnz/findclass/tests"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func userPage(t *testing.T, users ...user.User) []byte {
	if users == nil {
		users = []user.User{}
	}
	page := core.Pagination{Page: 1, Limit: core.DefaultPageLimit}
	return marchallObj(t, user.Page{Items: users, PageInfo: core.NewPageInfo(page, len(users))})
}

func Test_userApi_query(t *testing.T) {
	stack, app := setup(t)
	repo := stack.UserRepo

	path := func(search, ordering string, createdFrom, createdTo time.Time, isActive *bool, roles ...string) string {
		v := make(url.Values)
		if search != "" {
			v.Add("search", search)
		}
		if ordering != "" {
			v.Add("ordering", ordering)
		}
		if isActive != nil {
			v.Add("is_active", strconv.FormatBool(*isActive))
		}
		if !createdFrom.IsZero() {
			v.Add("created_from", createdFrom.Format(time.RFC3339))
		}
		if !createdTo.IsZero() {
			v.Add("created_to", createdTo.Format(time.RFC3339))
		}
		for _, r := range roles {
			v.Add("role", r)
		}
		return apiPath + "/users?" + v.Encode()
	}
	bPtr := func(b bool) *bool { return &b }

	now := time.Now().Truncate(time.Second)
	t1 := now.Add(1 * time.Hour)
	t2 := now.Add(2 * time.Hour)
	t3 := now.Add(3 * time.Hour)
	t4 := now.Add(4 * time.Hour)
	t5 := now.Add(5 * time.Hour)

	usr1 := testutil.CreateUser(t, repo, "User", "awe@test.nz", "", true, t1)
	usr2 := testutil.CreateUser(t, repo, "King", "king@test.nz", "", true, now.Add(-3*time.Hour))
	student := testutil.CreateUser(t, repo, "Hero", "user3@test.nz", user.RoleStudent, true, now.Add(-2*time.Hour))
	admin := testutil.CreateUser(t, repo, "Admin", "admin@test.nz", user.RoleAdmin, true, t2)
	teacher := testutil.CreateUser(t, repo, "Teacher", "teacher@test.nz", user.RoleTeacher, true, t3)
	naughty := testutil.CreateUser(t, repo, "N Dog", "ndog@test.nz", user.RoleStudent, false, now.Add(-1*time.Hour)) // 😂

	adminToken := getToken(t, stack, admin)

	tests := []httpTest{
		{name: "Auth required", path: apiPath + "/users", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "Admin required", path: apiPath + "/users", token: getToken(t, stack, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Get all", path: apiPath + "/users", token: adminToken,
			wantData: userPage(t, teacher, admin, usr1, naughty, student, usr2),
		},
		// filtering
		{name: "search (unknown)", path: path("lol", "", time.Time{}, time.Time{}, nil), token: adminToken, wantData: userPage(t)},
		{
			name: "search=USE", path: path("USE", "", time.Time{}, time.Time{}, nil),
			token: adminToken, wantData: userPage(t, usr1, student),
		},
		{name: "role (unknown)", path: path("", "", time.Time{}, time.Time{}, nil, "lol"), token: adminToken, wantData: userPage(t)},
		{
			name: "role=admin", path: path("", "", time.Time{}, time.Time{}, nil, user.RoleAdmin),
			token: adminToken, wantData: userPage(t, admin),
		},
		{
			name: "role=teacher,student", path: path("", "", time.Time{}, time.Time{}, nil, user.RoleTeacher, user.RoleStudent),
			token: adminToken, wantData: userPage(t, teacher, usr1, naughty, student, usr2),
		},
		{name: "is_active=false", path: path("", "", time.Time{}, time.Time{}, bPtr(false)), token: adminToken, wantData: userPage(t, naughty)},
		{
			name: "created_from", path: path("", "", t1, time.Time{}, nil),
			token: adminToken, wantData: userPage(t, teacher, admin, usr1),
		},
		{
			name: "created_from (UTC)", path: path("", "", t1.UTC(), time.Time{}, nil),
			token: adminToken, wantData: userPage(t, teacher, admin, usr1),
		},
		{name: "created_from - created_to (empty)", path: path("", "", t4, t5, nil), token: adminToken, wantData: userPage(t)},
		{name: "created_from - created_to (found)", path: path("", "", t1, t2, nil), token: adminToken, wantData: userPage(t, admin, usr1)},
		{
			name: "all combo (found)", path: path("tea", "", t1, t5, bPtr(true), user.RoleTeacher),
			token: adminToken, wantData: userPage(t, teacher),
		},
		// ordering
		{
			name: "order by created_at", path: path("", "created_at", time.Time{}, time.Time{}, nil), token: adminToken,
			wantData: userPage(t, usr2, student, naughty, usr1, admin, teacher),
		},
		{
			name: "order by name", path: path("", "name", time.Time{}, time.Time{}, nil), token: adminToken,
			wantData: userPage(t, admin, student, usr2, naughty, teacher, usr1),
		},
		{
			name: "order by -role,name", path: path("", "-role,name", time.Time{}, time.Time{}, nil), token: adminToken,
			wantData: userPage(t, admin, teacher, student, usr2, naughty, usr1),
		},
		// bad params
		{
			name: "bad created_from", path: apiPath + "/users?created_from=yesterday", token: adminToken,
			wantCode: http.StatusBadRequest, wantData: marchallObj(t, map[string]string{"created_from": "invalid value"}),
		},
	}
	for _, tt := range tests {
		tt.method = http.MethodGet
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}

		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_me(t *testing.T) {
	stack, app := setup(t)

	student := testutil.CreateUser(t, stack.UserRepo, "Hero", "hero@test.nz", user.RoleStudent, true)
	naughty := testutil.CreateUser(t, stack.UserRepo, "N Dog", "ndog@test.nz", user.RoleStudent, false)
	token := getToken(t, stack, student)

	tests := []httpTest{
		{name: "Auth required", method: http.MethodGet, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "Bad token", method: http.MethodGet, token: "not-a-jwt", wantCode: http.StatusUnauthorized},
		{
			name: "Inactive user not allowed", method: http.MethodGet, token: getToken(t, stack, naughty),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "Get profile", method: http.MethodGet, token: token, wantCode: http.StatusOK, wantData: marchallObj(t, student)},
		{
			name: "Invalid phone", method: http.MethodPut, token: token,
			body: []byte(`{"phone": "not a phone"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "Update profile", method: http.MethodPut, token: token,
			body: []byte(`{"name": "  Super Hero ", "phone": "+64211234567"}`), wantCode: http.StatusOK,
			extra: func(t *testing.T) {
				usr, err := stack.UserSvc.GetByID(context.Background(), student.ID)
				assert.NoError(t, err)
				assert.Equal(t, "Super Hero", usr.Name)
				assert.Equal(t, "+64211234567", usr.Phone)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, apiPath+"/users/me", tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
			if check, ok := tt.extra.(func(t *testing.T)); ok {
				check(t)
			}
		})
	}
}

func Test_userApi_uploadAvatar(t *testing.T) {
	stack, app := setup(t)

	student := testutil.CreateUser(t, stack.UserRepo, "Hero", "hero@test.nz", user.RoleStudent, true)
	token := getToken(t, stack, student)
	path := apiPath + "/users/me/avatar"

	t.Run("Missing file", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, token)
		app.ServeHTTP(rec, req)
		checkErrFields(t, rec, "file")
	})

	t.Run("Not an image", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, token, "notes.txt", []byte("hello world"))
		app.ServeHTTP(rec, req)
		checkErrFields(t, rec, "file")
	})

	var firstURL string
	t.Run("Upload avatar", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, token, "me.png", pngHeader)
		app.ServeHTTP(rec, req)
		if !assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String()) {
			return
		}
		var usr user.User
		unmarshall(t, rec.Body.Bytes(), &usr)
		assert.True(t, strings.HasPrefix(usr.AvatarURL, stack.Conf.Storage.BaseURL+"/avatars/"+student.ID+"/"))
		assert.True(t, strings.HasSuffix(usr.AvatarURL, ".png"))
		firstURL = usr.AvatarURL
	})

	t.Run("Replace avatar", func(t *testing.T) {
		req, rec := newUploadRequest(t, path, token, "me2.png", pngHeader)
		app.ServeHTTP(rec, req)
		if !assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String()) {
			return
		}
		var usr user.User
		unmarshall(t, rec.Body.Bytes(), &usr)
		assert.NotEqual(t, firstURL, usr.AvatarURL)

		// the previous avatar is gone
		oldPath := strings.TrimPrefix(firstURL, "http://localhost:8000")
		req, rec = newRequest(http.MethodGet, oldPath)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_userApi_favorites(t *testing.T) {
	stack, app := setup(t)

	student := testutil.CreateUser(t, stack.UserRepo, "Hero", "hero@test.nz", user.RoleStudent, true)
	tchrUsr, _ := stack.CreateTeacher(t, "Mere", "mere@test.nz")
	published := stack.CreateCourse(t, tchrUsr, "Algebra Basics", course.StatusPublished, 4000)
	draft := stack.CreateCourse(t, tchrUsr, "Calculus Draft", course.StatusDraft, 6000)
	token := getToken(t, stack, student)
	favPath := func(id string) string { return apiPath + "/users/me/favorites/" + id }

	tests := []httpTest{
		{name: "Auth required", method: http.MethodPut, path: favPath(published.ID), wantCode: http.StatusUnauthorized},
		{name: "Unknown course", method: http.MethodPut, path: favPath("00000000-0000-0000-0000-000000000000"), token: token, wantCode: http.StatusNotFound},
		{name: "Draft course", method: http.MethodPut, path: favPath(draft.ID), token: token, wantCode: http.StatusNotFound},
		{name: "Add favorite", method: http.MethodPut, path: favPath(published.ID), token: token, wantCode: http.StatusNoContent},
		{name: "Add favorite (idempotent)", method: http.MethodPut, path: favPath(published.ID), token: token, wantCode: http.StatusNoContent},
		{
			name: "List favorites", method: http.MethodGet, path: apiPath + "/users/me/favorites", token: token, wantCode: http.StatusOK,
			extra: func(t *testing.T, body []byte) {
				var page course.Page
				unmarshall(t, body, &page)
				if assert.Len(t, page.Items, 1) {
					assert.Equal(t, published.ID, page.Items[0].ID)
				}
				assert.Equal(t, 1, page.Total)
			},
		},
		{name: "Remove favorite", method: http.MethodDelete, path: favPath(published.ID), token: token, wantCode: http.StatusNoContent},
		{
			name: "List favorites (empty)", method: http.MethodGet, path: apiPath + "/users/me/favorites", token: token, wantCode: http.StatusOK,
			extra: func(t *testing.T, body []byte) {
				var page course.Page
				unmarshall(t, body, &page)
				assert.Empty(t, page.Items)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
			if check, ok := tt.extra.(func(t *testing.T, body []byte)); ok {
				check(t, rec.Body.Bytes())
			}
		})
	}
}

func Test_userApi_retrieveUpdateDestroy(t *testing.T) {
	stack, app := setup(t)
	repo := stack.UserRepo

	admin := testutil.CreateUser(t, repo, "Admin", "admin@test.nz", user.RoleAdmin, true)
	student := testutil.CreateUser(t, repo, "Hero", "hero@test.nz", user.RoleStudent, true)
	victim := testutil.CreateUser(t, repo, "Victim", "victim@test.nz", user.RoleStudent, true)
	adminToken := getToken(t, stack, admin)
	path := func(id string) string { return apiPath + "/users/" + id }

	tests := []httpTest{
		{name: "Admin required", method: http.MethodGet, path: path(student.ID), token: getToken(t, stack, student), wantCode: http.StatusForbidden},
		{name: "Not found", method: http.MethodGet, path: path("lol"), token: adminToken, wantCode: http.StatusNotFound, wantData: marchallObj(t, errNotFound)},
		{name: "Retrieve", method: http.MethodGet, path: path(student.ID), token: adminToken, wantCode: http.StatusOK, wantData: marchallObj(t, student)},
		{
			name: "Invalid role", method: http.MethodPut, path: path(student.ID), token: adminToken,
			body: []byte(`{"role": "overlord"}`), wantCode: http.StatusBadRequest,
		},
		{
			name: "Cannot deactivate self", method: http.MethodPut, path: path(admin.ID), token: adminToken,
			body: []byte(`{"is_active": false}`), wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden),
		},
		{
			name: "Cannot change own role", method: http.MethodPut, path: path(admin.ID), token: adminToken,
			body: []byte(`{"role": "student"}`), wantCode: http.StatusForbidden,
		},
		{
			name: "Promote to teacher", method: http.MethodPut, path: path(student.ID), token: adminToken,
			body: []byte(`{"role": "teacher", "is_active": false}`), wantCode: http.StatusOK,
			extra: func(t *testing.T) {
				usr, err := stack.UserSvc.GetByID(context.Background(), student.ID)
				assert.NoError(t, err)
				assert.Equal(t, user.RoleTeacher, usr.Role)
				assert.False(t, usr.IsActive)
			},
		},
		{name: "Cannot delete self", method: http.MethodDelete, path: path(admin.ID), token: adminToken, wantCode: http.StatusForbidden},
		{
			name: "Delete", method: http.MethodDelete, path: path(victim.ID), token: adminToken, wantCode: http.StatusNoContent,
			extra: func(t *testing.T) {
				_, err := stack.UserSvc.GetByID(context.Background(), victim.ID)
				assert.Equal(t, user.ErrNotFound, err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
			if check, ok := tt.extra.(func(t *testing.T)); ok {
				check(t)
			}
		})
	}
}

func Test_userApi_destroyMultiple(t *testing.T) {
	stack, app := setup(t)
	repo := stack.UserRepo

	admin := testutil.CreateUser(t, repo, "Admin", "admin@test.nz", user.RoleAdmin, true)
	usr1 := testutil.CreateUser(t, repo, "One", "one@test.nz", "", true)
	usr2 := testutil.CreateUser(t, repo, "Two", "two@test.nz", "", true)
	usr3 := testutil.CreateUser(t, repo, "Three", "three@test.nz", "", true)
	adminToken := getToken(t, stack, admin)

	path := func(ids ...string) string {
		v := make(url.Values)
		for _, id := range ids {
			v.Add("id", id)
		}
		return apiPath + "/users?" + v.Encode()
	}

	tests := []httpTest{
		{name: "No ids", path: path(), token: adminToken, wantCode: http.StatusNoContent},
		{name: "Cannot delete self", path: path(usr1.ID, admin.ID), token: adminToken, wantCode: http.StatusForbidden},
		{name: "Delete many", path: path(usr1.ID, usr2.ID), token: adminToken, wantCode: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodDelete, tt.path, tt.token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	page, err := stack.UserSvc.Query(context.Background(), user.QueryFilter{}, nil, core.Pagination{})
	assert.NoError(t, err)
	ids := make([]string, 0, len(page.Items))
	for _, usr := range page.Items {
		ids = append(ids, usr.ID)
	}
	assert.ElementsMatch(t, []string{admin.ID, usr3.ID}, ids)
}

func Test_userApi_queryRoles(t *testing.T) {
	stack, app := setup(t)
	admin := testutil.CreateUser(t, stack.UserRepo, "Admin", "admin@test.nz", user.RoleAdmin, true)

	tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, user.Roles)}
	req, rec := newAuthRequest(http.MethodGet, apiPath+"/users/roles", getToken(t, stack, admin))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
}
