package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/findclassnz/findclass/apps/api/echo"
	"github.com/findclassnz/findclass/core/auth"
	"github.com/findclassnz/findclass/core/user"
	emailsvc "github.com/findclassnz/findclass/services/email"
	"github.com/findclassnz/findclass/tests"
)

const newPassword = "Zt7$mWq9&b"

func Test_authApi_register(t *testing.T) {
	stack, app := setup(t)
	testutil.CreateUser(t, stack.UserRepo, "Taken", "taken@test.nz", "", true)

	tests := []struct {
		name       string
		body       string
		wantCode   int
		wantFields []string
	}{
		{name: "Empty body", body: `{}`, wantCode: http.StatusBadRequest, wantFields: []string{"name", "email", "password", "password_confirm"}},
		{
			name:       "Invalid email & mismatching passwords",
			body:       `{"name": "Aroha", "email": "nope", "password": "Kp8#vLq2!x", "password_confirm": "Kp8#vLq2!y"}`,
			wantCode:   http.StatusBadRequest,
			wantFields: []string{"email", "password_confirm"},
		},
		{
			name:       "Weak password",
			body:       `{"name": "Aroha", "email": "aroha@test.nz", "password": "password", "password_confirm": "password"}`,
			wantCode:   http.StatusBadRequest,
			wantFields: []string{"password"},
		},
		{
			name:       "Email taken",
			body:       `{"name": "Aroha", "email": " TAKEN@test.nz", "password": "Kp8#vLq2!x", "password_confirm": "Kp8#vLq2!x"}`,
			wantCode:   http.StatusBadRequest,
			wantFields: []string{"email"},
		},
		{
			name:     "Registered",
			body:     `{"name": "Aroha", "email": "Aroha@Test.nz", "password": "Kp8#vLq2!x", "password_confirm": "Kp8#vLq2!x"}`,
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, apiPath+"/auth/register", []byte(tt.body))
			app.ServeHTTP(rec, req)
			if tt.wantFields != nil {
				checkErrFields(t, rec, tt.wantFields...)
				return
			}
			if !assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String()) {
				return
			}

			var resp echoapi.AuthResponse
			unmarshall(t, rec.Body.Bytes(), &resp)
			assert.Equal(t, "aroha@test.nz", resp.User.Email)
			assert.Equal(t, user.RoleStudent, resp.User.Role)
			assert.False(t, resp.User.EmailVerified)
			assert.NotEmpty(t, resp.Tokens.AccessToken)
			assert.NotEmpty(t, resp.Tokens.RefreshToken)
			assert.Equal(t, "Bearer", resp.Tokens.TokenType)

			// a verification code was emailed
			msg, ok := emailsvc.LastSentMessage()
			if assert.True(t, ok) {
				assert.Equal(t, "aroha@test.nz", msg.To[0].Address)
				assert.Equal(t, "verification", msg.Tag)
			}

			// the access token works straight away
			req, rec = newAuthRequest(http.MethodGet, apiPath+"/users/me", resp.Tokens.AccessToken)
			app.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func Test_authApi_registerAsTeacher(t *testing.T) {
	_, app := setup(t)

	body := `{"name": "Mere", "email": "mere@test.nz", "password": "Kp8#vLq2!x", "password_confirm": "Kp8#vLq2!x", "as_teacher": true}`
	req, rec := newRequest(http.MethodPost, apiPath+"/auth/register", []byte(body))
	app.ServeHTTP(rec, req)
	if !assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String()) {
		return
	}
	var resp echoapi.AuthResponse
	unmarshall(t, rec.Body.Bytes(), &resp)
	assert.Equal(t, user.RoleTeacher, resp.User.Role)
}

func Test_authApi_login(t *testing.T) {
	stack, app := setup(t)

	student := testutil.CreateUser(t, stack.UserRepo, "Hero", "hero@test.nz", user.RoleStudent, true)
	testutil.CreateUser(t, stack.UserRepo, "N Dog", "ndog@test.nz", user.RoleStudent, false)
	authFailed := marchallObj(t, httpErr{Error: auth.ErrAuthenticationFailed.Error()})

	tests := []httpTest{
		{name: "Missing fields", body: []byte(`{}`), wantCode: http.StatusBadRequest},
		{name: "Unknown email", body: []byte(`{"email": "who@test.nz", "password": "Kp8#vLq2!x"}`), wantCode: http.StatusUnauthorized, wantData: authFailed},
		{name: "Wrong password", body: []byte(`{"email": "hero@test.nz", "password": "lol"}`), wantCode: http.StatusUnauthorized, wantData: authFailed},
		{
			name: "Inactive user", body: []byte(`{"email": "ndog@test.nz", "password": "Kp8#vLq2!x"}`),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "Logged in", body: []byte(`{"email": " HERO@test.nz ", "password": "Kp8#vLq2!x"}`), wantCode: http.StatusOK,
			extra: func(t *testing.T, body []byte) {
				var resp echoapi.AuthResponse
				unmarshall(t, body, &resp)
				assert.Equal(t, student.ID, resp.User.ID)
				assert.False(t, resp.User.LastLogin.IsZero())
				assert.NotEmpty(t, resp.Tokens.AccessToken)
				assert.EqualValues(t, stack.Conf.Auth.AccessTokenTTL.Seconds(), resp.Tokens.ExpiresIn)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, apiPath+"/auth/login", tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
			if check, ok := tt.extra.(func(t *testing.T, body []byte)); ok {
				check(t, rec.Body.Bytes())
			}
		})
	}
}

func Test_authApi_loginThrottling(t *testing.T) {
	conf := testutil.NewConfig(t)
	conf.Auth.LoginMaxAttempts = 2
	stack, app := setup(t, conf)
	testutil.CreateUser(t, stack.UserRepo, "Hero", "hero@test.nz", user.RoleStudent, true)

	login := func(pwd string) int {
		req, rec := newRequest(http.MethodPost, apiPath+"/auth/login", []byte(`{"email": "hero@test.nz", "password": "`+pwd+`"}`))
		app.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		}
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, login("wrong1"))
	assert.Equal(t, http.StatusUnauthorized, login("wrong2"))
	// even the right password is refused until the window ends
	assert.Equal(t, http.StatusTooManyRequests, login(testutil.DefaultPassword))
}

func Test_authApi_ipRateLimit(t *testing.T) {
	conf := testutil.NewConfig(t)
	conf.Server.RateLimit = 2
	_, app := setup(t, conf)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req, rec := newRequest(http.MethodPost, apiPath+"/auth/password-reset", []byte(`{"email": "who@test.nz"}`))
		app.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func Test_authApi_refresh(t *testing.T) {
	stack, app := setup(t)

	student := testutil.CreateUser(t, stack.UserRepo, "Hero", "hero@test.nz", user.RoleStudent, true)
	tokens := stack.Login(t, student)

	refresh := func(token string) (int, auth.TokenPair) {
		body := marchallObj(t, echoapi.RefreshRequest{RefreshToken: token})
		req, rec := newRequest(http.MethodPost, apiPath+"/auth/refresh", body)
		app.ServeHTTP(rec, req)
		var pair auth.TokenPair
		if rec.Code == http.StatusOK {
			unmarshall(t, rec.Body.Bytes(), &pair)
		}
		return rec.Code, pair
	}

	t.Run("Missing token", func(t *testing.T) {
		code, _ := refresh("")
		assert.Equal(t, http.StatusBadRequest, code)
	})

	t.Run("Access token refused", func(t *testing.T) {
		code, _ := refresh(tokens.AccessToken)
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	var rotated auth.TokenPair
	t.Run("Rotated", func(t *testing.T) {
		var code int
		code, rotated = refresh(tokens.RefreshToken)
		if assert.Equal(t, http.StatusOK, code) {
			assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)
			assert.NotEqual(t, tokens.AccessToken, rotated.AccessToken)
		}
	})

	t.Run("Reuse revokes every session", func(t *testing.T) {
		code, _ := refresh(tokens.RefreshToken)
		assert.Equal(t, http.StatusUnauthorized, code)

		// the rotated pair is gone too
		code, _ = refresh(rotated.RefreshToken)
		assert.Equal(t, http.StatusUnauthorized, code)
		req, rec := newAuthRequest(http.MethodGet, apiPath+"/users/me", rotated.AccessToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func Test_authApi_logout(t *testing.T) {
	stack, app := setup(t)

	student := testutil.CreateUser(t, stack.UserRepo, "Hero", "hero@test.nz", user.RoleStudent, true)
	first := stack.Login(t, student)
	second := stack.Login(t, student)
	revoked := marchallObj(t, httpErr{Error: auth.ErrTokenRevoked.Error()})

	t.Run("Auth required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, apiPath+"/auth/logout")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("Sessions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, apiPath+"/auth/sessions", first.AccessToken)
		app.ServeHTTP(rec, req)
		if !assert.Equal(t, http.StatusOK, rec.Code) {
			return
		}
		var sessions []auth.Session
		unmarshall(t, rec.Body.Bytes(), &sessions)
		assert.Len(t, sessions, 4) // 2 logins x (access + refresh)
		current := 0
		for _, sess := range sessions {
			assert.Equal(t, student.ID, sess.UserID)
			if sess.Current {
				current++
			}
		}
		assert.Equal(t, 1, current)
	})

	t.Run("Logout", func(t *testing.T) {
		body := marchallObj(t, echoapi.LogoutRequest{RefreshToken: first.RefreshToken})
		req, rec := newAuthRequest(http.MethodPost, apiPath+"/auth/logout", first.AccessToken, body)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		req, rec = newAuthRequest(http.MethodGet, apiPath+"/users/me", first.AccessToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: revoked}, rec)

		// the other session is untouched
		req, rec = newAuthRequest(http.MethodGet, apiPath+"/users/me", second.AccessToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Logout everywhere", func(t *testing.T) {
		third := stack.Login(t, student)
		req, rec := newAuthRequest(http.MethodPost, apiPath+"/auth/logout-all", second.AccessToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		for _, token := range []string{second.AccessToken, third.AccessToken} {
			req, rec = newAuthRequest(http.MethodGet, apiPath+"/users/me", token)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: revoked}, rec)
		}
	})
}

func Test_authApi_verifyEmail(t *testing.T) {
	stack, app := setup(t)

	student := testutil.CreateUser(t, stack.UserRepo, "Hero", "hero@test.nz", user.RoleStudent, true)
	token := getToken(t, stack, student)

	verify := func(code string) *httptest.ResponseRecorder {
		body := marchallObj(t, echoapi.VerifyEmailRequest{Code: code})
		req, rec := newAuthRequest(http.MethodPost, apiPath+"/auth/verify-email", token, body)
		app.ServeHTTP(rec, req)
		return rec
	}

	t.Run("No code issued", func(t *testing.T) {
		rec := verify("123456")
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: auth.ErrInvalidCode.Error()})}, rec)
	})

	t.Run("Send code", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, apiPath+"/auth/verify-email/send", token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("Resend too early", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, apiPath+"/auth/verify-email/send", token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	code := lastSentCode(t)

	t.Run("Not numeric", func(t *testing.T) {
		checkErrFields(t, verify("abc"), "code")
	})

	t.Run("Wrong code", func(t *testing.T) {
		wrong := "000000"
		if code == wrong {
			wrong = "111111"
		}
		assert.Equal(t, http.StatusBadRequest, verify(wrong).Code)
	})

	t.Run("Verified", func(t *testing.T) {
		rec := verify(code)
		if !assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String()) {
			return
		}
		var usr user.User
		unmarshall(t, rec.Body.Bytes(), &usr)
		assert.True(t, usr.EmailVerified)
	})

	t.Run("Already verified", func(t *testing.T) {
		rec := verify(code)
		checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: marchallObj(t, httpErr{Error: auth.ErrAlreadyVerified.Error()})}, rec)
	})
}

func Test_authApi_passwordReset(t *testing.T) {
	stack, app := setup(t)

	student := testutil.CreateUser(t, stack.UserRepo, "Hero", "hero@test.nz", user.RoleStudent, true)
	token := getToken(t, stack, student)

	t.Run("Unknown email looks the same", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, apiPath+"/auth/password-reset", []byte(`{"email": "who@test.nz"}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		_, sent := emailsvc.LastSentMessage()
		assert.False(t, sent)
	})

	t.Run("Request code", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, apiPath+"/auth/password-reset", []byte(`{"email": "HERO@test.nz"}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		msg, sent := emailsvc.LastSentMessage()
		if assert.True(t, sent) {
			assert.Equal(t, "password-reset", msg.Tag)
		}
	})

	code := lastSentCode(t)
	confirm := func(code, pwd string) *httptest.ResponseRecorder {
		body := marchallObj(t, user.ResetUserPassword{Email: "hero@test.nz", Code: code, Password: pwd, PasswordConfirm: pwd})
		req, rec := newRequest(http.MethodPost, apiPath+"/auth/password-reset/confirm", body)
		app.ServeHTTP(rec, req)
		return rec
	}

	t.Run("Weak password", func(t *testing.T) {
		checkErrFields(t, confirm(code, "hero"), "password")
	})

	t.Run("Reset", func(t *testing.T) {
		rec := confirm(code, newPassword)
		if !assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String()) {
			return
		}

		usr, err := stack.UserSvc.GetByID(context.Background(), student.ID)
		assert.NoError(t, err)
		assert.NoError(t, usr.CheckPassword(newPassword))
		assert.True(t, usr.EmailVerified)

		// every session was revoked
		req, rec := newAuthRequest(http.MethodGet, apiPath+"/users/me", token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("Code is single use", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, confirm(code, "Another#Pwd9").Code)
	})
}

func Test_authApi_passwordChange(t *testing.T) {
	stack, app := setup(t)

	student := testutil.CreateUser(t, stack.UserRepo, "Hero", "hero@test.nz", user.RoleStudent, true)
	other := stack.Login(t, student)
	token := getToken(t, stack, student)

	change := func(oldPwd, pwd string) *httptest.ResponseRecorder {
		body := marchallObj(t, user.ChangePassword{OldPassword: oldPwd, Password: pwd, PasswordConfirm: pwd})
		req, rec := newAuthRequest(http.MethodPost, apiPath+"/auth/password-change", token, body)
		app.ServeHTTP(rec, req)
		return rec
	}

	t.Run("Wrong old password", func(t *testing.T) {
		checkErrFields(t, change("lol", newPassword), "old_password")
	})

	t.Run("Changed", func(t *testing.T) {
		rec := change(testutil.DefaultPassword, newPassword)
		if !assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String()) {
			return
		}
		var pair auth.TokenPair
		unmarshall(t, rec.Body.Bytes(), &pair)

		// a fresh session is opened, the others are revoked
		req, rec := newAuthRequest(http.MethodGet, apiPath+"/users/me", pair.AccessToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		req, rec = newAuthRequest(http.MethodGet, apiPath+"/users/me", other.AccessToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
