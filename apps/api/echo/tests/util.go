package tests

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	echoapi "github.com/findclassnz/findclass/apps/api/echo"
	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/user"
	"github.com/findclassnz/findclass/tests"
)

const apiPath = "/api/v1"

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
	errNotFound     = httpErr{Error: "not found"}
)

func setup(t *testing.T, conf ...*core.Config) (*testutil.Stack, *echoapi.Server) {
	stack := testutil.NewStack(t, conf...)
	server := echoapi.NewServer(echoapi.ServerDeps{
		Conf:        stack.Conf,
		Logger:      stack.Logger,
		Validate:    stack.Validate,
		Translator:  stack.Translator,
		Cache:       stack.Cache,
		AuthSvc:     stack.AuthSvc,
		UserSvc:     stack.UserSvc,
		TeacherSvc:  stack.TeacherSvc,
		CourseSvc:   stack.CourseSvc,
		ReviewSvc:   stack.ReviewSvc,
		NotifSvc:    stack.NotifSvc,
		FavoriteSvc: stack.FavoriteSvc,
		MediaSvc:    stack.MediaSvc,
	})
	return stack, server
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest posts content as the multipart `file` field.
func newUploadRequest(t *testing.T, path, token, filename string, content []byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() failed: %v", err)
	}
	if _, err = io.Copy(part, bytes.NewReader(content)); err != nil {
		t.Fatalf("io.Copy() failed: %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("w.Close() failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, stack *testutil.Stack, usr user.User) string {
	return stack.Login(t, usr).AccessToken
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

// nolint
func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshall(t *testing.T, data []byte, v interface{}) {
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; data %s", err, data)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	if _, ok := j1.([]interface{}); !ok {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

// checkErrFields asserts a 400 response carrying errors for exactly fields.
func checkErrFields(t *testing.T, rec *httptest.ResponseRecorder, fields ...string) {
	if rec.Code != http.StatusBadRequest {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		return
	}
	var errs map[string]interface{}
	unmarshall(t, rec.Body.Bytes(), &errs)
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	assert.ElementsMatch(t, fields, keys)
}

// lastSentCode extracts the verification code of the last email sent to the console.
func lastSentCode(t *testing.T) string {
	return testutil.LastSentCode(t)
}
