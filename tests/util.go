// Package testutil wires the in-memory stack used by the service and API tests.
package testutil

import (
	"context"
	"net/mail"
	"regexp"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/auth"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/favorite"
	"github.com/findclassnz/findclass/core/media"
	"github.com/findclassnz/findclass/core/notification"
	"github.com/findclassnz/findclass/core/review"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
	emailsvc "github.com/findclassnz/findclass/services/email"
	logsvc "github.com/findclassnz/findclass/services/logger"
	"github.com/findclassnz/findclass/storage/cache"
	inmemdb "github.com/findclassnz/findclass/storage/database/inmem"
	"github.com/findclassnz/findclass/storage/objectstore"
)

// DefaultPassword satisfies the password policy.
const DefaultPassword = "Kp8#vLq2!x"

var codeRe = regexp.MustCompile(`code is: (\d+)`)

// NewConfig returns a TEST configuration backed by the in-memory database and cache.
// Media are stored under a temporary directory.
func NewConfig(t *testing.T) *core.Config {
	t.Helper()
	return &core.Config{
		Env:              "TEST",
		Build:            "test",
		TestMode:         true,
		AppName:          "FindClass",
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://localhost:3000",
		EmailBackend:     "console",
		DefaultFromEmail: mail.Address{Name: "FindClass", Address: "noreply@findclass.nz"},
		SupportEmail:     "support@findclass.nz",
		Server: core.ServerConfig{
			Address:         ":0",
			CORSOrigins:     []string{"http://localhost:3000"},
			ShutdownTimeout: time.Second,
			RateLimit:       1000,
			RateWindow:      time.Minute,
		},
		Auth: core.AuthConfig{
			Issuer:           "findclass.nz",
			Audience:         "findclass-web",
			AccessSecret:     "access-secret",
			RefreshSecret:    "refresh-secret",
			AccessTokenTTL:   15 * time.Minute,
			RefreshTokenTTL:  7 * 24 * time.Hour,
			LoginMaxAttempts: 10,
			LoginWindow:      15 * time.Minute,
			CodeLength:       6,
			CodeTTL:          10 * time.Minute,
			CodeMaxAttempts:  5,
			CodeCooldown:     time.Minute,
			CodeSendLimit:    5,
			CodeSendWindow:   time.Hour,
		},
		Database: core.DatabaseConfig{Engine: "inmem"},
		Cache:    core.CacheConfig{Backend: "memory"},
		Storage: core.StorageConfig{
			Backend:       "local",
			LocalDir:      t.TempDir(),
			BaseURL:       "http://localhost:8000/media",
			MaxUploadSize: 5 << 20,
		},
	}
}

// Stack holds a fully wired in-memory application.
type Stack struct {
	Conf       *core.Config
	Logger     core.Logger
	DB         *inmemdb.DB
	Cache      core.Cache
	Mail       core.EmailService
	Validate   *validator.Validate
	Translator ut.Translator

	UserRepo    user.Repository
	SessionRepo auth.SessionRepository
	TeacherRepo teacher.Repository
	CourseRepo  course.Repository
	ReviewRepo  review.Repository

	UserSvc     *user.Service
	AuthSvc     *auth.Service
	NotifSvc    *notification.Service
	TeacherSvc  *teacher.Service
	CourseSvc   *course.Service
	ReviewSvc   *review.Service
	FavoriteSvc *favorite.Service
	MediaSvc    *media.Service
}

// NewStack wires every service on top of the in-memory repositories, the memory cache
// and the synchronous console email mock. Sent emails are reset.
func NewStack(t *testing.T, conf ...*core.Config) *Stack {
	t.Helper()

	s := &Stack{Logger: logsvc.NewNopLogger()}
	if len(conf) > 0 {
		s.Conf = conf[0]
	} else {
		s.Conf = NewConfig(t)
	}

	s.Validate = validator.New()
	s.Translator = core.NewTranslator()
	core.InitValidators(s.Validate, s.Translator)
	user.InitValidators(s.Validate, s.Translator)
	teacher.InitValidators(s.Validate, s.Translator)
	course.InitValidators(s.Validate, s.Translator)

	s.DB = inmemdb.Open()
	s.Cache = cache.NewMemoryCache()
	s.Mail = emailsvc.NewConsoleServiceMock(s.Conf, s.Logger)
	emailsvc.ResetSentMessages()

	s.UserRepo = inmemdb.NewUserRepository(s.DB)
	s.SessionRepo = inmemdb.NewSessionRepository(s.DB)
	s.TeacherRepo = inmemdb.NewTeacherRepository(s.DB)
	s.CourseRepo = inmemdb.NewCourseRepository(s.DB)
	s.ReviewRepo = inmemdb.NewReviewRepository(s.DB)

	storage, err := objectstore.NewLocalStorage(s.Conf)
	if err != nil {
		t.Fatalf("NewLocalStorage() failed: %v", err)
	}

	s.UserSvc = user.NewService(s.UserRepo)
	s.AuthSvc = auth.NewService(s.Conf, s.UserSvc, s.SessionRepo, s.Cache, s.Mail, s.Logger)
	s.NotifSvc = notification.NewService(inmemdb.NewNotificationRepository(s.DB), s.UserSvc, s.Mail, s.Logger)
	s.TeacherSvc = teacher.NewService(s.TeacherRepo, s.UserSvc, s.NotifSvc)
	s.CourseSvc = course.NewService(s.CourseRepo, s.TeacherSvc, s.NotifSvc)
	s.ReviewSvc = review.NewService(s.ReviewRepo, s.CourseSvc, s.TeacherSvc, s.NotifSvc, s.Logger)
	s.FavoriteSvc = favorite.NewService(inmemdb.NewFavoriteRepository(s.DB))
	s.MediaSvc = media.NewService(storage, s.Conf)
	return s
}

// CreateUser saves a user with DefaultPassword straight through the repository.
// An empty role defaults to student.
func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if role == "" {
		role = user.RoleStudent
	}
	usr := user.User{
		ID:        uuid.NewString(),
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if err := usr.SetPassword(DefaultPassword); err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateTeacher opens a teacher profile for a new teacher user.
func (s *Stack) CreateTeacher(t *testing.T, name, email string, subjects ...string) (user.User, teacher.Teacher) {
	t.Helper()
	usr := CreateUser(t, s.UserRepo, name, email, user.RoleTeacher, true)
	if len(subjects) == 0 {
		subjects = []string{"mathematics"}
	}
	tchr, err := s.TeacherSvc.Create(context.Background(), usr, teacher.NewTeacher{
		DisplayName: name,
		Subjects:    subjects,
		HourlyRate:  5000,
		City:        "Auckland",
		Region:      "Auckland",
	})
	if err != nil {
		t.Fatalf("CreateTeacher() failed: %v", err)
	}
	return usr, tchr
}

// CreateCourse adds a course to the teacher profile of usr.
func (s *Stack) CreateCourse(t *testing.T, usr user.User, title, status string, price int) course.Course {
	t.Helper()
	c, err := s.CourseSvc.Create(context.Background(), usr, course.NewCourse{
		Title:         title,
		Description:   "Learn " + title,
		Category:      "mathematics",
		Level:         "secondary",
		Mode:          course.ModeOnline,
		Price:         price,
		LessonMinutes: 60,
		Tags:          []string{"ncea"},
		Status:        status,
	})
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

// Login opens a session for usr and returns its tokens.
func (s *Stack) Login(t *testing.T, usr user.User) auth.TokenPair {
	t.Helper()
	tokens, err := s.AuthSvc.IssueTokens(context.Background(), usr, auth.ClientInfo{UserAgent: "go-test", IP: "192.0.2.1"})
	if err != nil {
		t.Fatalf("Login() failed: %v", err)
	}
	return tokens
}

// LastSentCode extracts the verification code of the last email sent to the console.
func LastSentCode(t *testing.T) string {
	t.Helper()
	msg, ok := emailsvc.LastSentMessage()
	if !ok {
		t.Fatal("no email sent")
	}
	m := codeRe.FindStringSubmatch(msg.TextContent)
	if len(m) != 2 {
		t.Fatalf("no code found in %q", msg.TextContent)
	}
	return m[1]
}
