package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/auth"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/favorite"
	"github.com/findclassnz/findclass/core/media"
	"github.com/findclassnz/findclass/core/notification"
	"github.com/findclassnz/findclass/core/ratelimit"
	"github.com/findclassnz/findclass/core/review"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
)

const apiPrefix = "/api/v1"

type (
	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Cache      core.Cache
		// DBPing is checked by the health endpoint when set.
		DBPing func(ctx context.Context) error

		AuthSvc     *auth.Service
		UserSvc     *user.Service
		TeacherSvc  *teacher.Service
		CourseSvc   *course.Service
		ReviewSvc   *review.Service
		NotifSvc    *notification.Service
		FavoriteSvc *favorite.Service
		MediaSvc    *media.Service
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.signalShutdown)

	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  conf.Server.CORSOrigins,
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		ExposeHeaders: []string{echo.HeaderRetryAfter},
	}))

	s.app.GET("/", home)
	s.app.GET("/health", s.health)
	if conf.Storage.Backend == "local" {
		s.app.Static("/media", conf.Storage.LocalDir)
	}

	ipLimiter := ratelimit.New(s.deps.Cache, "ip", conf.Server.RateLimit, conf.Server.RateWindow,
		"too many requests from this IP address")
	mw := &middlewares{
		authSvc:   s.deps.AuthSvc,
		usrSvc:    s.deps.UserSvc,
		ipLimiter: ipLimiter,
	}

	v1 := s.app.Group(apiPrefix)
	registerAuthAPI(v1, mw, &s.deps)
	registerUserAPI(v1, mw, &s.deps)
	registerTeacherAPI(v1, mw, &s.deps)
	registerCourseAPI(v1, mw, &s.deps)
	registerReviewAPI(v1, mw, &s.deps)
	registerNotificationAPI(v1, mw, &s.deps)
}

// Start blocks until the server stops. Listening errors are sent on Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- errors.Wrap(err, "starting server")
	}
}

func (s *Server) Errors() <-chan error { return s.errors }

func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to FindClass API!")
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (s *Server) health(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	resp := healthResponse{Status: "ok", Checks: map[string]string{}}

	check := func(name string, ping func(context.Context) error) {
		if ping == nil {
			return
		}
		if err := ping(reqCtx); err != nil {
			s.deps.Logger.Warn(name+" health check failed", err)
			resp.Status = "unavailable"
			resp.Checks[name] = err.Error()
			return
		}
		resp.Checks[name] = "ok"
	}
	check("database", s.deps.DBPing)
	if s.deps.Cache != nil {
		check("cache", s.deps.Cache.Ping)
	}

	code := http.StatusOK
	if resp.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, resp)
}
