package dig_container

import (
	"context"
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"
	"go.uber.org/zap"

	echoapi "github.com/findclassnz/findclass/apps/api/echo"
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
	"github.com/findclassnz/findclass/storage/database"
	inmemdb "github.com/findclassnz/findclass/storage/database/inmem"
	sqlxrepos "github.com/findclassnz/findclass/storage/database/sqlx"
	"github.com/findclassnz/findclass/storage/objectstore"
)

// Database engines
const (
	EnginePostgres = "postgres"
	EngineInmem    = "inmem"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	// DBHandle is the lifecycle of the opened database. SQL is nil in memory.
	DBHandle struct {
		SQL   *sqlx.DB
		Ping  func(ctx context.Context) error
		Close func() error
	}

	Repositories struct {
		dig.Out
		DB            DBHandle
		Users         user.Repository
		Sessions      auth.SessionRepository
		Teachers      teacher.Repository
		Courses       course.Repository
		Reviews       review.Repository
		Notifications notification.Repository
		Favorites     favorite.Repository
	}

	serverParams struct {
		dig.In
		Conf        *core.Config
		Logger      core.Logger
		Validate    *validator.Validate
		Translator  ut.Translator
		Cache       core.Cache
		DB          DBHandle
		AuthSvc     *auth.Service
		UserSvc     *user.Service
		TeacherSvc  *teacher.Service
		CourseSvc   *course.Service
		ReviewSvc   *review.Service
		NotifSvc    *notification.Service
		FavoriteSvc *favorite.Service
		MediaSvc    *media.Service
	}
)

func newLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("api"), conf)
}

func newDBLogger(zl *zap.Logger, conf *core.Config) core.Logger {
	return logsvc.NewRollbarLogger(zl.Named("db"), conf)
}

func newRepositories(conf *core.Config, loggerParam DBLoggerParam) (Repositories, error) {
	switch conf.Database.Engine {
	case EngineInmem:
		db := inmemdb.Open()
		loggerParam.Logger.Warn("using the in-memory database, data is lost on exit")
		return Repositories{
			DB:            DBHandle{Close: func() error { return nil }},
			Users:         inmemdb.NewUserRepository(db),
			Sessions:      inmemdb.NewSessionRepository(db),
			Teachers:      inmemdb.NewTeacherRepository(db),
			Courses:       inmemdb.NewCourseRepository(db),
			Reviews:       inmemdb.NewReviewRepository(db),
			Notifications: inmemdb.NewNotificationRepository(db),
			Favorites:     inmemdb.NewFavoriteRepository(db),
		}, nil

	case EnginePostgres, "":
		ctx := context.Background()
		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return Repositories{}, errors.Wrap(err, "creating database")
		}
		db, err := database.Open(ctx, conf)
		if err != nil {
			return Repositories{}, err
		}
		if err = database.Migrate(ctx, db, loggerParam.Logger); err != nil {
			_ = db.Close()
			return Repositories{}, err
		}
		return Repositories{
			DB:            DBHandle{SQL: db, Ping: db.PingContext, Close: db.Close},
			Users:         sqlxrepos.NewUserRepository(db),
			Sessions:      sqlxrepos.NewSessionRepository(db),
			Teachers:      sqlxrepos.NewTeacherRepository(db),
			Courses:       sqlxrepos.NewCourseRepository(db),
			Reviews:       sqlxrepos.NewReviewRepository(db),
			Notifications: sqlxrepos.NewNotificationRepository(db),
			Favorites:     sqlxrepos.NewFavoriteRepository(db),
		}, nil
	}
	return Repositories{}, errors.Errorf("unknown database engine %q", conf.Database.Engine)
}

func newCache(conf *core.Config) (core.Cache, error) {
	switch conf.Cache.Backend {
	case "memory":
		return cache.NewMemoryCache(), nil
	case "redis", "":
		client := cache.NewRedisClient(conf)
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, errors.Wrap(err, "connecting to redis")
		}
		return cache.NewRedisCache(client, conf.Cache.KeyPrefix), nil
	}
	return nil, errors.Errorf("unknown cache backend %q", conf.Cache.Backend)
}

func newStorage(conf *core.Config) (media.Storage, error) {
	switch conf.Storage.Backend {
	case "local", "":
		return objectstore.NewLocalStorage(conf)
	case "s3":
		client, err := objectstore.NewS3Client(context.Background(), conf)
		if err != nil {
			return nil, err
		}
		return objectstore.NewS3Storage(client, conf)
	}
	return nil, errors.Errorf("unknown storage backend %q", conf.Storage.Backend)
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:        p.Conf,
		Logger:      p.Logger,
		Validate:    p.Validate,
		Translator:  p.Translator,
		Cache:       p.Cache,
		DBPing:      p.DB.Ping,
		AuthSvc:     p.AuthSvc,
		UserSvc:     p.UserSvc,
		TeacherSvc:  p.TeacherSvc,
		CourseSvc:   p.CourseSvc,
		ReviewSvc:   p.ReviewSvc,
		NotifSvc:    p.NotifSvc,
		FavoriteSvc: p.FavoriteSvc,
		MediaSvc:    p.MediaSvc,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(logsvc.NewZapLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newRepositories))
	must(c.Provide(newCache))
	must(c.Provide(newStorage))
	must(c.Provide(emailsvc.NewService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))

	must(c.Provide(user.NewService))
	must(c.Provide(auth.NewService))
	must(c.Provide(notification.NewService))
	must(c.Provide(teacher.NewService))
	must(c.Provide(course.NewService))
	must(c.Provide(review.NewService))
	must(c.Provide(favorite.NewService))
	must(c.Provide(media.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(fmt.Sprintf("failed to provide dependency: %v", err))
	}
}
