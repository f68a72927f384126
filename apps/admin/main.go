package main

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	dig_container "github.com/findclassnz/findclass/apps/api/di/dig"
	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/auth"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
	"github.com/findclassnz/findclass/storage/database"
)

func main() {
	c := dig_container.New()

	var exitCode int
	err := c.Invoke(func(
		conf *core.Config,
		logger core.Logger,
		dbLoggerParam dig_container.DBLoggerParam,
		db dig_container.DBHandle,
		mailSvc core.EmailService,
		validate *validator.Validate,
		translator ut.Translator,
		usrSvc *user.Service,
		authSvc *auth.Service,
		teacherSvc *teacher.Service,
	) {
		core.InitValidators(validate, translator)
		user.InitValidators(validate, translator)
		teacher.InitValidators(validate, translator)
		course.InitValidators(validate, translator)
		core.ParseEmailTemplates(conf, logger)

		defer func() { _ = db.Close() }()
		defer mailSvc.Wait()

		cli := commandLine{
			validate:   validate,
			usrSvc:     usrSvc,
			authSvc:    authSvc,
			teacherSvc: teacherSvc,
			migrate: func(ctx context.Context, command string, args ...string) error {
				if db.SQL == nil {
					return errors.New("migrations need the postgres database engine")
				}
				return database.RunMigrations(ctx, db.SQL, dbLoggerParam.Logger, command, args...)
			},
		}
		if err := cli.run(context.Background(), os.Args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
			exitCode = 1
		}
	})
	if err != nil {
		log.Fatal(err)
	}
	os.Exit(exitCode)
}
