package echoapi

import (
	"math"
	"net/http"
	"strconv"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/auth"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/notification"
	"github.com/findclassnz/findclass/core/review"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
)

var (
	errMissingToken  = echo.NewHTTPError(http.StatusUnauthorized, "missing or malformed jwt")
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case *echo.BindingError:
			code = http.StatusBadRequest
			message = map[string]string{origErr.Field: "invalid value"}
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *core.TooManyRequestsError:
			if origErr.RetryAfter > 0 {
				secs := int(math.Ceil(float64(origErr.RetryAfter) / float64(time.Second)))
				ctx.Response().Header().Set(echo.HeaderRetryAfter, strconv.Itoa(secs))
			}
			code = http.StatusTooManyRequests
			message = origErr.Error()
		default:
			if status, ok := domainErrStatus(origErr); ok {
				code = status
				message = origErr.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if ctxUsr, ok := ctx.Get(contextUserKey).(user.User); ok {
				usr = ctxUsr
			} else if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

// domainErrStatus maps the domain errors to their HTTP status codes.
func domainErrStatus(err error) (int, bool) {
	switch err {
	case auth.ErrInvalidToken, auth.ErrTokenExpired, auth.ErrTokenRevoked, auth.ErrAuthenticationFailed:
		return http.StatusUnauthorized, true
	case auth.ErrAccountDeactivated, course.ErrTeacherRequired:
		return http.StatusForbidden, true
	case auth.ErrInvalidCode, auth.ErrCodeAttemptsExceeded, auth.ErrAlreadyVerified:
		return http.StatusBadRequest, true
	case auth.ErrSessionNotFound, user.ErrNotFound, teacher.ErrNotFound, course.ErrNotFound,
		review.ErrNotFound, notification.ErrNotFound:
		return http.StatusNotFound, true
	}
	return 0, false
}
