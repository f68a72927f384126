package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core/auth"
	"github.com/findclassnz/findclass/core/ratelimit"
	"github.com/findclassnz/findclass/core/user"
)

type middlewares struct {
	authSvc   *auth.Service
	usrSvc    *user.Service
	ipLimiter *ratelimit.Limiter
}

// authenticate verifies the bearer token and loads the context user.
func (mw *middlewares) authenticate(ctx echo.Context, token string) error {
	claims, err := mw.authSvc.Authenticate(ctx.Request().Context(), token)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	ctx.Set(contextClaimsKey, claims)

	usr, err := getContextUser(ctx, mw.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if !usr.IsActive {
		return auth.ErrAccountDeactivated
	}
	return nil
}

// authenticated requires a valid, non revoked access token.
func (mw *middlewares) authenticated() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			token, ok := bearerToken(ctx)
			if !ok {
				return errMissingToken
			}
			if err := mw.authenticate(ctx, token); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

// optionalAuth authenticates the request when it carries a token and lets anonymous requests through.
func (mw *middlewares) optionalAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if token, ok := bearerToken(ctx); ok {
				if err := mw.authenticate(ctx, token); err != nil {
					return err
				}
			}
			return next(ctx)
		}
	}
}

// requireRole allows the users having one of roles; admins always pass.
// It must run after authenticated.
func (mw *middlewares) requireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, mw.usrSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			if usr.HasAnyRole(roles...) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

func (mw *middlewares) admin() echo.MiddlewareFunc {
	return mw.requireRole(user.RoleAdmin)
}

// ipRateLimit throttles the requests per client IP.
func (mw *middlewares) ipRateLimit() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if err := mw.ipLimiter.Allow(ctx.Request().Context(), ctx.RealIP()); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}
