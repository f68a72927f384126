package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core/auth"
	"github.com/findclassnz/findclass/core/user"
)

const (
	contextClaimsKey = "claims"
	contextUserKey   = "user"
	bearerScheme     = "Bearer"
)

// bearerToken extracts the token of an `Authorization: Bearer <token>` header.
func bearerToken(ctx echo.Context) (string, bool) {
	header := ctx.Request().Header.Get(echo.HeaderAuthorization)
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerScheme) {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func clientInfo(ctx echo.Context) auth.ClientInfo {
	return auth.ClientInfo{
		UserAgent: ctx.Request().UserAgent(),
		IP:        ctx.RealIP(),
	}
}

func getContextClaims(ctx echo.Context) (*auth.Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(*auth.Claims); ok {
		return claims, nil
	}
	return nil, errUnauthorized
}

func getContextUser(ctx echo.Context, svc *user.Service) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return user.User{}, err
	}
	usr, err := svc.GetByID(ctx.Request().Context(), claims.Subject)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return user.User{}, auth.ErrInvalidToken
		}
		return user.User{}, errors.Wrap(err, "finding user by ID")
	}
	ctx.Set(contextUserKey, usr)
	return usr, nil
}

// setContextUser replaces the cached context user after it changed.
func setContextUser(ctx echo.Context, usr user.User) {
	ctx.Set(contextUserKey, usr)
}

// contextUserOrNil returns the context user of an optionally authenticated request.
func contextUserOrNil(ctx echo.Context) *user.User {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return &usr
	}
	return nil
}
