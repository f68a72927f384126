package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/auth"
	"github.com/findclassnz/findclass/core/user"
)

const passwordResetRequested = "If the email address supplied is associated with an active account on this system, " +
	"an email will arrive in your inbox shortly with a code to reset your password."

type authApi struct {
	authSvc  *auth.Service
	usrSvc   *user.Service
	validate *validator.Validate
	logger   core.Logger
}

func registerAuthAPI(g *echo.Group, mw *middlewares, deps *ServerDeps) {
	api := authApi{
		authSvc:  deps.AuthSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
		logger:   deps.Logger,
	}

	ag := g.Group("/auth")

	// un-authed endpoints
	limited := ag.Group("", mw.ipRateLimit())
	limited.POST("/register", api.register)
	limited.POST("/login", api.login)
	limited.POST("/password-reset", api.requestPasswordReset)
	limited.POST("/password-reset/confirm", api.confirmPasswordReset)
	ag.POST("/refresh", api.refresh)

	// authed endpoints
	authed := ag.Group("", mw.authenticated())
	authed.POST("/logout", api.logout)
	authed.POST("/logout-all", api.logoutAll)
	authed.GET("/sessions", api.sessions)
	authed.POST("/verify-email/send", api.sendVerificationCode, mw.ipRateLimit())
	authed.POST("/verify-email", api.verifyEmail)
	authed.POST("/password-change", api.changePassword)
}

type (
	AuthResponse struct {
		User   user.User      `json:"user"`
		Tokens auth.TokenPair `json:"tokens"`
	}

	LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	RefreshRequest struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	LogoutRequest struct {
		RefreshToken string `json:"refresh_token"`
	}

	VerifyEmailRequest struct {
		Code string `json:"code" validate:"required,numeric"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Email = core.CleanString(lr.Email, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

// Handlers

func (api *authApi) register(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	reqCtx := ctx.Request().Context()
	if err := data.Validate(reqCtx, api.validate, api.usrSvc); err != nil {
		return err
	}

	usr, tokens, err := api.authSvc.Register(reqCtx, data, clientInfo(ctx))
	if err != nil {
		return errors.Wrap(err, "registering user")
	}
	return ctx.JSON(http.StatusCreated, AuthResponse{User: usr, Tokens: tokens})
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, tokens, err := api.authSvc.Login(ctx.Request().Context(), data.Email, data.Password, clientInfo(ctx))
	if err != nil {
		return errors.Wrap(err, "logging in")
	}
	return ctx.JSON(http.StatusOK, AuthResponse{User: usr, Tokens: tokens})
}

func (api *authApi) refresh(ctx echo.Context) error {
	var data RefreshRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to RefreshRequest")
	}
	if err := api.validate.Struct(data); err != nil {
		return err
	}

	tokens, err := api.authSvc.Refresh(ctx.Request().Context(), data.RefreshToken, clientInfo(ctx))
	if err != nil {
		return errors.Wrap(err, "refreshing tokens")
	}
	return ctx.JSON(http.StatusOK, tokens)
}

func (api *authApi) logout(ctx echo.Context) error {
	var data LogoutRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LogoutRequest")
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}

	if err = api.authSvc.Logout(ctx.Request().Context(), claims, data.RefreshToken); err != nil {
		return errors.Wrap(err, "logging out")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) logoutAll(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	if err = api.authSvc.LogoutAll(ctx.Request().Context(), claims.Subject); err != nil {
		return errors.Wrap(err, "logging out everywhere")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *authApi) sessions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sessions, err := api.authSvc.Sessions(ctx.Request().Context(), claims.Subject, claims.Id)
	if err != nil {
		return errors.Wrap(err, "listing sessions")
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *authApi) sendVerificationCode(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.authSvc.SendVerificationCode(ctx.Request().Context(), usr); err != nil {
		return errors.Wrap(err, "sending verification code")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "A verification code has been sent to " + usr.Email + "."})
}

func (api *authApi) verifyEmail(ctx echo.Context) error {
	var data VerifyEmailRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to VerifyEmailRequest")
	}
	data.Code = core.CleanString(data.Code)
	if err := api.validate.Struct(data); err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if usr, err = api.authSvc.VerifyEmail(ctx.Request().Context(), usr, data.Code); err != nil {
		return errors.Wrap(err, "verifying email")
	}
	setContextUser(ctx, usr)
	return ctx.JSON(http.StatusOK, usr)
}

func (api *authApi) requestPasswordReset(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.authSvc.RequestPasswordReset(ctx.Request().Context(), data.Email); err != nil {
		// do not return errors to attackers
		api.logger.Warn("requesting password reset", errors.Wrap(err, "requesting password reset"))
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: passwordResetRequested})
}

func (api *authApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.authSvc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *authApi) changePassword(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data user.ChangePassword
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ChangePassword")
	}
	if err = data.Validate(usr, api.validate); err != nil {
		return err
	}

	tokens, err := api.authSvc.ChangePassword(ctx.Request().Context(), usr, data, clientInfo(ctx))
	if err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, tokens)
}
