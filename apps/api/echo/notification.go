package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core/notification"
)

type notificationApi struct {
	svc      *notification.Service
	validate *validator.Validate
}

func registerNotificationAPI(g *echo.Group, mw *middlewares, deps *ServerDeps) {
	api := notificationApi{
		svc:      deps.NotifSvc,
		validate: deps.Validate,
	}

	ng := g.Group("/notifications", mw.authenticated())
	ng.GET("", api.list)
	ng.GET("/unread-count", api.unreadCount)
	ng.POST("/read", api.markRead)
	ng.POST("/read-all", api.markAllRead)
	ng.DELETE("/:id", api.destroy)
}

func contextUserID(ctx echo.Context) (string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Handlers

func (api *notificationApi) list(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	unreadOnly, err := optionalBool(ctx, "unread")
	if err != nil {
		return err
	}

	page, err := api.svc.List(ctx.Request().Context(), userID, unreadOnly != nil && *unreadOnly, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "listing notifications")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *notificationApi) unreadCount(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.UnreadCount(ctx.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *notificationApi) markRead(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	var data notification.MarkRead
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkRead")
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	n, err := api.svc.MarkRead(ctx.Request().Context(), userID, data.IDs...)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *notificationApi) markAllRead(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	n, err := api.svc.MarkAllRead(ctx.Request().Context(), userID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: n})
}

func (api *notificationApi) destroy(ctx echo.Context) error {
	userID, err := contextUserID(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), userID, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting notification")
	}
	return ctx.NoContent(http.StatusNoContent)
}
