package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core/review"
	"github.com/findclassnz/findclass/core/user"
)

var errReviewNotFoundInCtx = errors.New("review object not found in echo.Context")

type reviewApi struct {
	svc      *review.Service
	usrSvc   *user.Service
	validate *validator.Validate
}

func registerReviewAPI(g *echo.Group, mw *middlewares, deps *ServerDeps) {
	api := reviewApi{
		svc:      deps.ReviewSvc,
		usrSvc:   deps.UserSvc,
		validate: deps.Validate,
	}

	rg := g.Group("/reviews")
	rg.GET("/:id", api.retrieve)

	authed := rg.Group("/:id", mw.authenticated())
	authed.PUT("", api.update, api.authorMiddleware(false))
	authed.DELETE("", api.destroy, api.authorMiddleware(true))
}

// authorMiddleware loads the review of the `id` param and lets its author through; admins too when allowAdmin.
func (api *reviewApi) authorMiddleware(allowAdmin bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx, api.usrSvc)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}
			r, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return errors.Wrap(err, "finding review by ID")
			}
			if r.AuthorID != usr.ID && !(allowAdmin && usr.IsAdmin()) {
				return errHttpForbidden
			}
			ctx.Set("object", r)
			return next(ctx)
		}
	}
}

// Handlers

func (api *reviewApi) retrieve(ctx echo.Context) error {
	r, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding review by ID")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *reviewApi) update(ctx echo.Context) error {
	r, ok := ctx.Get("object").(review.Review)
	if !ok {
		return errors.Wrap(errReviewNotFoundInCtx, "retrieving object from context")
	}
	var data review.UpdateReview
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateReview")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	r, err := api.svc.Update(ctx.Request().Context(), r, data)
	if err != nil {
		return errors.Wrap(err, "updating review")
	}
	return ctx.JSON(http.StatusOK, r)
}

func (api *reviewApi) destroy(ctx echo.Context) error {
	r, ok := ctx.Get("object").(review.Review)
	if !ok {
		return errors.Wrap(errReviewNotFoundInCtx, "retrieving object from context")
	}
	if err := api.svc.Delete(ctx.Request().Context(), r); err != nil {
		return errors.Wrap(err, "deleting review")
	}
	return ctx.NoContent(http.StatusNoContent)
}
