package echoapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/favorite"
	"github.com/findclassnz/findclass/core/media"
	"github.com/findclassnz/findclass/core/user"
)

var (
	errUsrNotFoundInCtx  = errors.New("user object not found in echo.Context")
	errNoPermsToSetRoles = "not enough rights to set this role"
)

type userApi struct {
	svc         *user.Service
	courseSvc   *course.Service
	favoriteSvc *favorite.Service
	mediaSvc    *media.Service
	validate    *validator.Validate
	logger      core.Logger
}

func registerUserAPI(g *echo.Group, mw *middlewares, deps *ServerDeps) {
	api := userApi{
		svc:         deps.UserSvc,
		courseSvc:   deps.CourseSvc,
		favoriteSvc: deps.FavoriteSvc,
		mediaSvc:    deps.MediaSvc,
		validate:    deps.Validate,
		logger:      deps.Logger,
	}

	ug := g.Group("/users", mw.authenticated())

	// user center
	ug.GET("/me", api.me)
	ug.PUT("/me", api.updateMe)
	ug.POST("/me/avatar", api.uploadAvatar, uploadBodyLimit(deps.MediaSvc))
	ug.GET("/me/favorites", api.favorites)
	ug.PUT("/me/favorites/:course_id", api.addFavorite)
	ug.DELETE("/me/favorites/:course_id", api.removeFavorite)

	// admin endpoints
	ag := ug.Group("", mw.admin())
	ag.GET("", api.query)
	ag.DELETE("", api.destroyMultiple)
	ag.GET("/roles", api.queryRoles)

	dg := ag.Group("/:id", userObjectMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy)
}

// uploadBodyLimit caps upload requests to the max upload size plus room for the multipart envelope.
func uploadBodyLimit(svc *media.Service) echo.MiddlewareFunc {
	return middleware.BodyLimit(fmt.Sprintf("%dK", svc.MaxSize()/1024+1024))
}

// Handlers

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) updateMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data user.UpdateProfile
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if usr, err = api.svc.UpdateProfile(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "updating profile")
	}
	setContextUser(ctx, usr)
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) uploadAvatar(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	file, err := openUpload(ctx)
	if err != nil {
		return err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	reqCtx := ctx.Request().Context()
	upload, err := api.mediaSvc.UploadImage(reqCtx, media.KindAvatar, usr.ID, file)
	if err != nil {
		return errors.Wrap(err, "uploading avatar")
	}
	oldURL := usr.AvatarURL
	if usr, err = api.svc.SetAvatar(reqCtx, usr, upload.URL); err != nil {
		return errors.Wrap(err, "setting avatar")
	}
	if err = api.mediaSvc.Remove(reqCtx, oldURL); err != nil {
		api.logger.Warn("removing previous avatar", err, usr)
	}
	setContextUser(ctx, usr)
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) favorites(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	page, err := api.favoriteSvc.List(ctx.Request().Context(), usr.ID, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "listing favorites")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *userApi) addFavorite(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	reqCtx := ctx.Request().Context()
	c, err := api.courseSvc.GetByID(reqCtx, ctx.Param("course_id"))
	if err != nil {
		return errors.Wrap(err, "finding course by ID")
	}
	if err = api.favoriteSvc.Add(reqCtx, usr.ID, c); err != nil {
		return errors.Wrap(err, "adding favorite")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) removeFavorite(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if err = api.favoriteSvc.Remove(ctx.Request().Context(), usr.ID, ctx.Param("course_id")); err != nil {
		return errors.Wrap(err, "removing favorite")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) query(ctx echo.Context) error {
	var filter user.QueryFilter
	isActive, err := optionalBool(ctx, "is_active")
	if err != nil {
		return err
	}
	filter.IsActive = isActive
	if err = echo.QueryParamsBinder(ctx).
		String("search", &filter.Search).
		Strings("role", &filter.Roles).
		Time("created_from", &filter.CreatedFrom, time.RFC3339).
		Time("created_to", &filter.CreatedTo, time.RFC3339).
		BindError(); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	page, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	var data user.UpdateUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	// ctxUser cannot set a role > their own role
	if data.Role != "" && user.RolePriority(data.Role) > user.RolePriority(ctxUsr.Role) {
		return core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRoles})
	}
	// nor lock themselves out
	if usr.ID == ctxUsr.ID && ((data.IsActive != nil && !*data.IsActive) || (data.Role != "" && data.Role != usr.Role)) {
		return errHttpForbidden
	}

	if usr, err = api.svc.Update(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get("object").(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	if usr.ID == ctxUsr.ID {
		return errHttpForbidden
	}

	if err = api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var ids []string
	if err := echo.QueryParamsBinder(ctx).Strings("id", &ids).BindError(); err != nil {
		return err
	}
	ids = core.CleanStrings(ids)
	if len(ids) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	ctxUsr, err := getContextUser(ctx, api.svc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	for _, id := range ids {
		if id == ctxUsr.ID {
			return errHttpForbidden
		}
	}

	if err = api.svc.Delete(ctx.Request().Context(), ids...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func userObjectMiddleware(svc *user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == user.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding user by ID")
			}
			ctx.Set("object", usr)
			return next(ctx)
		}
	}
}
