package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/review"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
)

type teacherApi struct {
	svc       *teacher.Service
	usrSvc    *user.Service
	courseSvc *course.Service
	reviewSvc *review.Service
	validate  *validator.Validate
}

func registerTeacherAPI(g *echo.Group, mw *middlewares, deps *ServerDeps) {
	api := teacherApi{
		svc:       deps.TeacherSvc,
		usrSvc:    deps.UserSvc,
		courseSvc: deps.CourseSvc,
		reviewSvc: deps.ReviewSvc,
		validate:  deps.Validate,
	}

	tg := g.Group("/teachers")
	authed := tg.Group("", mw.authenticated())

	// public endpoints
	tg.GET("", api.search)
	tg.GET("/:id", api.retrieve)
	tg.GET("/:id/courses", api.courses)
	tg.GET("/:id/reviews", api.reviews)

	// authed endpoints
	authed.POST("", api.create)
	authed.GET("/me", api.retrieveMine)
	authed.PUT("/me", api.updateMine)
	authed.PUT("/:id/trust", api.setTrust, mw.admin())
}

func (api *teacherApi) contextTeacher(ctx echo.Context) (teacher.Teacher, error) {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return teacher.Teacher{}, errors.Wrap(err, "getting context user")
	}
	t, err := api.svc.GetByUserID(ctx.Request().Context(), usr.ID)
	return t, errors.Wrap(err, "finding teacher by user ID")
}

// Handlers

func (api *teacherApi) search(ctx echo.Context) error {
	var filter teacher.SearchFilter
	online, err := optionalBool(ctx, "online")
	if err != nil {
		return err
	}
	filter.Online = online
	if err = echo.QueryParamsBinder(ctx).
		String("q", &filter.Keyword).
		String("subject", &filter.Subject).
		String("city", &filter.City).
		String("region", &filter.Region).
		Strings("trust_level", &filter.TrustLevels).
		Float64("min_rating", &filter.MinRating).
		String("sort", &filter.Sort).
		BindError(); err != nil {
		return err
	}

	page, err := api.svc.Search(ctx.Request().Context(), filter, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "searching teachers")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *teacherApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data teacher.NewTeacher
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	t, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating teacher profile")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *teacherApi) retrieve(ctx echo.Context) error {
	t, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding teacher by ID")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *teacherApi) retrieveMine(ctx echo.Context) error {
	t, err := api.contextTeacher(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *teacherApi) updateMine(ctx echo.Context) error {
	t, err := api.contextTeacher(ctx)
	if err != nil {
		return err
	}
	var data teacher.UpdateTeacher
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTeacher")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if t, err = api.svc.Update(ctx.Request().Context(), t, data); err != nil {
		return errors.Wrap(err, "updating teacher profile")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *teacherApi) courses(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	t, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding teacher by ID")
	}
	filter := course.SearchFilter{TeacherID: t.ID, Sort: ctx.QueryParam("sort")}
	page, err := api.courseSvc.Search(reqCtx, filter, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "listing teacher courses")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *teacherApi) reviews(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	t, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding teacher by ID")
	}
	page, err := api.reviewSvc.Query(reqCtx, review.QueryFilter{TeacherID: t.ID}, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "listing teacher reviews")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *teacherApi) setTrust(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	t, err := api.svc.GetByID(reqCtx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding teacher by ID")
	}
	var data teacher.SetTrust
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetTrust")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if t, err = api.svc.SetTrustLevel(reqCtx, t, data); err != nil {
		return errors.Wrap(err, "setting trust level")
	}
	return ctx.JSON(http.StatusOK, t)
}
