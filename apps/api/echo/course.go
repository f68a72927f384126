package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/findclassnz/findclass/core"
	"github.com/findclassnz/findclass/core/course"
	"github.com/findclassnz/findclass/core/media"
	"github.com/findclassnz/findclass/core/review"
	"github.com/findclassnz/findclass/core/teacher"
	"github.com/findclassnz/findclass/core/user"
)

var errCourseNotFoundInCtx = errors.New("course object not found in echo.Context")

type courseApi struct {
	svc        *course.Service
	usrSvc     *user.Service
	teacherSvc *teacher.Service
	reviewSvc  *review.Service
	mediaSvc   *media.Service
	validate   *validator.Validate
	logger     core.Logger
}

func registerCourseAPI(g *echo.Group, mw *middlewares, deps *ServerDeps) {
	api := courseApi{
		svc:        deps.CourseSvc,
		usrSvc:     deps.UserSvc,
		teacherSvc: deps.TeacherSvc,
		reviewSvc:  deps.ReviewSvc,
		mediaSvc:   deps.MediaSvc,
		validate:   deps.Validate,
		logger:     deps.Logger,
	}

	cg := g.Group("/courses")
	authed := cg.Group("", mw.authenticated())

	// public endpoints
	cg.GET("", api.search)
	cg.GET("/categories", api.categories)
	cg.GET("/:id", api.retrieve, mw.optionalAuth(), api.objectMiddleware(false))
	cg.GET("/:id/reviews", api.reviews, mw.optionalAuth(), api.objectMiddleware(false))

	// authed endpoints
	authed.POST("", api.create, mw.requireRole(user.RoleTeacher))
	authed.GET("/mine", api.mine, mw.requireRole(user.RoleTeacher))
	authed.PUT("/:id", api.update, api.objectMiddleware(true))
	authed.DELETE("/:id", api.destroy, api.objectMiddleware(true))
	authed.POST("/:id/cover", api.uploadCover, uploadBodyLimit(deps.MediaSvc), api.objectMiddleware(true))
	authed.POST("/:id/reviews", api.createReview, api.objectMiddleware(false))
}

// objectMiddleware loads the course of the `id` param, by ID or slug, into the context.
// Drafts and archived courses are only visible to their teacher and admins; manage requires that too.
func (api *courseApi) objectMiddleware(manage bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			reqCtx := ctx.Request().Context()
			c, err := api.svc.Get(reqCtx, ctx.Param("id"))
			if err != nil {
				if errors.Cause(err) == course.ErrNotFound {
					return errHttpNotFound
				}
				return errors.Wrap(err, "finding course")
			}

			if manage || !c.IsPublished() {
				canManage := false
				if usr := contextUserOrNil(ctx); usr != nil {
					if canManage, err = api.svc.CanManage(reqCtx, *usr, c); err != nil {
						return errors.Wrap(err, "checking course permissions")
					}
				}
				if !canManage {
					if c.IsPublished() {
						return errHttpForbidden
					}
					return errHttpNotFound
				}
			}

			ctx.Set("object", c)
			return next(ctx)
		}
	}
}

func contextCourse(ctx echo.Context) (course.Course, error) {
	c, ok := ctx.Get("object").(course.Course)
	if !ok {
		return course.Course{}, errors.Wrap(errCourseNotFoundInCtx, "retrieving object from context")
	}
	return c, nil
}

// Handlers

func (api *courseApi) search(ctx echo.Context) error {
	var filter course.SearchFilter
	var err error
	if filter.MinPrice, err = optionalInt(ctx, "min_price"); err != nil {
		return err
	}
	if filter.MaxPrice, err = optionalInt(ctx, "max_price"); err != nil {
		return err
	}
	if err = echo.QueryParamsBinder(ctx).
		String("q", &filter.Keyword).
		String("category", &filter.Category).
		String("level", &filter.Level).
		String("mode", &filter.Mode).
		String("city", &filter.City).
		String("region", &filter.Region).
		Strings("trust_level", &filter.TrustLevels).
		Float64("min_rating", &filter.MinRating).
		String("teacher_id", &filter.TeacherID).
		String("sort", &filter.Sort).
		BindError(); err != nil {
		return err
	}

	page, err := api.svc.Search(ctx.Request().Context(), filter, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "searching courses")
	}
	return ctx.JSON(http.StatusOK, page)
}

type CategoriesResponse struct {
	Categories []course.Choice `json:"categories"`
	Levels     []course.Choice `json:"levels"`
	Modes      []string        `json:"modes"`
}

func (api *courseApi) categories(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, CategoriesResponse{
		Categories: course.Categories,
		Levels:     course.Levels,
		Modes:      course.Modes,
	})
}

// mine lists the courses of the context teacher, drafts included.
func (api *courseApi) mine(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	reqCtx := ctx.Request().Context()
	t, err := api.teacherSvc.GetByUserID(reqCtx, usr.ID)
	if err != nil {
		if errors.Cause(err) == teacher.ErrNotFound {
			return course.ErrTeacherRequired
		}
		return errors.Wrap(err, "finding teacher by user ID")
	}

	filter := course.SearchFilter{TeacherID: t.ID, Sort: ctx.QueryParam("sort")}
	if err = echo.QueryParamsBinder(ctx).Strings("status", &filter.Statuses).BindError(); err != nil {
		return err
	}
	if len(filter.Statuses) == 0 {
		filter.Statuses = course.Statuses
	}
	page, err := api.svc.Search(reqCtx, filter, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "listing own courses")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *courseApi) create(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data course.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	c, err := api.svc.Create(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) update(ctx echo.Context) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	var data course.UpdateCourse
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateCourse")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	if c, err = api.svc.Update(ctx.Request().Context(), c, data); err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	if err = api.svc.Delete(reqCtx, c); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	if err = api.mediaSvc.Remove(reqCtx, c.CoverImageURL); err != nil {
		api.logger.Warn("removing course cover", err)
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) uploadCover(ctx echo.Context) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	file, err := openUpload(ctx)
	if err != nil {
		return err
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()

	reqCtx := ctx.Request().Context()
	upload, err := api.mediaSvc.UploadImage(reqCtx, media.KindCover, c.ID, file)
	if err != nil {
		return errors.Wrap(err, "uploading cover")
	}
	oldURL := c.CoverImageURL
	if c, err = api.svc.SetCover(reqCtx, c, upload.URL); err != nil {
		return errors.Wrap(err, "setting cover")
	}
	if err = api.mediaSvc.Remove(reqCtx, oldURL); err != nil {
		api.logger.Warn("removing previous course cover", err)
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *courseApi) reviews(ctx echo.Context) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	page, err := api.reviewSvc.Query(ctx.Request().Context(), review.QueryFilter{CourseID: c.ID}, bindPagination(ctx))
	if err != nil {
		return errors.Wrap(err, "listing course reviews")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *courseApi) createReview(ctx echo.Context) error {
	c, err := contextCourse(ctx)
	if err != nil {
		return err
	}
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	var data review.NewReview
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewReview")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	r, err := api.reviewSvc.Create(ctx.Request().Context(), usr, c, data)
	if err != nil {
		return errors.Wrap(err, "creating review")
	}
	return ctx.JSON(http.StatusCreated, r)
}
