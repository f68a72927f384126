package echoapi

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/findclassnz/findclass/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	if val := ctx.QueryParam(orderingParam); val != "" {
		ord.Orderings = core.ParseOrderings(val)
	}
}

// bindPagination reads the `page` and `limit` query params; bad values fall back to the defaults.
func bindPagination(ctx echo.Context) core.Pagination {
	var page core.Pagination
	_ = echo.QueryParamsBinder(ctx).
		Int("page", &page.Page).
		Int("limit", &page.Limit).
		BindError()
	page.Clean()
	return page
}

// optionalInt reads an integer query param, nil when absent.
func optionalInt(ctx echo.Context, name string) (*int, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return nil, core.NewFieldError(name, "enter a whole number")
	}
	return &n, nil
}

// optionalBool reads a boolean query param, nil when absent.
func optionalBool(ctx echo.Context, name string) (*bool, error) {
	val := ctx.QueryParam(name)
	if val == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return nil, core.NewFieldError(name, "enter true or false")
	}
	return &b, nil
}
