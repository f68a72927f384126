package echoapi

import (
	"mime/multipart"

	"github.com/labstack/echo/v4"

	"github.com/findclassnz/findclass/core"
)

type (
	SuccessResponse struct {
		Success string `json:"success"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}
)

// openUpload opens the multipart `file` field of the request.
func openUpload(ctx echo.Context) (multipart.File, error) {
	fh, err := ctx.FormFile("file")
	if err != nil {
		return nil, core.NewFieldError("file", "this field is required")
	}
	return fh.Open()
}
