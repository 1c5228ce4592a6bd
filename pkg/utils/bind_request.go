package utils

import (
	apperrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/labstack/echo/v4"
)

// BindRequest binds path, query and body into T and validates it.
func BindRequest[T any](c echo.Context) (T, error) {
	var v T

	if err := c.Bind(&v); err != nil {
		return v, apperrors.NewInvalidInput("body", "%s", err.Error())
	}

	return Validate(v)
}
