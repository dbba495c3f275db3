// Package httperr maps service errors onto HTTP status codes.
package httperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/domain/followup"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

// From translates err into an *echo.HTTPError. Errors matching any of
// notFound map to 404; conflicts map to 409.
func From(err error, notFound []error, conflict ...error) *echo.HTTPError {
	var ve *followup.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, map[string]string{"field": ve.Field, "message": ve.Message})
	case errors.Is(err, auth.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	for _, nf := range notFound {
		if errors.Is(err, nf) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
	}
	for _, c := range conflict {
		if errors.Is(err, c) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
