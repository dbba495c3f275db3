package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// RequestTimeout puts a deadline on the request context. Repositories observe
// it through pgx, which aborts the query and rolls back any open transaction.
// A handler that fails because the deadline passed is answered with 504.
// The handler runs on the calling goroutine, so nothing writes to the
// response after the middleware returns.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) && !c.Response().Committed {
				return &echo.HTTPError{
					Code:     http.StatusGatewayTimeout,
					Message:  "request processing exceeded the allowed time limit",
					Internal: err,
				}
			}
			return err
		}
	}
}
