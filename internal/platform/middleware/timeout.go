package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestTimeout puts a deadline on the request context and answers 504 when
// the handler returns after it expired without writing a response. Event
// stream upgrades are left alone since they outlive any request budget.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 || c.IsWebSocket() {
				return next(c)
			}
			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Response().Committed {
				return err
			}
			zerolog.Ctx(ctx).Warn().
				Str("path", c.Path()).
				Dur("timeout", timeout).
				Msg("request exceeded its deadline")
			return echo.NewHTTPError(http.StatusGatewayTimeout, "request timed out")
		}
	}
}
