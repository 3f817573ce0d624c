package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/tracing"
)

// CronAuth guards the scheduled-invocation endpoints with a shared-secret
// bearer token so they cannot be triggered by arbitrary public calls.
func CronAuth(logger ectologger.Logger, secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx, span := tracing.StartSpan(ctx, "middleware.CronAuth")
			defer span.End()

			if secret == "" {
				logger.WithContext(ctx).Error("cron secret is not configured")
				return echo.NewHTTPError(http.StatusServiceUnavailable, "scheduled invocations are disabled")
			}

			auth := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") {
				logger.WithContext(ctx).Warn("cron request is missing bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer")
			}

			raw := strings.TrimPrefix(auth, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(raw), []byte(secret)) != 1 {
				logger.WithContext(ctx).Warn("cron bearer token is invalid")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}
