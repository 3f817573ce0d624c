package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/appcontext"
)

const (
	// HeaderOrganizationID carries the tenant organization resolved by the
	// API gateway in front of this service.
	HeaderOrganizationID = "X-Organization-ID"
	// HeaderUserID carries the authenticated user id.
	HeaderUserID = "X-User-ID"
)

// Context seeds the request context with the identity headers so handlers
// and repositories read them from context instead of echo.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			ctx := req.Context()
			ctx = appcontext.SetRequestID(ctx, requestID)
			ctx = appcontext.SetOrganizationID(ctx, req.Header.Get(HeaderOrganizationID))
			ctx = appcontext.SetUserID(ctx, req.Header.Get(HeaderUserID))

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
