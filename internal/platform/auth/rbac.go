package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/wellness/booking/internal/domain/booking"
)

// RequireRole returns middleware that checks the session has one of the
// given roles. Admins always pass.
func RequireRole(roles ...booking.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			sess := SessionFromContext(c.Request().Context())
			if sess.Role == booking.RoleAdmin && sess.Authenticated() {
				return next(c)
			}
			for _, required := range roles {
				if sess.Role == required && (required == booking.RoleGuest || sess.Authenticated()) {
					return next(c)
				}
			}
			if !sess.Authenticated() {
				return echo.NewHTTPError(http.StatusUnauthorized, "sign in required")
			}
			names := make([]string, len(roles))
			for i, r := range roles {
				names[i] = string(r)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(names, " or ")))
		}
	}
}

// RequireAuthenticated rejects guests.
func RequireAuthenticated() echo.MiddlewareFunc {
	return RequireRole(booking.RoleClient, booking.RoleSpecialist)
}
