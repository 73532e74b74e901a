package middleware

import (
	"errors"
	"net/http"
	"slices"

	"github.com/labstack/echo/v4"
)

var ErrForbiddenRole = errors.New("role not allowed")

func Authorize(role string, allowed []string) error {
	if !slices.Contains(allowed, role) {
		return ErrForbiddenRole
	}
	return nil
}

// RequireRole must run after Authenticate.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := IdentityFrom(c)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
			}
			if err := Authorize(id.Role, roles); err != nil {
				return echo.NewHTTPError(http.StatusForbidden, "you don't have enough rights")
			}
			return next(c)
		}
	}
}
