package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// RequireRole aborts with 403 unless the authenticated staff member has
// one of roles.  It must run after JWTAuth.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "role not permitted"})
			}
			return next(c)
		}
	}
}

// RequireCasino rejects tokens pinned to a different casino than the one
// named by the :id path parameter.  Unpinned tokens pass.
func RequireCasino(param string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if pinned := CasinoID(c); pinned != "" && pinned != c.Param(param) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "token is for another casino"})
			}
			return next(c)
		}
	}
}
