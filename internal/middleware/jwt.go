package middleware // middleware holds the HTTP middleware shared by the API routes

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/casino-floor/internal/utils"
)

// JWTAuth validates a staff Bearer token and stores its subject, role and
// casino claims in the request context.  Browsers cannot set headers on a
// websocket upgrade, so the token is also accepted from the access_token
// query parameter.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := ""
			if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				raw = strings.TrimPrefix(auth, "Bearer ")
			} else if q := c.QueryParam("access_token"); q != "" {
				raw = q
			}
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "missing bearer token"})
			}

			claims, err := utils.ParseAccessToken(secret, raw)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "invalid token"})
			}

			c.Set(ctxStaffID, claims.Subject)
			c.Set(ctxRole, claims.Role)
			c.Set(ctxCasinoID, claims.CasinoID)
			return next(c)
		}
	}
}
