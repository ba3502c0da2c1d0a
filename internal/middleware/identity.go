package middleware

import "github.com/labstack/echo/v4"

// Context keys set by JWTAuth.
const (
	ctxStaffID  = "staff_id"
	ctxRole     = "role"
	ctxCasinoID = "casino_id"
)

// StaffID returns the authenticated staff member, or "anon".
func StaffID(c echo.Context) string {
	return getString(c, ctxStaffID, "anon")
}

// Role returns the authenticated role, or "".
func Role(c echo.Context) string {
	return getString(c, ctxRole, "")
}

// CasinoID returns the casino the token is pinned to, or "".
func CasinoID(c echo.Context) string {
	return getString(c, ctxCasinoID, "")
}

func getString(c echo.Context, key, def string) string {
	if s, ok := c.Get(key).(string); ok && s != "" {
		return s
	}
	return def
}
