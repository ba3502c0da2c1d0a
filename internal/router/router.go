package router // package router registers the HTTP routes of the floor API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/casino-floor/internal/handler"
	"github.com/iliyamo/casino-floor/internal/middleware"
	"github.com/iliyamo/casino-floor/internal/utils"
)

// Handlers bundles everything RegisterRoutes mounts.
type Handlers struct {
	Health    echo.HandlerFunc
	Sessions  *handler.SessionHandler
	Visits    *handler.VisitHandler
	Floor     *handler.FloorHandler
	Directory *handler.DirectoryHandler
}

// RegisterRoutes mounts the health check and the staff API.  Every /v1
// route requires a staff token; extra middleware (rate limiting) applies
// to /v1 only.
func RegisterRoutes(e *echo.Echo, h Handlers, jwtSecret string, extra ...echo.MiddlewareFunc) {
	e.GET("/healthz", h.Health)

	mw := append([]echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.StaffRoles...),
	}, extra...)
	g := e.Group("/v1", mw...)

	// ---- Rating slips ----
	g.POST("/ratingslips", h.Sessions.OpenSession)
	g.GET("/ratingslips/:id", h.Sessions.GetSession)
	g.PATCH("/ratingslips/:id", h.Sessions.UpdateSessionDetails)
	g.POST("/ratingslips/:id/move", h.Sessions.MoveSession)
	g.POST("/ratingslips/:id/close", h.Sessions.CloseSession)

	// ---- Visits ----
	g.POST("/visits", h.Visits.CheckIn)
	g.POST("/visits/:id/end", h.Visits.EndVisit, middleware.RequireRole(utils.RolePitBoss, utils.RoleSupervisor))

	// ---- Lookups ----
	g.GET("/players", h.Directory.SearchPlayers)
	g.GET("/casinos", h.Directory.Casinos)

	// ---- Casino floor ----
	casino := g.Group("/casinos/:id", middleware.RequireCasino("id"))
	casino.GET("/ratingslips", h.Sessions.OpenSessions)
	casino.GET("/visits", h.Visits.ActiveVisits)
	casino.GET("/floor", h.Floor.View)
	casino.GET("/floor/ws", h.Floor.Stream)
}
