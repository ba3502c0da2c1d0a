package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/casino-floor/internal/middleware"
	"github.com/iliyamo/casino-floor/internal/session"
)

// VisitHandler exposes check-in, check-out and the active visit list.
type VisitHandler struct {
	Sessions *session.Manager
	Log      logrus.FieldLogger
}

// NewVisitHandler panics if m is nil.
func NewVisitHandler(m *session.Manager, log logrus.FieldLogger) *VisitHandler {
	if m == nil {
		panic("nil session manager passed to NewVisitHandler")
	}
	return &VisitHandler{Sessions: m, Log: log.WithField("component", "handler.visit")}
}

// CheckIn handles POST /v1/visits.  It returns 201 with a new visit or
// 200 with the player's existing open visit at the casino.
func (h *VisitHandler) CheckIn(c echo.Context) error {
	var body struct {
		PlayerID string `json:"player_id"`
		CasinoID string `json:"casino_id"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	v, created, err := h.Sessions.CheckIn(scoped(c), body.PlayerID, body.CasinoID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	if created {
		return c.JSON(http.StatusCreated, v)
	}
	return c.JSON(http.StatusOK, v)
}

// EndVisit handles POST /v1/visits/:id/end.  Open slips of the visit are
// closed with their points awarded before the visit is checked out.
func (h *VisitHandler) EndVisit(c echo.Context) error {
	res, err := h.Sessions.EndVisit(scoped(c), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	h.Log.WithFields(logrus.Fields{
		"visit_id":     res.Visit.ID,
		"closed_slips": len(res.ClosedSlips),
		"staff_id":     middleware.StaffID(c),
	}).Info("visit ended")
	return c.NoContent(http.StatusNoContent)
}

// ActiveVisits handles GET /v1/casinos/:id/visits.
func (h *VisitHandler) ActiveVisits(c echo.Context) error {
	visits, err := h.Sessions.ListActiveVisits(scoped(c), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return list(c, visits)
}
