package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/casino-floor/internal/middleware"
	"github.com/iliyamo/casino-floor/internal/repository"
	"github.com/iliyamo/casino-floor/internal/session"
)

// SessionHandler exposes the rating slip lifecycle.  All methods assume
// JWTAuth already ran.
type SessionHandler struct {
	Sessions *session.Manager
	Log      logrus.FieldLogger
}

// NewSessionHandler panics if m is nil.
func NewSessionHandler(m *session.Manager, log logrus.FieldLogger) *SessionHandler {
	if m == nil {
		panic("nil session manager passed to NewSessionHandler")
	}
	return &SessionHandler{Sessions: m, Log: log.WithField("component", "handler.session")}
}

type openSessionRequest struct {
	PlayerID      string          `json:"player_id"`
	CasinoID      string          `json:"casino_id"`
	GamingTableID string          `json:"gaming_table_id"`
	SeatNumber    int             `json:"seat_number"`
	AverageBet    decimal.Decimal `json:"average_bet"`
}

// OpenSession handles POST /v1/ratingslips.  It seats the player and
// returns the new open slip with 201.
func (h *SessionHandler) OpenSession(c echo.Context) error {
	var body openSessionRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	slip, err := h.Sessions.OpenSession(scoped(c), session.OpenRequest{
		PlayerID:   body.PlayerID,
		CasinoID:   body.CasinoID,
		TableID:    body.GamingTableID,
		SeatNumber: body.SeatNumber,
		AverageBet: body.AverageBet,
	})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	h.Log.WithFields(logrus.Fields{"slip_id": slip.ID, "staff_id": middleware.StaffID(c)}).Info("session opened")
	return c.JSON(http.StatusCreated, slip)
}

// GetSession handles GET /v1/ratingslips/:id.  Unknown ids are 404 here
// rather than the 409 the mutating endpoints return.
func (h *SessionHandler) GetSession(c echo.Context) error {
	slip, err := h.Sessions.GetSession(scoped(c), c.Param("id"))
	if errors.Is(err, repository.ErrSessionNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session_not_found", "message": err.Error()})
	}
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, slip)
}

type moveSessionRequest struct {
	GamingTableID string `json:"gaming_table_id"`
	SeatNumber    int    `json:"seat_number"`
}

// MoveSession handles POST /v1/ratingslips/:id/move.  The source slip is
// closed and the returned destination slip carries previous_slip_id.
func (h *SessionHandler) MoveSession(c echo.Context) error {
	var body moveSessionRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	slip, err := h.Sessions.MoveSession(scoped(c), c.Param("id"), body.GamingTableID, body.SeatNumber)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	h.Log.WithFields(logrus.Fields{"from": c.Param("id"), "slip_id": slip.ID, "staff_id": middleware.StaffID(c)}).Info("session moved")
	return c.JSON(http.StatusOK, slip)
}

// CloseSession handles POST /v1/ratingslips/:id/close.
func (h *SessionHandler) CloseSession(c echo.Context) error {
	slip, err := h.Sessions.CloseSession(scoped(c), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	h.Log.WithFields(logrus.Fields{"slip_id": slip.ID, "staff_id": middleware.StaffID(c)}).Info("session closed")
	return c.JSON(http.StatusOK, slip)
}

type updateDetailsRequest struct {
	AverageBet   *decimal.Decimal `json:"average_bet"`
	CashIn       *decimal.Decimal `json:"cash_in"`
	ChipsBrought *decimal.Decimal `json:"chips_brought"`
	ChipsTaken   *decimal.Decimal `json:"chips_taken"`
	StartTime    *time.Time       `json:"start_time"`
}

// UpdateSessionDetails handles PATCH /v1/ratingslips/:id.  Absent fields
// are left unchanged.
func (h *SessionHandler) UpdateSessionDetails(c echo.Context) error {
	var body updateDetailsRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	d := session.SessionDetails{
		AverageBet:   body.AverageBet,
		CashIn:       body.CashIn,
		ChipsBrought: body.ChipsBrought,
		ChipsTaken:   body.ChipsTaken,
		StartTime:    body.StartTime,
	}
	slip, err := h.Sessions.UpdateSessionDetails(scoped(c), c.Param("id"), d)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, slip)
}

// OpenSessions handles GET /v1/casinos/:id/ratingslips.
func (h *SessionHandler) OpenSessions(c echo.Context) error {
	slips, err := h.Sessions.GetOpenSessions(scoped(c), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return list(c, slips)
}
