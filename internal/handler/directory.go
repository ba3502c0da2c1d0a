package handler

import (
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/casino-floor/internal/session"
)

// DirectoryHandler answers the lookups a terminal makes before seating
// someone: which casino it is working and which player is at the table.
type DirectoryHandler struct {
	Sessions *session.Manager
	Log      logrus.FieldLogger
}

// NewDirectoryHandler panics if m is nil.
func NewDirectoryHandler(m *session.Manager, log logrus.FieldLogger) *DirectoryHandler {
	if m == nil {
		panic("nil session manager passed to NewDirectoryHandler")
	}
	return &DirectoryHandler{Sessions: m, Log: log.WithField("component", "handler.directory")}
}

// SearchPlayers handles GET /v1/players?q=.
func (h *DirectoryHandler) SearchPlayers(c echo.Context) error {
	players, err := h.Sessions.SearchPlayers(scoped(c), c.QueryParam("q"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return list(c, players)
}

// Casinos handles GET /v1/casinos.
func (h *DirectoryHandler) Casinos(c echo.Context) error {
	casinos, err := h.Sessions.ListCasinos(scoped(c))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return list(c, casinos)
}
