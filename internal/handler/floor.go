package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/casino-floor/internal/clock"
	"github.com/iliyamo/casino-floor/internal/floor"
	"github.com/iliyamo/casino-floor/internal/repository"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	// Terminals authenticate with a bearer token, not cookies.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// FloorHandler serves the eventually consistent floor view of a casino.
type FloorHandler struct {
	Store        *repository.Store
	Floors       *floor.Registry
	Clock        clock.Clock
	LiveInterval time.Duration
	Log          logrus.FieldLogger
}

// NewFloorHandler panics if store or floors is nil.
func NewFloorHandler(store *repository.Store, floors *floor.Registry, clk clock.Clock, liveInterval time.Duration, log logrus.FieldLogger) *FloorHandler {
	if store == nil || floors == nil {
		panic("nil dependency passed to NewFloorHandler")
	}
	if clk == nil {
		clk = clock.New()
	}
	if liveInterval <= 0 {
		liveInterval = 15 * time.Second
	}
	return &FloorHandler{Store: store, Floors: floors, Clock: clk, LiveInterval: liveInterval, Log: log.WithField("component", "handler.floor")}
}

// synchronizer checks the casino exists and returns its running
// synchronizer once the first load was attempted.
func (h *FloorHandler) synchronizer(ctx context.Context, casinoID string) (*floor.Synchronizer, error) {
	lookup, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := h.Store.Casinos.GetByID(lookup, casinoID); err != nil {
		return nil, repository.Unavailable(err)
	}
	s := h.Floors.Get(casinoID)
	select {
	case <-s.Ready():
		return s, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, ctx.Err())
	}
}

// View handles GET /v1/casinos/:id/floor.  It returns every table with its
// seat map, average bet and the live points of each open session.
func (h *FloorHandler) View(c echo.Context) error {
	s, err := h.synchronizer(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, s.View().Live(h.Clock.Now()))
}

// Stream handles GET /v1/casinos/:id/floor/ws.  A new message is pushed on
// every view change and every LiveInterval so live points keep counting.
func (h *FloorHandler) Stream(c echo.Context) error {
	casinoID := c.Param("id")
	s, err := h.synchronizer(c.Request().Context(), casinoID)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return nil
	}
	defer conn.Close()
	log := h.Log.WithField("casino_id", casinoID)
	log.Debug("floor stream opened")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		defer cancel()
		readUntilClosed(conn)
	}()

	views := s.Watch(ctx)
	live := time.NewTicker(h.LiveInterval)
	defer live.Stop()
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	var current floor.View
	for {
		select {
		case <-ctx.Done():
			log.Debug("floor stream closed")
			return nil
		case v, ok := <-views:
			if !ok {
				return nil
			}
			current = v
		case <-live.C:
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
			continue
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(current.Live(h.Clock.Now())); err != nil {
			log.WithError(err).Debug("floor stream write failed")
			return nil
		}
	}
}

// readUntilClosed discards client messages and returns when the
// connection goes away.
func readUntilClosed(conn *websocket.Conn) {
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
