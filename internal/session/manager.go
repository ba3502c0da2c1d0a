// Package session owns the rating-slip lifecycle: seating a player,
// moving, closing and correcting a session, and checking a visit out.
// Every mutation is one store transaction; the store's partial unique
// indexes settle races between terminals.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/casino-floor/internal/clock"
	"github.com/iliyamo/casino-floor/internal/model"
	"github.com/iliyamo/casino-floor/internal/queue"
	"github.com/iliyamo/casino-floor/internal/realtime"
	"github.com/iliyamo/casino-floor/internal/repository"
	"github.com/iliyamo/casino-floor/internal/scoring"
	"github.com/iliyamo/casino-floor/internal/visit"
)

// Options configures a Manager. Store and Log are required; Events and
// Ledger may be nil.
type Options struct {
	Store          *repository.Store
	Events         realtime.Publisher
	Ledger         LedgerPublisher
	Clock          clock.Clock
	StoreTimeout   time.Duration
	PublishTimeout time.Duration
	Log            logrus.FieldLogger
}

// Manager is the session lifecycle manager. It never consults a floor
// view; every call re-validates against the store.
type Manager struct {
	store          *repository.Store
	visits         *visit.Tracker
	events         realtime.Publisher
	ledger         LedgerPublisher
	clock          clock.Clock
	timeout        time.Duration
	publishTimeout time.Duration
	log            logrus.FieldLogger

	pending sync.WaitGroup
}

// NewManager builds a Manager from o.
func NewManager(o Options) *Manager {
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 5 * time.Second
	}
	log := o.Log.WithField("component", "session")
	return &Manager{
		store:          o.Store,
		visits:         visit.NewTracker(o.Store, o.Clock, o.Log),
		events:         o.Events,
		ledger:         o.Ledger,
		clock:          o.Clock,
		timeout:        o.StoreTimeout,
		publishTimeout: o.PublishTimeout,
		log:            log,
	}
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.timeout)
}

// fail maps store failures to ErrStoreUnavailable and logs anything that
// is not an expected outcome.
func (m *Manager) fail(op string, err error) error {
	err = repository.Unavailable(err)
	switch {
	case errors.Is(err, repository.ErrConflict),
		errors.Is(err, repository.ErrValidation):
		m.log.WithError(err).Debugf("%s rejected", op)
	case errors.Is(err, repository.ErrStoreUnavailable):
		m.log.WithError(err).Warnf("%s: store unavailable", op)
	case errors.Is(err, repository.ErrForbidden):
		m.log.WithError(err).Warnf("%s: outside casino scope", op)
	case errors.Is(err, repository.ErrCasinoNotFound),
		errors.Is(err, repository.ErrPlayerNotFound),
		errors.Is(err, repository.ErrTableNotFound),
		errors.Is(err, repository.ErrVisitNotFound):
		m.log.WithError(err).Debugf("%s: not found", op)
	default:
		m.log.WithError(err).Errorf("%s failed", op)
	}
	return err
}

func requireID(name, id string) error {
	if strings.TrimSpace(id) == "" {
		return repository.Validation(name + " is required")
	}
	return nil
}

// OpenSession seats a player at a free seat, opening a visit for the
// casino when the player has none. It fails with ErrPlayerAlreadyRated
// when the player already has an open session anywhere and ErrSeatTaken
// when the seat is occupied, including when another terminal wins the
// seat concurrently.
func (m *Manager) OpenSession(ctx context.Context, req OpenRequest) (*model.RatingSlip, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	if err := checkScope(ctx, req.CasinoID); err != nil {
		return nil, m.fail("open session", err)
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var (
		slip *model.RatingSlip
		fx   *effects
	)
	for attempt := 0; ; attempt++ {
		fx = &effects{}
		err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
			var err error
			slip, err = m.openTx(ctx, tx, req, fx)
			return err
		})
		if errors.Is(err, repository.ErrDuplicateOpenVisit) && attempt == 0 {
			// another terminal opened the visit; retry to reuse it
			m.log.WithField("player_id", req.PlayerID).Debug("visit created concurrently, retrying open")
			continue
		}
		if errors.Is(err, repository.ErrDuplicateOpenVisit) {
			err = fmt.Errorf("%w: %v", repository.ErrStoreUnavailable, err)
		}
		if err != nil {
			return nil, m.fail("open session", err)
		}
		break
	}
	m.publish(fx)
	m.log.WithFields(logrus.Fields{
		"slip_id": slip.ID, "player_id": slip.PlayerID, "table_id": slip.GamingTableID, "seat": slip.SeatNumber,
	}).Info("session opened")
	return slip, nil
}

func (m *Manager) openTx(ctx context.Context, tx *sql.Tx, req OpenRequest, fx *effects) (*model.RatingSlip, error) {
	table, err := m.seatableTable(ctx, tx, req.TableID, req.CasinoID, req.SeatNumber)
	if err != nil {
		return nil, err
	}
	if open, err := m.store.Slips.OpenByPlayerTx(ctx, tx, req.PlayerID); err != nil {
		return nil, err
	} else if open != nil {
		return nil, fmt.Errorf("%w: player %s is seated at table %s seat %d", repository.ErrPlayerAlreadyRated, req.PlayerID, open.GamingTableID, open.SeatNumber)
	}
	if occupant, err := m.store.Slips.OpenBySeatTx(ctx, tx, table.ID, req.SeatNumber); err != nil {
		return nil, err
	} else if occupant != nil {
		return nil, fmt.Errorf("%w: table %s seat %d", repository.ErrSeatTaken, table.ID, req.SeatNumber)
	}

	v, created, err := m.visits.GetOrCreateOpenVisitTx(ctx, tx, req.PlayerID, req.CasinoID)
	if err != nil {
		return nil, err
	}
	if created {
		if err := fx.change(realtime.TableVisit, v.CasinoID, realtime.OpInsert, nil, v, v.CheckInDate); err != nil {
			return nil, err
		}
	}

	now := m.clock.Now()
	slip := &model.RatingSlip{
		ID:            uuid.NewString(),
		PlayerID:      req.PlayerID,
		VisitID:       v.ID,
		GamingTableID: table.ID,
		SeatNumber:    req.SeatNumber,
		AverageBet:    req.AverageBet,
		StartTime:     now,
		GameSettings:  *table.Settings,
	}
	if err := m.store.Slips.InsertTx(ctx, tx, slip); err != nil {
		return nil, err
	}
	if err := fx.change(realtime.TableRatingSlip, table.CasinoID, realtime.OpInsert, nil, slip, now); err != nil {
		return nil, err
	}
	return slip, nil
}

// seatableTable loads a table with its active settings and checks that it
// belongs to casinoID and has the seat.
func (m *Manager) seatableTable(ctx context.Context, tx *sql.Tx, tableID, casinoID string, seat int) (*model.GamingTable, error) {
	table, err := m.store.Tables.GetTx(ctx, tx, tableID)
	if err != nil {
		return nil, err
	}
	if table.CasinoID != casinoID {
		return nil, repository.Validation(fmt.Sprintf("gaming table %s does not belong to casino %s", tableID, casinoID))
	}
	if table.Settings == nil {
		return nil, repository.Validation(fmt.Sprintf("gaming table %s has no active game settings", tableID))
	}
	if !table.ValidSeat(seat) {
		return nil, repository.Validation(fmt.Sprintf("seat_number must be between 1 and %d", table.SeatsAvailable()))
	}
	return table, nil
}

// closeTx closes s at now with points from its own settings snapshot. It
// returns the closed image, or ok == false when another writer closed it
// first.
func (m *Manager) closeTx(ctx context.Context, tx *sql.Tx, s model.RatingSlip, now time.Time) (model.RatingSlip, bool, error) {
	points := scoring.ComputePoints(s.GameSettings, s.AverageBet, s.StartTime, now)
	ok, err := m.store.Slips.CloseTx(ctx, tx, s.ID, now, points)
	if err != nil || !ok {
		return s, ok, err
	}
	closed := s
	end := now
	closed.EndTime = &end
	closed.PointsEarned = &points
	return closed, true, nil
}

// MoveSession closes an open session and opens a new one at another seat
// in the same transaction. The new session keeps the visit, the average
// bet and the buy-in figures, and records the closed session as its
// predecessor. A source that is already closed, including by a concurrent
// move, yields ErrSessionNotFound and no new session.
func (m *Manager) MoveSession(ctx context.Context, slipID, newTableID string, newSeat int) (*model.RatingSlip, error) {
	var problems []string
	if strings.TrimSpace(slipID) == "" {
		problems = append(problems, "rating slip id is required")
	}
	if strings.TrimSpace(newTableID) == "" {
		problems = append(problems, "gaming_table_id is required")
	}
	if newSeat < 1 {
		problems = append(problems, "seat_number must be >= 1")
	}
	if len(problems) > 0 {
		return nil, repository.Validation(problems...)
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var (
		moved *model.RatingSlip
		fx    = &effects{}
	)
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		old, err := m.store.Slips.GetTx(ctx, tx, slipID)
		if err != nil {
			return err
		}
		if !old.IsOpen() {
			return fmt.Errorf("%w: slip %s is already closed", repository.ErrSessionNotFound, slipID)
		}
		if old.GamingTableID == newTableID && old.SeatNumber == newSeat {
			return repository.Validation("destination is the current seat")
		}
		v, err := m.store.Visits.GetTx(ctx, tx, old.VisitID)
		if err != nil {
			return err
		}
		if err := checkScope(ctx, v.CasinoID); err != nil {
			return err
		}
		table, err := m.seatableTable(ctx, tx, newTableID, v.CasinoID, newSeat)
		if err != nil {
			return err
		}

		now := m.clock.Now()
		closed, ok, err := m.closeTx(ctx, tx, *old, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: slip %s was closed concurrently", repository.ErrSessionNotFound, slipID)
		}
		if occupant, err := m.store.Slips.OpenBySeatTx(ctx, tx, table.ID, newSeat); err != nil {
			return err
		} else if occupant != nil {
			return fmt.Errorf("%w: table %s seat %d", repository.ErrSeatTaken, table.ID, newSeat)
		}

		previous := old.ID
		next := &model.RatingSlip{
			ID:             uuid.NewString(),
			PlayerID:       old.PlayerID,
			VisitID:        old.VisitID,
			GamingTableID:  table.ID,
			SeatNumber:     newSeat,
			AverageBet:     old.AverageBet,
			CashIn:         old.CashIn,
			ChipsBrought:   old.ChipsBrought,
			StartTime:      now,
			GameSettings:   *table.Settings,
			PreviousSlipID: &previous,
		}
		if err := m.store.Slips.InsertTx(ctx, tx, next); err != nil {
			return err
		}

		if err := fx.change(realtime.TableRatingSlip, v.CasinoID, realtime.OpUpdate, old, closed, now); err != nil {
			return err
		}
		if err := fx.change(realtime.TableRatingSlip, v.CasinoID, realtime.OpInsert, nil, next, now); err != nil {
			return err
		}
		fx.award(closed, v.CasinoID, queue.ReasonMove)
		moved = next
		return nil
	})
	if err != nil {
		return nil, m.fail("move session", err)
	}
	m.publish(fx)
	m.log.WithFields(logrus.Fields{
		"from_slip_id": slipID, "slip_id": moved.ID, "table_id": moved.GamingTableID, "seat": moved.SeatNumber,
	}).Info("session moved")
	return moved, nil
}

// CloseSession ends an open session and awards its points. The visit stays
// open. A second close fails with ErrAlreadyClosed and awards nothing.
func (m *Manager) CloseSession(ctx context.Context, slipID string) (*model.RatingSlip, error) {
	if err := requireID("rating slip id", slipID); err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var (
		out model.RatingSlip
		fx  = &effects{}
	)
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		s, err := m.store.Slips.GetTx(ctx, tx, slipID)
		if err != nil {
			return err
		}
		if !s.IsOpen() {
			return fmt.Errorf("%w: slip %s", repository.ErrAlreadyClosed, slipID)
		}
		v, err := m.store.Visits.GetTx(ctx, tx, s.VisitID)
		if err != nil {
			return err
		}
		if err := checkScope(ctx, v.CasinoID); err != nil {
			return err
		}
		now := m.clock.Now()
		closed, ok, err := m.closeTx(ctx, tx, *s, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: slip %s", repository.ErrAlreadyClosed, slipID)
		}
		if err := fx.change(realtime.TableRatingSlip, v.CasinoID, realtime.OpUpdate, s, closed, now); err != nil {
			return err
		}
		fx.award(closed, v.CasinoID, queue.ReasonClose)
		out = closed
		return nil
	})
	if err != nil {
		return nil, m.fail("close session", err)
	}
	m.publish(fx)
	m.log.WithFields(logrus.Fields{"slip_id": out.ID, "points": *out.PointsEarned}).Info("session closed")
	return &out, nil
}

// UpdateSessionDetails corrects the figures of an open session. Points are
// not recomputed and the seat does not change.
func (m *Manager) UpdateSessionDetails(ctx context.Context, slipID string, d SessionDetails) (*model.RatingSlip, error) {
	if err := requireID("rating slip id", slipID); err != nil {
		return nil, err
	}
	if err := validateDetails(d); err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var (
		out *model.RatingSlip
		fx  = &effects{}
	)
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		s, err := m.store.Slips.GetTx(ctx, tx, slipID)
		if err != nil {
			return err
		}
		if !s.IsOpen() {
			return fmt.Errorf("%w: slip %s", repository.ErrAlreadyClosed, slipID)
		}
		v, err := m.store.Visits.GetTx(ctx, tx, s.VisitID)
		if err != nil {
			return err
		}
		if err := checkScope(ctx, v.CasinoID); err != nil {
			return err
		}
		ok, err := m.store.Slips.UpdateDetailsTx(ctx, tx, slipID, d)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: slip %s", repository.ErrAlreadyClosed, slipID)
		}
		updated, err := m.store.Slips.GetTx(ctx, tx, slipID)
		if err != nil {
			return err
		}
		if err := fx.change(realtime.TableRatingSlip, v.CasinoID, realtime.OpUpdate, s, updated, m.clock.Now()); err != nil {
			return err
		}
		out = updated
		return nil
	})
	if err != nil {
		return nil, m.fail("update session", err)
	}
	m.publish(fx)
	return out, nil
}

// EndVisit checks a visit out. Sessions still open under it are closed
// first, each with its points.
func (m *Manager) EndVisit(ctx context.Context, visitID string) (*EndVisitResult, error) {
	if err := requireID("visit id", visitID); err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	var (
		res = &EndVisitResult{ClosedSlips: []model.RatingSlip{}}
		fx  = &effects{}
	)
	err := m.store.WithTx(ctx, func(tx *sql.Tx) error {
		v, err := m.store.Visits.GetTx(ctx, tx, visitID)
		if err != nil {
			return err
		}
		if err := checkScope(ctx, v.CasinoID); err != nil {
			return err
		}
		if !v.IsOpen() {
			return fmt.Errorf("%w: visit %s", repository.ErrVisitClosed, visitID)
		}
		open, err := m.store.Slips.ListOpenByVisitTx(ctx, tx, visitID)
		if err != nil {
			return err
		}
		now := m.clock.Now()
		for _, s := range open {
			closed, ok, err := m.closeTx(ctx, tx, s, now)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			before := s
			if err := fx.change(realtime.TableRatingSlip, v.CasinoID, realtime.OpUpdate, &before, closed, now); err != nil {
				return err
			}
			fx.award(closed, v.CasinoID, queue.ReasonEndVisit)
			res.ClosedSlips = append(res.ClosedSlips, closed)
		}
		ok, err := m.store.Visits.CloseTx(ctx, tx, visitID, now)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: visit %s", repository.ErrVisitClosed, visitID)
		}
		checkedOut := *v
		checkedOut.CheckOutDate = &now
		if err := fx.change(realtime.TableVisit, v.CasinoID, realtime.OpUpdate, v, checkedOut, now); err != nil {
			return err
		}
		res.Visit = checkedOut
		return nil
	})
	if err != nil {
		return nil, m.fail("end visit", err)
	}
	m.publish(fx)
	m.log.WithFields(logrus.Fields{"visit_id": visitID, "closed_slips": len(res.ClosedSlips)}).Info("visit ended")
	return res, nil
}

// CheckIn opens a visit without seating the player.
func (m *Manager) CheckIn(ctx context.Context, playerID, casinoID string) (*model.Visit, bool, error) {
	var problems []string
	if strings.TrimSpace(playerID) == "" {
		problems = append(problems, "player_id is required")
	}
	if strings.TrimSpace(casinoID) == "" {
		problems = append(problems, "casino_id is required")
	}
	if len(problems) > 0 {
		return nil, false, repository.Validation(problems...)
	}
	if err := checkScope(ctx, casinoID); err != nil {
		return nil, false, m.fail("check in", err)
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	v, created, err := m.visits.GetOrCreateOpenVisit(ctx, playerID, casinoID)
	if err != nil {
		return nil, false, m.fail("check in", err)
	}
	if created {
		fx := &effects{}
		if err := fx.change(realtime.TableVisit, v.CasinoID, realtime.OpInsert, nil, v, v.CheckInDate); err == nil {
			m.publish(fx)
		}
	}
	return v, created, nil
}

// GetSession returns one session, open or closed.
func (m *Manager) GetSession(ctx context.Context, slipID string) (*model.RatingSlip, error) {
	if err := requireID("rating slip id", slipID); err != nil {
		return nil, err
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	s, err := m.store.Slips.Get(ctx, slipID)
	if err != nil {
		return nil, m.fail("get session", err)
	}
	if _, scoped := CasinoScope(ctx); scoped {
		v, err := m.store.Visits.GetByID(ctx, s.VisitID)
		if err != nil {
			return nil, m.fail("get session", err)
		}
		if err := checkScope(ctx, v.CasinoID); err != nil {
			return nil, m.fail("get session", err)
		}
	}
	return s, nil
}

// GetOpenSessions returns the open sessions at the casino's tables.
func (m *Manager) GetOpenSessions(ctx context.Context, casinoID string) ([]model.RatingSlip, error) {
	if err := requireID("casino id", casinoID); err != nil {
		return nil, err
	}
	if err := checkScope(ctx, casinoID); err != nil {
		return nil, m.fail("get open sessions", err)
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if _, err := m.store.Casinos.GetByID(ctx, casinoID); err != nil {
		return nil, m.fail("get open sessions", err)
	}
	slips, err := m.store.Slips.ListOpenByCasino(ctx, casinoID)
	if err != nil {
		return nil, m.fail("get open sessions", err)
	}
	if slips == nil {
		slips = []model.RatingSlip{}
	}
	return slips, nil
}

// ListActiveVisits returns the casino's open visits.
func (m *Manager) ListActiveVisits(ctx context.Context, casinoID string) ([]model.Visit, error) {
	if err := requireID("casino id", casinoID); err != nil {
		return nil, err
	}
	if err := checkScope(ctx, casinoID); err != nil {
		return nil, m.fail("list active visits", err)
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if _, err := m.store.Casinos.GetByID(ctx, casinoID); err != nil {
		return nil, m.fail("list active visits", err)
	}
	visits, err := m.store.Visits.ListOpenByCasino(ctx, casinoID)
	if err != nil {
		return nil, m.fail("list active visits", err)
	}
	if visits == nil {
		visits = []model.Visit{}
	}
	return visits, nil
}
