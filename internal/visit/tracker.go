// Package visit tracks player presence at a casino. The tracker is the only
// creation path for visits, so at most one visit per player is open.
package visit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/casino-floor/internal/clock"
	"github.com/iliyamo/casino-floor/internal/model"
	"github.com/iliyamo/casino-floor/internal/repository"
)

// Tracker opens visits on demand.
type Tracker struct {
	store *repository.Store
	clock clock.Clock
	log   logrus.FieldLogger
}

// NewTracker returns a Tracker over store.
func NewTracker(store *repository.Store, clk clock.Clock, log logrus.FieldLogger) *Tracker {
	return &Tracker{store: store, clock: clk, log: log.WithField("component", "visit")}
}

// GetOrCreateOpenVisit returns the player's open visit at casinoID,
// creating it when the player has none. The bool reports whether a visit
// was created. A player whose open visit is at another casino gets
// ErrOpenVisitElsewhere. Concurrent callers for one player receive the
// same visit.
func (t *Tracker) GetOrCreateOpenVisit(ctx context.Context, playerID, casinoID string) (*model.Visit, bool, error) {
	var (
		v       *model.Visit
		created bool
	)
	err := t.store.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		v, created, err = t.GetOrCreateOpenVisitTx(ctx, tx, playerID, casinoID)
		return err
	})
	if errors.Is(err, repository.ErrDuplicateOpenVisit) {
		// lost the race; the winner's row is committed
		t.log.WithField("player_id", playerID).Debug("concurrent check-in, reading winner's visit")
		v, err = t.store.Visits.OpenByPlayer(ctx, playerID)
		if err != nil {
			return nil, false, repository.Unavailable(err)
		}
		if v == nil {
			return nil, false, fmt.Errorf("%w: open visit vanished for player %s", repository.ErrVisitClosed, playerID)
		}
		if v.CasinoID != casinoID {
			return nil, false, fmt.Errorf("%w: player %s is checked in at casino %s", repository.ErrOpenVisitElsewhere, playerID, v.CasinoID)
		}
		return v, false, nil
	}
	if err != nil {
		return nil, false, repository.Unavailable(err)
	}
	return v, created, nil
}

// GetOrCreateOpenVisitTx is GetOrCreateOpenVisit inside the caller's
// transaction. When another writer wins the insert it returns
// ErrDuplicateOpenVisit and the caller must roll back and retry.
func (t *Tracker) GetOrCreateOpenVisitTx(ctx context.Context, tx *sql.Tx, playerID, casinoID string) (*model.Visit, bool, error) {
	if _, err := t.store.Players.GetByIDTx(ctx, tx, playerID); err != nil {
		return nil, false, err
	}
	if _, err := t.store.Casinos.GetByIDTx(ctx, tx, casinoID); err != nil {
		return nil, false, err
	}
	open, err := t.store.Visits.OpenByPlayerTx(ctx, tx, playerID)
	if err != nil {
		return nil, false, err
	}
	if open != nil {
		if open.CasinoID != casinoID {
			return nil, false, fmt.Errorf("%w: player %s is checked in at casino %s", repository.ErrOpenVisitElsewhere, playerID, open.CasinoID)
		}
		return open, false, nil
	}

	v := &model.Visit{
		ID:          uuid.NewString(),
		PlayerID:    playerID,
		CasinoID:    casinoID,
		CheckInDate: t.clock.Now(),
	}
	if err := t.store.Visits.InsertTx(ctx, tx, v); err != nil {
		return nil, false, err
	}
	t.log.WithFields(logrus.Fields{"visit_id": v.ID, "player_id": playerID, "casino_id": casinoID}).Info("visit opened")
	return v, true, nil
}
