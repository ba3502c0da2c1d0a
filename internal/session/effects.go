package session

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/casino-floor/internal/model"
	"github.com/iliyamo/casino-floor/internal/queue"
	"github.com/iliyamo/casino-floor/internal/realtime"
	"github.com/iliyamo/casino-floor/internal/scoring"
)

// LedgerPublisher records point awards in the raw point ledger.
type LedgerPublisher interface {
	PublishPointsAwarded(ctx context.Context, ev queue.PointsAwardedEvent) error
}

// effects collects what a transaction changed. They are published only
// after commit.
type effects struct {
	events []realtime.ChangeEvent
	awards []queue.PointsAwardedEvent
}

func (fx *effects) change(table, casinoID string, op realtime.Op, old, new any, at time.Time) error {
	e, err := realtime.NewChangeEvent(table, casinoID, op, old, new, at)
	if err != nil {
		return err
	}
	fx.events = append(fx.events, e)
	return nil
}

func (fx *effects) award(s model.RatingSlip, casinoID, reason string) {
	if s.EndTime == nil || s.PointsEarned == nil {
		return
	}
	fx.awards = append(fx.awards, queue.PointsAwardedEvent{
		SlipID:         s.ID,
		PlayerID:       s.PlayerID,
		VisitID:        s.VisitID,
		CasinoID:       casinoID,
		GamingTableID:  s.GamingTableID,
		SeatNumber:     s.SeatNumber,
		AverageBet:     s.AverageBet.String(),
		StartTime:      s.StartTime.Format(time.RFC3339),
		EndTime:        s.EndTime.Format(time.RFC3339),
		ElapsedMinutes: scoring.ElapsedMinutes(s.StartTime, *s.EndTime),
		PointsEarned:   *s.PointsEarned,
		Reason:         reason,
		AwardedAt:      s.EndTime.Format(time.RFC3339),
	})
}

// publish sends change events inline and ledger awards in the background.
// Failures are logged; the transaction is already committed.
func (m *Manager) publish(fx *effects) {
	if m.events != nil {
		for _, e := range fx.events {
			ctx, cancel := context.WithTimeout(context.Background(), m.publishTimeout)
			if err := m.events.Publish(ctx, e); err != nil {
				m.log.WithError(err).WithFields(logrus.Fields{"table": e.Table, "op": e.Op}).Warn("change event not published")
			}
			cancel()
		}
	}
	if m.ledger == nil || len(fx.awards) == 0 {
		return
	}
	awards := fx.awards
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		for _, a := range awards {
			ctx, cancel := context.WithTimeout(context.Background(), m.publishTimeout)
			if err := m.ledger.PublishPointsAwarded(ctx, a); err != nil {
				m.log.WithError(err).WithFields(logrus.Fields{"slip_id": a.SlipID, "points": a.PointsEarned}).Error("point award not published")
			}
			cancel()
		}
	}()
}

// Wait blocks until background ledger publishes have finished.
func (m *Manager) Wait() { m.pending.Wait() }
