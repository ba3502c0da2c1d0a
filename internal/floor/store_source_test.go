package floor_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/casino-floor/internal/clock"
	"github.com/iliyamo/casino-floor/internal/floor"
	"github.com/iliyamo/casino-floor/internal/realtime"
	"github.com/iliyamo/casino-floor/internal/repository/repotest"
	"github.com/iliyamo/casino-floor/internal/session"
)

func seatOf(v floor.View, tableID string, seat int) string {
	tv, ok := v.Table(tableID)
	if !ok {
		return ""
	}
	s, ok := tv.Seats.Seat(seat)
	if !ok || s.Slip == nil {
		return ""
	}
	return s.Slip.ID
}

func TestFloorFollowsSessionManager(t *testing.T) {
	ctx := context.Background()
	log, _ := logtest.NewNullLogger()
	store := repotest.NewStore(t)
	f := repotest.Seed(t, store, 1)
	clk := clock.NewMock(time.Date(2024, 2, 2, 21, 0, 0, 0, time.UTC))
	hub := realtime.NewHub(64, log)

	mgr := session.NewManager(session.Options{Store: store, Events: hub, Clock: clk, Log: log})
	s := floor.New(f.Casino.ID, floor.NewStoreSource(store, time.Second), hub, clk, floor.Options{}, log)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- s.Run(runCtx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	<-s.Ready()

	v := s.View()
	require.False(t, v.Stale)
	require.Len(t, v.Tables, 2)
	assert.Equal(t, "BJ-01", v.Tables[0].Table.TableNumber)

	slip, err := mgr.OpenSession(ctx, session.OpenRequest{
		PlayerID: f.Players[0].ID, CasinoID: f.Casino.ID, TableID: f.Blackjack.ID,
		SeatNumber: 2, AverageBet: decimal.NewFromInt(25),
	})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return seatOf(s.View(), f.Blackjack.ID, 2) == slip.ID },
		time.Second, 5*time.Millisecond)

	clk.Advance(10 * time.Minute)
	moved, err := mgr.MoveSession(ctx, slip.ID, f.Roulette.ID, 5)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		v := s.View()
		return seatOf(v, f.Roulette.ID, 5) == moved.ID && seatOf(v, f.Blackjack.ID, 2) == ""
	}, time.Second, 5*time.Millisecond)

	clk.Advance(10 * time.Minute)
	_, err = mgr.CloseSession(ctx, moved.ID)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		tv, _ := s.View().Table(f.Roulette.ID)
		return tv.OpenSessions == 0
	}, time.Second, 5*time.Millisecond)

	// an event for another casino never touches this floor
	_, err = mgr.EndVisit(ctx, moved.VisitID)
	require.NoError(t, err)
	_, err = mgr.OpenSession(ctx, session.OpenRequest{
		PlayerID: f.Players[0].ID, CasinoID: f.OtherCasino.ID, TableID: f.Elsewhere.ID,
		SeatNumber: 1, AverageBet: decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	_, ok := s.View().Table(f.Elsewhere.ID)
	assert.False(t, ok)
}
