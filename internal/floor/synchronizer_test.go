package floor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/casino-floor/internal/clock"
	"github.com/iliyamo/casino-floor/internal/model"
	"github.com/iliyamo/casino-floor/internal/realtime"
	"github.com/iliyamo/casino-floor/internal/seatmap"
)

const casino = "casino-1"

type fakeSource struct {
	mu      sync.Mutex
	tables  []model.GamingTable
	slips   []model.RatingSlip
	err     error
	fetches int
}

func (f *fakeSource) Tables(_ context.Context, casinoID string) ([]model.GamingTable, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.GamingTable(nil), f.tables...), nil
}

func (f *fakeSource) OpenSlips(_ context.Context, casinoID string) ([]model.RatingSlip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]model.RatingSlip(nil), f.slips...), nil
}

func (f *fakeSource) set(fn func(f *fakeSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func table(id, number string, seats int) model.GamingTable {
	return model.GamingTable{
		ID: id, CasinoID: casino, Name: id, TableNumber: number,
		Settings: &model.GameSettings{HouseEdge: 1.5, AverageRoundsPerHour: 60, SeatsAvailable: seats},
	}
}

func slip(id, tableID string, seat int, bet int64, start time.Time) model.RatingSlip {
	return model.RatingSlip{
		ID: id, PlayerID: "p-" + id, VisitID: "v-" + id, GamingTableID: tableID, SeatNumber: seat,
		AverageBet: decimal.NewFromInt(bet), StartTime: start,
		GameSettings: model.GameSettings{HouseEdge: 1.5, AverageRoundsPerHour: 60, SeatsAvailable: 6},
	}
}

type harness struct {
	t      *testing.T
	src    *fakeSource
	hub    *realtime.Hub
	sync   *Synchronizer
	clock  *clock.Mock
	cancel context.CancelFunc
	done   chan error
}

func start(t *testing.T, src *fakeSource) *harness {
	return startWith(t, src, nil, Options{RetryInterval: 20 * time.Millisecond})
}

// startWith runs a synchronizer on sub, or on the harness hub when sub is nil.
func startWith(t *testing.T, src *fakeSource, sub realtime.Subscriber, opts Options) *harness {
	t.Helper()
	log, _ := logtest.NewNullLogger()
	h := &harness{
		t:     t,
		src:   src,
		hub:   realtime.NewHub(64, log),
		clock: clock.NewMock(time.Date(2024, 2, 2, 22, 0, 0, 0, time.UTC)),
		done:  make(chan error, 1),
	}
	if sub == nil {
		sub = h.hub
	}
	h.sync = New(casino, src, sub, h.clock, opts, log)
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.sync.Run(ctx) }()
	t.Cleanup(h.stop)
	select {
	case <-h.sync.Ready():
	case <-time.After(time.Second):
		t.Fatal("synchronizer not ready")
	}
	return h
}

func (h *harness) stop() {
	h.cancel()
	select {
	case err := <-h.done:
		assert.NoError(h.t, err)
	case <-time.After(time.Second):
		h.t.Error("synchronizer did not stop")
	}
}

func (h *harness) publish(table string, op realtime.Op, old, new any) {
	h.t.Helper()
	e, err := realtime.NewChangeEvent(table, casino, op, old, new, h.clock.Now())
	require.NoError(h.t, err)
	require.NoError(h.t, h.hub.Publish(context.Background(), e))
}

func (h *harness) eventually(cond func(v View) bool, msg string) View {
	h.t.Helper()
	var last View
	require.Eventually(h.t, func() bool {
		last = h.sync.View()
		return cond(last)
	}, time.Second, 5*time.Millisecond, msg)
	return last
}

func occupant(v View, tableID string, seat int) *model.RatingSlip {
	tv, ok := v.Table(tableID)
	if !ok {
		return nil
	}
	s, ok := tv.Seats.Seat(seat)
	if !ok {
		return nil
	}
	return s.Slip
}

func TestInitialLoadDerivesSeatMaps(t *testing.T) {
	now := time.Date(2024, 2, 2, 21, 0, 0, 0, time.UTC)
	src := &fakeSource{
		tables: []model.GamingTable{table("t2", "02", 4), table("t1", "01", 6)},
		slips:  []model.RatingSlip{slip("a", "t1", 1, 20, now), slip("b", "t1", 4, 40, now)},
	}
	h := start(t, src)

	v := h.sync.View()
	assert.False(t, v.Stale)
	require.Len(t, v.Tables, 2)
	assert.Equal(t, "t1", v.Tables[0].Table.ID)
	assert.Len(t, v.Tables[0].Seats, 6)
	assert.Equal(t, 2, v.Tables[0].OpenSessions)
	assert.True(t, v.Tables[0].AverageBet.Equal(decimal.NewFromInt(30)))
	assert.True(t, v.Tables[1].AverageBet.IsZero())
	assert.Equal(t, []int{1, 2, 3, 4}, v.Tables[1].Seats.Free())
}

func TestInsertAndCloseMergeWithoutRefetch(t *testing.T) {
	src := &fakeSource{tables: []model.GamingTable{table("t1", "01", 6)}}
	h := start(t, src)
	fetches := src.fetchCount()

	s := slip("a", "t1", 3, 25, h.clock.Now())
	h.publish(realtime.TableRatingSlip, realtime.OpInsert, nil, s)
	h.eventually(func(v View) bool { return occupant(v, "t1", 3) != nil }, "seat 3 occupied")

	closed := s
	end := h.clock.Now()
	points := int64(0)
	closed.EndTime, closed.PointsEarned = &end, &points
	h.publish(realtime.TableRatingSlip, realtime.OpUpdate, s, closed)
	h.eventually(func(v View) bool { return occupant(v, "t1", 3) == nil }, "seat 3 freed")

	// a duplicate insert of the closed slip is ignored
	h.publish(realtime.TableRatingSlip, realtime.OpInsert, nil, s)
	other := slip("b", "t1", 5, 10, h.clock.Now())
	h.publish(realtime.TableRatingSlip, realtime.OpInsert, nil, other)
	v := h.eventually(func(v View) bool { return occupant(v, "t1", 5) != nil }, "seat 5 occupied")
	assert.Nil(t, occupant(v, "t1", 3))
	assert.Equal(t, fetches, src.fetchCount())
}

func TestUpdateOfOpenSlipReplacesIt(t *testing.T) {
	s := slip("a", "t1", 2, 25, time.Date(2024, 2, 2, 21, 0, 0, 0, time.UTC))
	src := &fakeSource{tables: []model.GamingTable{table("t1", "01", 6)}, slips: []model.RatingSlip{s}}
	h := start(t, src)

	edited := s
	edited.AverageBet = decimal.NewFromInt(75)
	h.publish(realtime.TableRatingSlip, realtime.OpUpdate, s, edited)
	h.eventually(func(v View) bool {
		tv, _ := v.Table("t1")
		return tv.AverageBet.Equal(decimal.NewFromInt(75))
	}, "average bet updated")
}

func TestUnknownTableForcesRefetch(t *testing.T) {
	src := &fakeSource{tables: []model.GamingTable{table("t1", "01", 6)}}
	h := start(t, src)
	fetches := src.fetchCount()

	// the store knows a table this view has not loaded yet
	s := slip("a", "t9", 1, 25, h.clock.Now())
	src.set(func(f *fakeSource) {
		f.tables = append(f.tables, table("t9", "09", 6))
		f.slips = append(f.slips, s)
	})
	h.publish(realtime.TableRatingSlip, realtime.OpInsert, nil, s)

	v := h.eventually(func(v View) bool { return occupant(v, "t9", 1) != nil }, "refetched")
	assert.Greater(t, src.fetchCount(), fetches)
	assert.False(t, v.Stale)
}

func TestSeatCollisionForcesRefetch(t *testing.T) {
	a := slip("a", "t1", 1, 25, time.Date(2024, 2, 2, 21, 0, 0, 0, time.UTC))
	src := &fakeSource{tables: []model.GamingTable{table("t1", "01", 6)}, slips: []model.RatingSlip{a}}
	h := start(t, src)
	fetches := src.fetchCount()

	// b claims seat 1; the store says a left and b sits there
	b := slip("b", "t1", 1, 50, h.clock.Now())
	src.set(func(f *fakeSource) { f.slips = []model.RatingSlip{b} })
	h.publish(realtime.TableRatingSlip, realtime.OpInsert, nil, b)

	h.eventually(func(v View) bool {
		s := occupant(v, "t1", 1)
		return s != nil && s.ID == "b"
	}, "refetched seat 1")
	assert.Greater(t, src.fetchCount(), fetches)
}

func TestGamingTableEventAndBadPayloadRefetch(t *testing.T) {
	src := &fakeSource{tables: []model.GamingTable{table("t1", "01", 6)}}
	h := start(t, src)

	src.set(func(f *fakeSource) { f.tables = []model.GamingTable{table("t1", "01", 8)} })
	h.publish(realtime.TableGamingTable, realtime.OpUpdate, nil, map[string]string{"id": "t1"})
	h.eventually(func(v View) bool {
		tv, _ := v.Table("t1")
		return len(tv.Seats) == 8
	}, "seat count reloaded")

	fetches := src.fetchCount()
	require.NoError(t, h.hub.Publish(context.Background(), realtime.ChangeEvent{
		Table: realtime.TableRatingSlip, CasinoID: casino, Op: realtime.OpInsert, New: []byte(`{"id":`),
	}))
	require.Eventually(t, func() bool { return src.fetchCount() > fetches }, time.Second, 5*time.Millisecond)
}

func TestRefetchFailureKeepsLastGoodViewAndRecovers(t *testing.T) {
	s := slip("a", "t1", 2, 25, time.Date(2024, 2, 2, 21, 0, 0, 0, time.UTC))
	src := &fakeSource{tables: []model.GamingTable{table("t1", "01", 6)}, slips: []model.RatingSlip{s}}
	h := start(t, src)

	src.set(func(f *fakeSource) { f.err = errors.New("store unreachable") })
	h.publish(realtime.TableGamingTable, realtime.OpUpdate, nil, map[string]string{"id": "t1"})

	v := h.eventually(func(v View) bool { return v.Stale }, "stale after failed refetch")
	assert.NotNil(t, occupant(v, "t1", 2), "last known seat kept")

	src.set(func(f *fakeSource) { f.err = nil; f.slips = nil })
	v = h.eventually(func(v View) bool { return !v.Stale }, "recovered by retry")
	assert.Nil(t, occupant(v, "t1", 2))
}

func TestResyncWhileEventsArrive(t *testing.T) {
	const seats = 200
	src := &fakeSource{tables: []model.GamingTable{table("t1", "01", seats)}}
	h := start(t, src)
	fetches := src.fetchCount()

	all := make([]model.RatingSlip, 0, seats)
	for i := 1; i <= seats; i++ {
		all = append(all, slip(fmt.Sprintf("s%03d", i), "t1", i, 10, h.clock.Now()))
	}
	src.set(func(f *fakeSource) { f.slips = all })

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < seats; i++ {
			h.sync.Resync()
		}
	}()
	for _, s := range all {
		h.publish(realtime.TableRatingSlip, realtime.OpInsert, nil, s)
	}
	wg.Wait()
	h.sync.Resync()

	h.eventually(func(v View) bool {
		tv, _ := v.Table("t1")
		return tv.OpenSessions == seats
	}, "every seat occupied")
	assert.Greater(t, src.fetchCount(), fetches)
}

func TestPollIntervalRefetchesWithoutEvents(t *testing.T) {
	src := &fakeSource{tables: []model.GamingTable{table("t1", "01", 6)}}
	h := startWith(t, src, nil, Options{RetryInterval: time.Hour, PollInterval: 20 * time.Millisecond})

	src.set(func(f *fakeSource) { f.slips = []model.RatingSlip{slip("a", "t1", 4, 25, h.clock.Now())} })
	v := h.eventually(func(v View) bool { return occupant(v, "t1", 4) != nil }, "picked up by polling")
	assert.False(t, v.Stale)
}

func TestRedisOutageRefetchesOnReconnect(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	log, _ := logtest.NewNullLogger()
	broker := realtime.NewRedisBroker(rdb, 16, log)

	src := &fakeSource{tables: []model.GamingTable{table("t1", "01", 6)}}
	h := startWith(t, src, broker, Options{RetryInterval: time.Hour})
	fetches := src.fetchCount()

	// the commit lands while the transport is down, so its event is lost
	mr.Close()
	src.set(func(f *fakeSource) { f.slips = []model.RatingSlip{slip("a", "t1", 2, 25, h.clock.Now())} })
	require.NoError(t, mr.Restart())

	var v View
	require.Eventually(t, func() bool {
		v = h.sync.View()
		return occupant(v, "t1", 2) != nil
	}, 5*time.Second, 10*time.Millisecond, "seat 2 after reconnect")
	assert.False(t, v.Stale)
	assert.Greater(t, src.fetchCount(), fetches)
}

func TestInitialLoadFailureIsStale(t *testing.T) {
	src := &fakeSource{err: errors.New("down")}
	h := start(t, src)
	assert.True(t, h.sync.View().Stale)
	assert.Empty(t, h.sync.View().Tables)
}

func TestWatchDeliversLatestView(t *testing.T) {
	src := &fakeSource{tables: []model.GamingTable{table("t1", "01", 6)}}
	h := start(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	ch := h.sync.Watch(ctx)
	first := <-ch
	assert.Equal(t, h.sync.View().Version, first.Version)

	for i := 1; i <= 4; i++ {
		h.publish(realtime.TableRatingSlip, realtime.OpInsert, nil, slip(string(rune('a'+i)), "t1", i, 10, h.clock.Now()))
	}
	h.eventually(func(v View) bool {
		tv, _ := v.Table("t1")
		return tv.OpenSessions == 4
	}, "four seated")

	latest := <-ch
	tv, _ := latest.Table("t1")
	assert.Equal(t, 4, tv.OpenSessions)

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestLiveView(t *testing.T) {
	began := time.Date(2024, 2, 2, 21, 0, 0, 0, time.UTC)
	tbl := table("t1", "01", 3)
	s := slip("a", "t1", 2, 25, began)
	s.GameSettings = *tbl.Settings
	seats, err := seatmap.Build(tbl, []model.RatingSlip{s})
	require.NoError(t, err)
	v := View{CasinoID: casino, Tables: []TableView{{Table: tbl, Seats: seats, OpenSessions: 1}}, Version: 7}

	live := v.Live(began.Add(30 * time.Minute))
	assert.Equal(t, uint64(7), live.Version)
	require.Len(t, live.Tables, 1)
	ls := live.Tables[0].Seats
	require.Len(t, ls, 3)
	assert.False(t, ls[0].Occupied)
	assert.True(t, ls[1].Occupied)
	assert.Equal(t, int64(113), ls[1].LivePoints)
	assert.Zero(t, ls[2].LivePoints)
}
