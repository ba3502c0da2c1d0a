// Package floor keeps a terminal's working copy of a casino floor: its
// tables and open rating slips, and the seat maps derived from them.
//
// The copy is a cache, never the system of record. Change events are
// merged directly when they are self-consistent; anything surprising
// (unknown table, seat collision, undecodable payload, lost events) forces
// a full refetch from the store.
package floor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/casino-floor/internal/clock"
	"github.com/iliyamo/casino-floor/internal/model"
	"github.com/iliyamo/casino-floor/internal/realtime"
	"github.com/iliyamo/casino-floor/internal/seatmap"
)

// errRefetch marks an event that cannot be merged.
var errRefetch = errors.New("refetch required")

// Options tunes a Synchronizer.
type Options struct {
	// RetryInterval is how often a stale view retries its refetch.
	RetryInterval time.Duration
	// TombstoneTTL is how long closed slip ids are remembered to discard
	// late inserts.
	TombstoneTTL time.Duration
	// PollInterval, when positive, refetches the floor on a fixed cadence
	// for transports that cannot reach other processes.
	PollInterval time.Duration
}

func (o *Options) defaults() {
	if o.RetryInterval <= 0 {
		o.RetryInterval = 5 * time.Second
	}
	if o.TombstoneTTL <= 0 {
		o.TombstoneTTL = 30 * time.Minute
	}
}

// Synchronizer maintains the floor view of one casino. Run drives it;
// View and Watch may be called from any goroutine.
type Synchronizer struct {
	casinoID string
	source   Source
	sub      realtime.Subscriber
	clock    clock.Clock
	opts     Options
	log      logrus.FieldLogger

	// owned by the Run goroutine
	tables     map[string]model.GamingTable
	slips      map[string]model.RatingSlip
	tombstones map[string]time.Time

	resync chan struct{}

	mu       sync.RWMutex
	view     View
	watchers map[chan View]struct{}
	ready    chan struct{}
	once     sync.Once
}

// New returns a Synchronizer for casinoID. It does nothing until Run.
func New(casinoID string, source Source, sub realtime.Subscriber, clk clock.Clock, opts Options, log logrus.FieldLogger) *Synchronizer {
	opts.defaults()
	if clk == nil {
		clk = clock.New()
	}
	return &Synchronizer{
		casinoID:   casinoID,
		source:     source,
		sub:        sub,
		clock:      clk,
		opts:       opts,
		log:        log.WithFields(logrus.Fields{"component": "floor", "casino_id": casinoID}),
		tables:     make(map[string]model.GamingTable),
		slips:      make(map[string]model.RatingSlip),
		tombstones: make(map[string]time.Time),
		resync:     make(chan struct{}, 1),
		view:       View{CasinoID: casinoID, Tables: []TableView{}, Stale: true},
		watchers:   make(map[chan View]struct{}),
		ready:      make(chan struct{}),
	}
}

// Run subscribes to the casino's ratingslip and gamingtable changes, loads
// the floor and then reconciles until ctx is cancelled. Cancelling ctx
// closes the subscription. Run returns nil on cancellation.
func (s *Synchronizer) Run(ctx context.Context) error {
	sub, err := s.sub.Subscribe(ctx, realtime.Filter{
		CasinoID: s.casinoID,
		Tables:   []string{realtime.TableRatingSlip, realtime.TableGamingTable},
	})
	if err != nil {
		s.markReady()
		return fmt.Errorf("subscribe floor %s: %w", s.casinoID, err)
	}
	defer sub.Close()

	_ = s.refresh(ctx)
	s.markReady()

	retry := time.NewTicker(s.opts.RetryInterval)
	defer retry.Stop()
	var poll <-chan time.Time
	if s.opts.PollInterval > 0 {
		t := time.NewTicker(s.opts.PollInterval)
		defer t.Stop()
		poll = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-retry.C:
			if s.View().Stale {
				_ = s.refresh(ctx)
			}
		case <-poll:
			_ = s.refresh(ctx)
		case <-s.resync:
			_ = s.refresh(ctx)
		case <-sub.Gaps():
			sub.Missed()
			s.log.Warn("change events were lost, refetching")
			_ = s.refresh(ctx)
		case ev, ok := <-sub.Events():
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("floor %s: subscription closed", s.casinoID)
			}
			s.handle(ctx, ev, sub.Missed())
		}
	}
}

// Ready is closed once the first load has been attempted.
func (s *Synchronizer) Ready() <-chan struct{} { return s.ready }

func (s *Synchronizer) markReady() { s.once.Do(func() { close(s.ready) }) }

func (s *Synchronizer) handle(ctx context.Context, ev realtime.ChangeEvent, missed bool) {
	if missed {
		s.log.Warn("change events were lost, refetching")
		_ = s.refresh(ctx)
		return
	}
	if err := s.apply(ev); err != nil {
		if errors.Is(err, seatmap.ErrInconsistent) {
			s.log.WithError(err).Error("floor view inconsistent, refetching")
		} else {
			s.log.WithError(err).WithFields(logrus.Fields{"table": ev.Table, "op": ev.Op}).Info("event not mergeable, refetching")
		}
		_ = s.refresh(ctx)
		return
	}
	if err := s.publishView(false); err != nil {
		s.log.WithError(err).Error("floor view inconsistent, refetching")
		_ = s.refresh(ctx)
	}
}

// apply merges one event into the working copy.
func (s *Synchronizer) apply(ev realtime.ChangeEvent) error {
	switch ev.Table {
	case realtime.TableRatingSlip:
	case realtime.TableGamingTable:
		return fmt.Errorf("%w: table configuration changed", errRefetch)
	default:
		return nil
	}

	var slip model.RatingSlip
	raw := ev.New
	if ev.Op == realtime.OpDelete {
		raw = ev.Old
	}
	if len(raw) == 0 {
		return fmt.Errorf("%w: %s event without row image", errRefetch, ev.Op)
	}
	if err := json.Unmarshal(raw, &slip); err != nil {
		return fmt.Errorf("%w: decode ratingslip: %v", errRefetch, err)
	}
	if slip.ID == "" {
		return fmt.Errorf("%w: ratingslip without id", errRefetch)
	}

	switch ev.Op {
	case realtime.OpDelete:
		s.bury(slip.ID)
		return nil
	case realtime.OpInsert, realtime.OpUpdate:
	default:
		return fmt.Errorf("%w: unknown op %q", errRefetch, ev.Op)
	}

	if !slip.IsOpen() {
		s.bury(slip.ID)
		return nil
	}
	if _, dead := s.tombstones[slip.ID]; dead {
		// late insert or update of a slip already seen closed
		return nil
	}
	table, ok := s.tables[slip.GamingTableID]
	if !ok {
		return fmt.Errorf("%w: slip %s references unknown table %s", seatmap.ErrInconsistent, slip.ID, slip.GamingTableID)
	}
	if !table.ValidSeat(slip.SeatNumber) {
		return fmt.Errorf("%w: slip %s names seat %d of table %s", seatmap.ErrInconsistent, slip.ID, slip.SeatNumber, table.ID)
	}
	for id, other := range s.slips {
		if id != slip.ID && other.GamingTableID == slip.GamingTableID && other.SeatNumber == slip.SeatNumber {
			return fmt.Errorf("%w: seat %d of table %s held by %s and %s", seatmap.ErrInconsistent, slip.SeatNumber, table.ID, id, slip.ID)
		}
	}
	s.slips[slip.ID] = slip
	return nil
}

func (s *Synchronizer) bury(id string) {
	delete(s.slips, id)
	s.tombstones[id] = s.clock.Now()
}

// Resync asks Run to reload the floor from the source. Requests made while
// one is pending are merged. The result arrives through View and Watch.
func (s *Synchronizer) Resync() {
	select {
	case s.resync <- struct{}{}:
	default:
	}
}

// refresh reloads the working copy. On failure the last good view is kept
// and flagged stale.
func (s *Synchronizer) refresh(ctx context.Context) error {
	tables, err := s.source.Tables(ctx, s.casinoID)
	if err == nil {
		var slips []model.RatingSlip
		slips, err = s.source.OpenSlips(ctx, s.casinoID)
		if err == nil {
			s.tables = make(map[string]model.GamingTable, len(tables))
			for _, t := range tables {
				s.tables[t.ID] = t
			}
			s.slips = make(map[string]model.RatingSlip, len(slips))
			for _, sl := range slips {
				if sl.IsOpen() {
					s.slips[sl.ID] = sl
				}
			}
			s.pruneTombstones()
			err = s.publishView(true)
		}
	}
	if err != nil {
		s.log.WithError(err).Warn("floor refetch failed, keeping last known view")
		s.markStale()
		return err
	}
	return nil
}

func (s *Synchronizer) pruneTombstones() {
	cutoff := s.clock.Now().Add(-s.opts.TombstoneTTL)
	for id, at := range s.tombstones {
		if at.Before(cutoff) {
			delete(s.tombstones, id)
		}
	}
}

// derive builds table views from the working copy.
func (s *Synchronizer) derive() ([]TableView, error) {
	byTable := make(map[string][]model.RatingSlip, len(s.tables))
	for _, sl := range s.slips {
		byTable[sl.GamingTableID] = append(byTable[sl.GamingTableID], sl)
	}
	for id := range byTable {
		if _, ok := s.tables[id]; !ok {
			return nil, fmt.Errorf("%w: open slips reference unknown table %s", seatmap.ErrInconsistent, id)
		}
	}

	out := make([]TableView, 0, len(s.tables))
	for _, t := range s.tables {
		sm, err := seatmap.Build(t, byTable[t.ID])
		if err != nil {
			return nil, err
		}
		out = append(out, TableView{
			Table:        t,
			Seats:        sm,
			AverageBet:   sm.AverageBet(),
			OpenSessions: sm.Occupied(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Table, out[j].Table
		if a.TableNumber != b.TableNumber {
			return a.TableNumber < b.TableNumber
		}
		return a.ID < b.ID
	})
	return out, nil
}

// publishView derives and installs a new view and wakes watchers. full is
// true after a successful refetch; merged events keep the stale flag of
// the view they were merged into.
func (s *Synchronizer) publishView(full bool) error {
	tables, err := s.derive()
	if err != nil {
		return err
	}
	s.mu.Lock()
	v := View{
		CasinoID: s.casinoID,
		Tables:   tables,
		Stale:    s.view.Stale,
		SyncedAt: s.view.SyncedAt,
		Version:  s.view.Version + 1,
	}
	if full {
		v.Stale = false
		v.SyncedAt = s.clock.Now()
	}
	s.view = v
	s.notifyLocked(v)
	s.mu.Unlock()
	return nil
}

func (s *Synchronizer) markStale() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.view.Stale && s.view.Version > 0 {
		return
	}
	s.view.Stale = true
	s.view.Version++
	s.notifyLocked(s.view)
}

// notifyLocked hands v to every watcher, replacing any view it has not
// read yet.
func (s *Synchronizer) notifyLocked(v View) {
	for ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- v
	}
}

// View returns the current projection.
func (s *Synchronizer) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.view
}

// Watch delivers the latest view whenever it changes, starting with the
// current one. Slow readers only see the newest view. The channel is
// closed when ctx is cancelled.
func (s *Synchronizer) Watch(ctx context.Context) <-chan View {
	ch := make(chan View, 1)
	s.mu.Lock()
	s.watchers[ch] = struct{}{}
	ch <- s.view
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.watchers, ch)
		close(ch)
		s.mu.Unlock()
	}()
	return ch
}
