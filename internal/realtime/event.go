// Package realtime carries row change notifications from the writer to
// every terminal's floor view. Delivery is best effort: a subscriber that
// falls behind loses events and is told so through Subscription.Missed and
// Subscription.Gaps, after which it must re-read the store.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "INSERT"
	OpUpdate Op = "UPDATE"
	OpDelete Op = "DELETE"
)

// Tables that produce change events.
const (
	TableRatingSlip  = "ratingslip"
	TableGamingTable = "gamingtable"
	TableVisit       = "visit"
)

// ChangeEvent is one committed row change. Old and New hold the JSON row
// image before and after the change; Old is empty for inserts and New for
// deletes.
type ChangeEvent struct {
	Table       string          `json:"table"`
	CasinoID    string          `json:"casino_id"`
	Op          Op              `json:"op"`
	Old         json.RawMessage `json:"old,omitempty"`
	New         json.RawMessage `json:"new,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

// NewChangeEvent encodes the row images. A nil image is left empty.
func NewChangeEvent(table, casinoID string, op Op, old, new any, at time.Time) (ChangeEvent, error) {
	e := ChangeEvent{Table: table, CasinoID: casinoID, Op: op, CommittedAt: at.UTC()}
	var err error
	if old != nil {
		if e.Old, err = json.Marshal(old); err != nil {
			return e, fmt.Errorf("encode old %s row: %w", table, err)
		}
	}
	if new != nil {
		if e.New, err = json.Marshal(new); err != nil {
			return e, fmt.Errorf("encode new %s row: %w", table, err)
		}
	}
	return e, nil
}

// Channel is the transport key of the event: floor:<casino_id>:<table>.
func (e ChangeEvent) Channel() string { return Channel(e.CasinoID, e.Table) }

// Channel builds the transport key for a casino and table.
func Channel(casinoID, table string) string {
	return "floor:" + casinoID + ":" + table
}

// Filter selects events by casino and table. Empty fields match anything.
type Filter struct {
	CasinoID string
	Tables   []string
}

// Match reports whether e passes the filter.
func (f Filter) Match(e ChangeEvent) bool {
	if f.CasinoID != "" && f.CasinoID != e.CasinoID {
		return false
	}
	if len(f.Tables) == 0 {
		return true
	}
	for _, t := range f.Tables {
		if t == e.Table {
			return true
		}
	}
	return false
}

// Publisher sends committed changes.
type Publisher interface {
	Publish(ctx context.Context, e ChangeEvent) error
}

// Subscriber opens filtered event streams. The stream ends when ctx is
// cancelled or the subscription is closed.
type Subscriber interface {
	Subscribe(ctx context.Context, f Filter) (*Subscription, error)
}

// Broker is both ends of a transport.
type Broker interface {
	Publisher
	Subscriber
}

// DefaultBuffer is the per-subscription event buffer.
const DefaultBuffer = 256

// Subscription is one consumer's event stream.
type Subscription struct {
	filter Filter
	events chan ChangeEvent
	missed atomic.Bool
	gaps   chan struct{}

	mu     sync.Mutex
	closed bool

	once sync.Once
	stop func()
	done chan struct{}
}

func newSubscription(f Filter, buffer int, stop func()) *Subscription {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Subscription{
		filter: f,
		events: make(chan ChangeEvent, buffer),
		gaps:   make(chan struct{}, 1),
		stop:   stop,
		done:   make(chan struct{}),
	}
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan ChangeEvent { return s.events }

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Missed reports, and resets, whether events were lost since the last
// call.
func (s *Subscription) Missed() bool { return s.missed.Swap(false) }

// Gaps receives a value when events are lost, even if no further event
// arrives. Several losses before a read collapse into one signal.
func (s *Subscription) Gaps() <-chan struct{} { return s.gaps }

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()
		close(s.done)
	})
}

// deliver hands e to the consumer without blocking. A full buffer drops
// the event and flags the gap.
func (s *Subscription) deliver(e ChangeEvent) bool {
	if !s.filter.Match(e) {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.events <- e:
		return true
	default:
		s.markMissed()
		return false
	}
}

func (s *Subscription) markMissed() {
	s.missed.Store(true)
	select {
	case s.gaps <- struct{}{}:
	default:
	}
}

// closeWith ties the subscription lifetime to ctx.
func (s *Subscription) closeWith(ctx context.Context) {
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
}
