package floor

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/casino-floor/internal/clock"
	"github.com/iliyamo/casino-floor/internal/realtime"
)

// Registry shares one running Synchronizer per casino inside a process.
type Registry struct {
	ctx    context.Context
	cancel context.CancelFunc
	source Source
	sub    realtime.Subscriber
	clock  clock.Clock
	opts   Options
	log    logrus.FieldLogger

	mu    sync.Mutex
	syncs map[string]*Synchronizer
	wg    sync.WaitGroup
}

// NewRegistry returns a Registry whose synchronizers live until ctx is
// cancelled or Close is called.
func NewRegistry(ctx context.Context, source Source, sub realtime.Subscriber, clk clock.Clock, opts Options, log logrus.FieldLogger) *Registry {
	ctx, cancel := context.WithCancel(ctx)
	return &Registry{
		ctx:    ctx,
		cancel: cancel,
		source: source,
		sub:    sub,
		clock:  clk,
		opts:   opts,
		log:    log,
		syncs:  make(map[string]*Synchronizer),
	}
}

// Get returns the casino's synchronizer, starting it on first use.
func (r *Registry) Get(casinoID string) *Synchronizer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.syncs[casinoID]; ok {
		return s
	}
	s := New(casinoID, r.source, r.sub, r.clock, r.opts, r.log)
	r.syncs[casinoID] = s
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := s.Run(r.ctx); err != nil {
			r.log.WithError(err).WithField("casino_id", casinoID).Error("floor synchronizer stopped")
		}
		r.mu.Lock()
		if r.syncs[casinoID] == s {
			delete(r.syncs, casinoID)
		}
		r.mu.Unlock()
	}()
	return s
}

// Len returns the number of running synchronizers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.syncs)
}

// Close stops every synchronizer and waits for them to exit.
func (r *Registry) Close() {
	r.cancel()
	r.wg.Wait()
}
