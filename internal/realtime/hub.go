package realtime

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Hub is an in-process Broker. It serves a single server process when no
// Redis is configured, and tests.
type Hub struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	log    logrus.FieldLogger
}

// NewHub returns an empty hub. buffer <= 0 selects DefaultBuffer.
func NewHub(buffer int, log logrus.FieldLogger) *Hub {
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		log:    log.WithField("component", "realtime.hub"),
	}
}

// Subscribe registers a new subscription.
func (h *Hub) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	var sub *Subscription
	sub = newSubscription(f, h.buffer, func() {
		h.mu.Lock()
		delete(h.subs, sub)
		n := len(h.subs)
		h.mu.Unlock()
		h.log.WithField("subscribers", n).Debug("subscriber removed")
	})
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()
	h.log.WithFields(logrus.Fields{"casino_id": f.CasinoID, "subscribers": n}).Debug("subscriber added")
	sub.closeWith(ctx)
	return sub, nil
}

// Publish fans e out to every matching subscriber without blocking.
func (h *Hub) Publish(_ context.Context, e ChangeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	dropped := 0
	for sub := range h.subs {
		if !sub.deliver(e) {
			dropped++
		}
	}
	if dropped > 0 {
		h.log.WithFields(logrus.Fields{"table": e.Table, "casino_id": e.CasinoID, "dropped": dropped}).
			Warn("change event dropped - subscriber buffer full")
	}
	return nil
}

// SubscriberCount returns the number of live subscriptions.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
