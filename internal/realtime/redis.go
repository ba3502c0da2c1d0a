package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// RedisBroker publishes change events over Redis pub/sub so that every
// server process and floorctl watcher sees every commit.
type RedisBroker struct {
	rdb    *redis.Client
	buffer int
	log    logrus.FieldLogger
}

// NewRedisBroker wraps an existing client.
func NewRedisBroker(rdb *redis.Client, buffer int, log logrus.FieldLogger) *RedisBroker {
	return &RedisBroker{rdb: rdb, buffer: buffer, log: log.WithField("component", "realtime.redis")}
}

// Publish sends e on floor:<casino_id>:<table>.
func (b *RedisBroker) Publish(ctx context.Context, e ChangeEvent) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, e.Channel(), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", e.Channel(), err)
	}
	return nil
}

// Subscribe listens on the channels selected by f. With no tables it
// pattern-subscribes to every table of the casino.
func (b *RedisBroker) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	casino := f.CasinoID
	if casino == "" {
		casino = "*"
	}
	var (
		ps   *redis.PubSub
		want = 1
	)
	if len(f.Tables) == 0 || f.CasinoID == "" {
		ps = b.rdb.PSubscribe(ctx, Channel(casino, "*"))
	} else {
		channels := make([]string, 0, len(f.Tables))
		for _, t := range f.Tables {
			channels = append(channels, Channel(f.CasinoID, t))
		}
		ps = b.rdb.Subscribe(ctx, channels...)
		want = len(channels)
	}

	// Wait for the subscription confirmations so that no event published
	// after Subscribe returns is missed.
	for i := 0; i < want; i++ {
		msg, err := ps.Receive(ctx)
		if err != nil {
			_ = ps.Close()
			return nil, fmt.Errorf("redis subscribe: %w", err)
		}
		if _, ok := msg.(*redis.Subscription); !ok {
			_ = ps.Close()
			return nil, fmt.Errorf("redis subscribe: unexpected %T", msg)
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	sub := newSubscription(f, b.buffer, func() {
		cancel()
		_ = ps.Close()
	})
	sub.closeWith(ctx)
	go b.forward(loopCtx, ps, sub)
	return sub, nil
}

// forward moves messages into the subscription. A resubscription after a
// reconnect, or a receive error, means messages may have been lost.
func (b *RedisBroker) forward(ctx context.Context, ps *redis.PubSub, sub *Subscription) {
	defer sub.Close()
	backoff := 100 * time.Millisecond
	for {
		msg, err := ps.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, redis.ErrClosed) {
				return
			}
			sub.markMissed()
			b.log.WithError(err).Warn("redis receive failed, retrying")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 100 * time.Millisecond

		switch m := msg.(type) {
		case *redis.Subscription:
			if m.Kind == "subscribe" || m.Kind == "psubscribe" {
				sub.markMissed()
			}
		case *redis.Message:
			var e ChangeEvent
			if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
				b.log.WithError(err).WithField("channel", m.Channel).Warn("undecodable change event")
				sub.markMissed()
				continue
			}
			if !sub.deliver(e) {
				b.log.WithField("channel", m.Channel).Warn("change event dropped - subscriber buffer full")
			}
		}
	}
}
