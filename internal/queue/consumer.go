package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

// LedgerFile is the file, inside the ledger directory, that receives one
// line per point award.
const LedgerFile = "points.log"

// Consumer reads PointsAwardedEvents from the points queue and appends
// them to the raw point ledger file.
type Consumer struct {
	URL    string
	LogDir string
	Log    logrus.FieldLogger
}

// Run connects to RabbitMQ, declares the points queue (durable), and
// consumes messages until ctx is cancelled. Connection failures are
// retried with exponential backoff; a message that cannot be handled is
// rejected without requeue so the consumer keeps running.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.WithError(err).Warnf("points-consumer: failed to dial broker; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Log.WithError(err).Warn("points-consumer: consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Log.WithError(err).Warn("points-consumer: set QoS failed")
	}

	if _, err := ch.QueueDeclare(PointsQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(PointsQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.HandleMessage(d.Body); err != nil {
				c.Log.WithError(err).Error("points-consumer: handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one award and appends it to the ledger file.
func (c *Consumer) HandleMessage(body []byte) error {
	var ev PointsAwardedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.SlipID == "" {
		return errors.New("award without slip_id")
	}
	dir := c.LogDir
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(filepath.Join(dir, LedgerFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(FormatLedgerLine(ev)); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}

// FormatLedgerLine renders one award as a single ledger line.
func FormatLedgerLine(ev PointsAwardedEvent) string {
	return fmt.Sprintf("[%s] Points awarded | slip_id=%s | player_id=%s | visit_id=%s | casino_id=%s | table_id=%s | seat=%d | avg_bet=%s | minutes=%d | points=%d | reason=%s\n",
		ev.AwardedAt, ev.SlipID, ev.PlayerID, ev.VisitID, ev.CasinoID, ev.GamingTableID, ev.SeatNumber,
		ev.AverageBet, ev.ElapsedMinutes, ev.PointsEarned, ev.Reason)
}
