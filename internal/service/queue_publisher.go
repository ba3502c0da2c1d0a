// Package queue_publisher publishes domain events to RabbitMQ. Errors are
// logged and returned so callers can ignore failures without interrupting
// the main request flow.
package queue_publisher

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	q "github.com/iliyamo/casino-floor/internal/queue"
)

// Publisher sends point awards to the ratingslip.points queue.
type Publisher struct {
	URL string
	Log logrus.FieldLogger
}

// New returns a Publisher for the broker at url.
func New(url string, log logrus.FieldLogger) *Publisher {
	return &Publisher{URL: url, Log: log.WithField("component", "rabbitmq")}
}

// PublishPointsAwarded publishes a PointsAwardedEvent to the
// "ratingslip.points" queue. Each call dials the broker, so the publisher
// holds no connection between closes. Messages are marked as persistent.
func (p *Publisher) PublishPointsAwarded(ctx context.Context, event q.PointsAwardedEvent) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.Log.WithError(err).Warn("rabbitmq: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Log.WithError(err).Warn("rabbitmq: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		q.PointsQueueName, // name
		true,              // durable
		false,             // autoDelete
		false,             // exclusive
		false,             // noWait
		nil,               // args
	); err != nil {
		p.Log.WithError(err).Warn("rabbitmq: queue declare failed")
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.Log.WithError(err).Warn("rabbitmq: marshal event failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		Timestamp:    time.Now().UTC(),
		MessageId:    event.SlipID,
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx,
		"",                // default exchange
		q.PointsQueueName, // routing key = queue name
		false,             // mandatory
		false,             // immediate
		pub,
	); err != nil {
		p.Log.WithError(err).Warn("rabbitmq: publish failed")
		return err
	}

	return nil
}
