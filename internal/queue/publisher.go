package queue

import (
	"context"
	"user_directory/internal/observability"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type EventPublisher interface {
	Publish(ctx context.Context, event DirectoryEvent) error
}

// RabbitPublisher opens a short-lived channel per event on a shared connection.
type RabbitPublisher struct {
	conn    *amqp.Connection
	queue   string
	metrics *observability.Metrics
}

func NewRabbitPublisher(conn *amqp.Connection, metrics *observability.Metrics) *RabbitPublisher {
	return &RabbitPublisher{
		conn:    conn,
		queue:   EventsQueue,
		metrics: metrics,
	}
}

func (p *RabbitPublisher) Publish(ctx context.Context, event DirectoryEvent) error {
	body, err := event.Encode()
	if err != nil {
		return err
	}

	ch, err := CreateChannel(p.conn)
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.PublishWithContext(
		ctx,
		"",      // exchange
		p.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    event.OccurredAt,
			Type:         string(event.Type),
			Body:         body,
		},
	)
	if err != nil {
		return err
	}

	p.metrics.QueueMessagesPublished.WithLabelValues(p.queue).Inc()
	return nil
}

// NoopPublisher drops events. It is used when RabbitMQ is not configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, event DirectoryEvent) error {
	logrus.WithField("event_type", event.Type).Debug("Event publishing disabled, dropping event")
	return nil
}
