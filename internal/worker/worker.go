package worker

import (
	"context"
	"time"
	"user_directory/internal/observability"
	"user_directory/internal/queue"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	retryHeader = "x-retry-count"
	maxRetries  = 3
)

func republishWithRetry(ch *amqp.Channel, msg *amqp.Delivery, retryCount int32) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryHeader] = retryCount

	return ch.PublishWithContext(
		ctx,
		"",             // exchange
		msg.RoutingKey, // routing key (queue name)
		false,          // mandatory
		false,          // immediate
		amqp.Publishing{
			ContentType:  msg.ContentType,
			DeliveryMode: amqp.Persistent,
			Type:         msg.Type,
			Body:         msg.Body,
			Headers:      headers,
		},
	)
}

func retryCountOf(headers amqp.Table) int32 {
	if headers == nil {
		return 0
	}
	switch count := headers[retryHeader].(type) {
	case int32:
		return count
	case int64:
		return int32(count)
	case int:
		return int32(count)
	}
	return 0
}

// StartWorker consumes directory events until ctx is done or the channel closes.
func StartWorker(ctx context.Context, conn *amqp.Connection, warmer CacheWarmer, metrics *observability.Metrics, id int) {
	ch, err := queue.CreateChannel(conn)
	if err != nil {
		logrus.WithError(err).Errorf("Worker %d failed to open channel", id)
		return
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		logrus.WithError(err).Errorf("Worker %d failed to set QoS", id)
		return
	}

	msgs, err := ch.ConsumeWithContext(
		ctx,
		queue.EventsQueue,
		"",
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		logrus.WithError(err).Errorf("Worker %d failed to start consuming messages", id)
		return
	}

	logrus.Infof("Worker %d started", id)

	for msg := range msgs {
		metrics.QueueMessagesConsumed.WithLabelValues(queue.EventsQueue).Inc()

		event, err := queue.DecodeEvent(msg.Body)
		if err != nil {
			logrus.WithError(err).Error("invalid event payload")
			metrics.EventsFailedTotal.WithLabelValues("unknown", "decode_error").Inc()
			_ = msg.Nack(false, false)
			continue
		}

		retryCount := retryCountOf(msg.Headers)

		if err := handleEvent(warmer, event, id); err != nil {
			logrus.WithError(err).WithField("event_type", event.Type).Warn("Failed to handle event")

			if retryCount >= maxRetries {
				metrics.EventsFailedTotal.WithLabelValues(string(event.Type), "max_retries").Inc()
				_ = msg.Nack(false, false)
				continue
			}

			logrus.Infof("Worker %d: requeuing event (retry %d/%d)", id, retryCount+1, maxRetries)

			if err := republishWithRetry(ch, &msg, retryCount+1); err != nil {
				logrus.WithError(err).Error("Failed to republish message")
				metrics.EventsFailedTotal.WithLabelValues(string(event.Type), "republish_error").Inc()
				_ = msg.Nack(false, false)
				continue
			}

			metrics.QueueMessagesPublished.WithLabelValues(queue.EventsQueue).Inc()
			_ = msg.Ack(false)
			continue
		}

		_ = msg.Ack(false)
	}

	logrus.Infof("Worker %d stopped", id)
}
