package notification

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/streadway/amqp"
)

// Channel is the subset of *amqp.Channel used by publishers.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueueMailer hands email codes to the mail delivery service through a durable RabbitMQ queue.
type QueueMailer struct {
	ch    Channel
	queue string
}

// NewQueueMailer declares the durable queue and returns a mailer publishing to it.
func NewQueueMailer(ch Channel, queue string) (*QueueMailer, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, errors.Wrapf(err, "declare queue %s", queue)
	}
	return &QueueMailer{ch: ch, queue: queue}, nil
}

// Send publishes msg as a persistent JSON message on the default exchange.
func (m *QueueMailer) Send(_ context.Context, msg OneTimeCode) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal one-time code")
	}
	err = m.ch.Publish("", m.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ChallengeID,
		Body:         body,
	})
	return errors.Wrap(err, "publish one-time code")
}
