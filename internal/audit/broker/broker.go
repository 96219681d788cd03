// Package broker publishes audit events to the message broker collaborator. Every publisher
// preserves per-principal order for events it is handed sequentially.
package broker

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"

	"identity-core/internal/audit/domain"
)

// Publisher delivers one event. Publish must not return before the broker has accepted the
// event, so a nil error means the event is durable at the broker.
type Publisher interface {
	Publish(ctx context.Context, ev domain.Event) error
	Close() error
}

// Name identifiers used for metrics and logs.
const (
	NameKafka = "kafka"
	NameAMQP  = "amqp"
	NameOTel  = "otel"
	NameNop   = "nop"
)

func encode(ev domain.Event) ([]byte, error) {
	b, err := json.Marshal(ev)
	if err != nil {
		return nil, errors.Wrap(err, "marshal audit event")
	}
	return b, nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, domain.Event) error { return nil }
func (Nop) Close() error                                { return nil }
