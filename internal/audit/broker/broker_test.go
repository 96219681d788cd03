package broker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	otellog "go.opentelemetry.io/otel/log"
	lognoop "go.opentelemetry.io/otel/log/noop"

	"identity-core/internal/audit/domain"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func event(id, principal string) domain.Event {
	return domain.Event{
		ID:          id,
		Type:        domain.TypeLoginFailed,
		PrincipalID: principal,
		Outcome:     domain.OutcomeFailure,
		Reason:      "invalid_credentials",
		SourceIP:    "10.0.0.1",
		Attributes:  map[string]string{"operation": "login"},
		OccurredAt:  t0,
	}
}

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return assert.AnError
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { w.closed = true; return nil }

func TestKafkaPublisher_KeyedByPrincipal(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w, "identity-audit")

	require.NoError(t, p.Publish(context.Background(), event("e1", "alice")))
	require.NoError(t, p.Publish(context.Background(), event("e2", "")))
	require.Len(t, w.msgs, 2)
	assert.Equal(t, "alice", string(w.msgs[0].Key))
	assert.Equal(t, "_anonymous", string(w.msgs[1].Key))
	assert.Equal(t, "event_id", w.msgs[0].Headers[0].Key)
	assert.Equal(t, "e1", string(w.msgs[0].Headers[0].Value))

	var got domain.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, "alice", got.PrincipalID)
	assert.Equal(t, domain.TypeLoginFailed, got.Type)
	assert.True(t, got.OccurredAt.Equal(t0))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Errors(t *testing.T) {
	_, err := NewKafkaPublisher(nil, "topic")
	assert.Error(t, err)
	_, err = NewKafkaPublisher([]string{"localhost:9092"}, "")
	assert.Error(t, err)

	p := NewKafkaPublisherWithWriter(&fakeWriter{err: assert.AnError}, "identity-audit")
	assert.ErrorIs(t, p.Publish(context.Background(), event("e1", "alice")), assert.AnError)

	var nilPub *KafkaPublisher
	assert.NoError(t, nilPub.Close())
}

type fakeChannel struct {
	exchanges []string
	published []amqp.Publishing
	keys      []string
	err       error
	closed    bool
}

func (c *fakeChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	if c.err != nil {
		return c.err
	}
	c.exchanges = append(c.exchanges, name+":"+kind)
	return nil
}

func (c *fakeChannel) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.keys = append(c.keys, exchange+"/"+key)
	c.published = append(c.published, msg)
	return nil
}

func (c *fakeChannel) Close() error { c.closed = true; return nil }

func TestAMQPPublisher(t *testing.T) {
	ch := &fakeChannel{}
	p, err := NewAMQPPublisher(ch, "identity.audit")
	require.NoError(t, err)
	assert.Equal(t, []string{"identity.audit:topic"}, ch.exchanges)

	require.NoError(t, p.Publish(context.Background(), event("e1", "alice")))
	require.Len(t, ch.published, 1)
	assert.Equal(t, "identity.audit/login_failed", ch.keys[0])
	msg := ch.published[0]
	assert.Equal(t, "e1", msg.MessageId)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "alice", msg.Headers["principal_id"])

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

func TestAMQPPublisher_DeclareFails(t *testing.T) {
	ch := &fakeChannel{err: assert.AnError}
	_, err := NewAMQPPublisher(ch, "identity.audit")
	assert.ErrorIs(t, err, assert.AnError)
	assert.True(t, ch.closed)
}

type recordCapture struct {
	recs []otellog.Record
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) { r.recs = append(r.recs, rec) }

func TestLogPublisher_Mapping(t *testing.T) {
	capture := &recordCapture{}
	p := NewLogPublisherWithLogger(capture)
	require.NoError(t, p.Publish(context.Background(), event("e1", "alice")))
	require.Len(t, capture.recs, 1)

	rec := capture.recs[0]
	assert.Equal(t, "login_failed", rec.EventName())
	assert.Equal(t, otellog.SeverityWarn, rec.Severity())
	assert.True(t, rec.Timestamp().Equal(t0))
	attrs := map[string]string{}
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	assert.Equal(t, map[string]string{
		"event_id":       "e1",
		"event_type":     "login_failed",
		"outcome":        "failure",
		"principal_id":   "alice",
		"reason":         "invalid_credentials",
		"source_ip":      "10.0.0.1",
		"attr.operation": "login",
	}, attrs)
}

func TestLogPublisher_DefaultsTimestamp(t *testing.T) {
	capture := &recordCapture{}
	p := NewLogPublisherWithLogger(capture)
	require.NoError(t, p.Publish(context.Background(), domain.Event{ID: "e1", Type: domain.TypeLogout, Outcome: domain.OutcomeSuccess}))
	rec := capture.recs[0]
	assert.False(t, rec.Timestamp().IsZero())
	assert.Equal(t, otellog.SeverityInfo, rec.Severity())
}

func TestOpen(t *testing.T) {
	p, name, err := Open(Settings{})
	require.NoError(t, err)
	assert.Equal(t, NameNop, name)
	assert.IsType(t, Nop{}, p)

	p, name, err = Open(Settings{LogProvider: lognoop.NewLoggerProvider()})
	require.NoError(t, err)
	assert.Equal(t, NameOTel, name)
	assert.IsType(t, &LogPublisher{}, p)

	p, name, err = Open(Settings{Kind: NameKafka, KafkaBrokers: []string{"localhost:9092"}, KafkaTopic: "identity-audit"})
	require.NoError(t, err)
	assert.Equal(t, NameKafka, name)
	assert.NoError(t, p.Close())

	_, _, err = Open(Settings{Kind: NameKafka})
	assert.Error(t, err)
	_, _, err = Open(Settings{Kind: "nats"})
	assert.Error(t, err)
}
