package broker

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"

	"identity-core/internal/audit/domain"
)

const loggerName = "identity-core.audit"

// RecordEmitter is the part of otellog.Logger the publisher needs.
type RecordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// LogPublisher writes audit events as OpenTelemetry log records. It is the archive sink used by
// the worker and the fallback sink when no broker is configured.
type LogPublisher struct {
	logger RecordEmitter
}

// NewLogPublisher returns a LogPublisher using provider.
func NewLogPublisher(provider otellog.LoggerProvider) *LogPublisher {
	return &LogPublisher{logger: provider.Logger(loggerName)}
}

// NewLogPublisherWithLogger returns a LogPublisher emitting through l.
func NewLogPublisherWithLogger(l RecordEmitter) *LogPublisher {
	return &LogPublisher{logger: l}
}

// Publish converts ev to a log record and emits it.
func (p *LogPublisher) Publish(ctx context.Context, ev domain.Event) error {
	rec := otellog.Record{}
	rec.SetEventName(string(ev.Type))
	ts := ev.OccurredAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetSeverity(otellog.SeverityInfo)
	if ev.Outcome == domain.OutcomeFailure {
		rec.SetSeverity(otellog.SeverityWarn)
	}
	rec.SetBody(otellog.StringValue(string(ev.Type)))
	rec.AddAttributes(
		otellog.String("event_id", ev.ID),
		otellog.String("event_type", string(ev.Type)),
		otellog.String("outcome", string(ev.Outcome)),
	)
	if ev.PrincipalID != "" {
		rec.AddAttributes(otellog.String("principal_id", ev.PrincipalID))
	}
	if ev.Reason != "" {
		rec.AddAttributes(otellog.String("reason", ev.Reason))
	}
	if ev.SourceIP != "" {
		rec.AddAttributes(otellog.String("source_ip", ev.SourceIP))
	}
	for k, v := range ev.Attributes {
		rec.AddAttributes(otellog.String("attr."+k, v))
	}
	p.logger.Emit(ctx, rec)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
