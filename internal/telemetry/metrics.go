// Package telemetry holds the OpenTelemetry instruments shared by the authentication core.
package telemetry

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName scopes every instrument created here.
const MeterName = "identity-core"

// Metrics bundles the counters and histograms recorded by the core. A nil *Metrics records nothing.
type Metrics struct {
	loginOutcomes        metric.Int64Counter
	rateLimitDenials     metric.Int64Counter
	rateLimitFailOpen    metric.Int64Counter
	auditPublishFailures metric.Int64Counter
	auditSpilled         metric.Int64Counter
	rpcDuration          metric.Float64Histogram
}

// NewMetrics creates the instruments on mp. A nil mp uses a no-op provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	m := mp.Meter(MeterName)
	var (
		out Metrics
		err error
	)
	if out.loginOutcomes, err = m.Int64Counter("auth.login.outcomes",
		metric.WithDescription("Login and challenge outcomes by result kind")); err != nil {
		return nil, errors.Wrap(err, "auth.login.outcomes")
	}
	if out.rateLimitDenials, err = m.Int64Counter("ratelimit.denials",
		metric.WithDescription("Admission checks denied by the rate limiter")); err != nil {
		return nil, errors.Wrap(err, "ratelimit.denials")
	}
	if out.rateLimitFailOpen, err = m.Int64Counter("ratelimit.fail_open",
		metric.WithDescription("Admission checks admitted because the counter store was unreadable")); err != nil {
		return nil, errors.Wrap(err, "ratelimit.fail_open")
	}
	if out.auditPublishFailures, err = m.Int64Counter("audit.publish.failures",
		metric.WithDescription("Broker publish attempts that failed")); err != nil {
		return nil, errors.Wrap(err, "audit.publish.failures")
	}
	if out.auditSpilled, err = m.Int64Counter("audit.outbox.spilled",
		metric.WithDescription("Audit events written to the outbox after retries were exhausted")); err != nil {
		return nil, errors.Wrap(err, "audit.outbox.spilled")
	}
	if out.rpcDuration, err = m.Float64Histogram("rpc.server.duration",
		metric.WithDescription("Duration of inbound RPCs"), metric.WithUnit("ms")); err != nil {
		return nil, errors.Wrap(err, "rpc.server.duration")
	}
	return &out, nil
}

// LoginOutcome counts one login or challenge result.
func (m *Metrics) LoginOutcome(ctx context.Context, operation, outcome string) {
	if m == nil {
		return
	}
	m.loginOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	))
}

// RateLimitDenied counts one denied admission.
func (m *Metrics) RateLimitDenied(ctx context.Context, action, scope string) {
	if m == nil {
		return
	}
	m.rateLimitDenials.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("scope", scope),
	))
}

// RateLimitFailOpen counts one admission granted because the counter could not be read.
func (m *Metrics) RateLimitFailOpen(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.rateLimitFailOpen.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

// AuditPublishFailed counts one failed broker publish attempt.
func (m *Metrics) AuditPublishFailed(ctx context.Context, broker string) {
	if m == nil {
		return
	}
	m.auditPublishFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("broker", broker)))
}

// AuditSpilled counts one event handed to the outbox.
func (m *Metrics) AuditSpilled(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.auditSpilled.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RPCDuration records one inbound RPC.
func (m *Metrics) RPCDuration(ctx context.Context, fullMethod, code string, ms float64) {
	if m == nil {
		return
	}
	m.rpcDuration.Record(ctx, ms, metric.WithAttributes(
		attribute.String("rpc.method", fullMethod),
		attribute.String("rpc.grpc.status_code", code),
	))
}
