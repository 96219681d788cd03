// Package ratelimit implements fixed-window admission control on a shared Redis so every
// service instance draws from the same budget.
//
// Counter store failures admit the request (fail-open). Locking legitimate users out during a
// cache outage is judged worse than briefly losing volume protection; the credential lockout in
// the store still applies. Each fail-open admission is logged and counted.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"identity-core/internal/logging"
	"identity-core/internal/telemetry"
)

// Action is the class of operation a budget applies to.
type Action string

const (
	ActionLogin     Action = "login"
	ActionRefresh   Action = "refresh"
	ActionMFAVerify Action = "mfa_verify"
)

// Scope says what a budget is keyed by.
type Scope string

const (
	// ScopePrincipal budgets defend one account against credential stuffing.
	ScopePrincipal Scope = "principal"
	// ScopeSource budgets defend against distributed guessing from one address.
	ScopeSource Scope = "source"
)

// Budget is Limit admissions per Window. A zero Limit disables the budget.
type Budget struct {
	Limit  int64
	Window time.Duration
}

// Key identifies one counter.
type Key struct {
	Scope Scope
	ID    string
}

// Principal returns a principal-scoped key.
func Principal(id string) Key { return Key{Scope: ScopePrincipal, ID: id} }

// Source returns a source-address-scoped key.
func Source(addr string) Key { return Key{Scope: ScopeSource, ID: addr} }

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed bool
	// RetryAfter is the remaining window time when denied; always positive then.
	RetryAfter time.Duration
	// Count is the number of admissions seen in the current window, including this one.
	Count int64
	// Denied names the key whose budget refused the request.
	Denied Key
}

// incrScript increments the window counter, starts the window on first use and returns
// {count, pttl}. The PEXPIRE fallback repairs a key that lost its TTL.
var incrScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {n, ttl}
`)

// Limiter admits or denies actions against per-principal and per-source budgets.
type Limiter struct {
	client  redis.Scripter
	budgets map[Action]map[Scope]Budget
	prefix  string
	logger  *zap.Logger
	metrics *telemetry.Metrics
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithBudget sets the budget for an action and scope.
func WithBudget(action Action, scope Scope, b Budget) Option {
	return func(l *Limiter) {
		if l.budgets[action] == nil {
			l.budgets[action] = map[Scope]Budget{}
		}
		l.budgets[action][scope] = b
	}
}

// WithLogger sets the logger used for fail-open warnings.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Limiter) { l.logger = logging.OrNop(logger).Named("ratelimit") }
}

// WithMetrics records denials and fail-open admissions.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(l *Limiter) { l.metrics = m }
}

// WithPrefix overrides the Redis key prefix (default "rate_limit").
func WithPrefix(prefix string) Option {
	return func(l *Limiter) { l.prefix = prefix }
}

// New returns a Limiter backed by client.
func New(client redis.Scripter, opts ...Option) *Limiter {
	l := &Limiter{
		client:  client,
		budgets: map[Action]map[Scope]Budget{},
		prefix:  "rate_limit",
		logger:  zap.NewNop(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Budget returns the configured budget for action and scope.
func (l *Limiter) Budget(action Action, scope Scope) (Budget, bool) {
	b, ok := l.budgets[action][scope]
	return b, ok && b.Limit > 0 && b.Window > 0
}

// Admit consumes one unit of key's budget for action. An unconfigured budget always admits.
// Admit never returns an error: an unreadable counter admits.
func (l *Limiter) Admit(ctx context.Context, key Key, action Action) Decision {
	b, ok := l.Budget(action, key.Scope)
	if !ok || key.ID == "" {
		return Decision{Allowed: true}
	}
	vals, err := incrScript.Run(ctx, l.client, []string{l.redisKey(key, action)}, b.Window.Milliseconds()).Int64Slice()
	if err != nil || len(vals) != 2 {
		l.logger.Warn("rate limit counter unreadable; admitting",
			zap.String("action", string(action)), zap.String("scope", string(key.Scope)), zap.Error(err))
		l.metrics.RateLimitFailOpen(ctx, string(action))
		return Decision{Allowed: true}
	}
	count, ttl := vals[0], time.Duration(vals[1])*time.Millisecond
	if count <= b.Limit {
		return Decision{Allowed: true, Count: count}
	}
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	l.metrics.RateLimitDenied(ctx, string(action), string(key.Scope))
	return Decision{Allowed: false, RetryAfter: ttl, Count: count, Denied: key}
}

// AdmitAll checks every key in order and stops at the first denial. The request is admitted
// only if every budget allows it.
func (l *Limiter) AdmitAll(ctx context.Context, action Action, keys ...Key) Decision {
	last := Decision{Allowed: true}
	for _, k := range keys {
		d := l.Admit(ctx, k, action)
		if !d.Allowed {
			return d
		}
		last = d
	}
	return last
}

func (l *Limiter) redisKey(key Key, action Action) string {
	return l.prefix + ":" + string(action) + ":" + string(key.Scope) + ":" + key.ID
}
