// Package audit publishes authentication lifecycle events. Publish never blocks the caller:
// events are queued on a shard chosen by principal id, and one worker per shard hands them to
// the broker in order. Events the broker will not take after bounded retries go to the outbox,
// which the worker process relays later.
package audit

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"identity-core/internal/audit/broker"
	"identity-core/internal/audit/domain"
	"identity-core/internal/audit/repository"
	"identity-core/internal/logging"
	"identity-core/internal/telemetry"
)

const (
	DefaultWorkers    = 8
	DefaultQueueSize  = 1024
	DefaultMaxRetries = 5
	DefaultSpillHold  = 30 * time.Second

	spillTimeout = 5 * time.Second
)

// Spill reasons recorded on the audit.outbox.spilled counter.
const (
	SpillRetriesExhausted = "retries_exhausted"
	SpillQueueFull        = "queue_full"
	SpillOrdering         = "ordering"
	SpillShutdown         = "shutdown"
)

// Config sizes the emitter. Zero values take the defaults.
type Config struct {
	Workers        int
	QueueSize      int
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// SpillHold is how long a principal keeps going to the outbox after one of its events did.
	// When it lapses the outbox is asked whether the principal still has unrelayed events; if so
	// the hold is renewed.
	SpillHold time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Second
	}
	if c.SpillHold <= 0 {
		c.SpillHold = DefaultSpillHold
	}
	return c
}

// Emitter is the asynchronous audit publisher used by the auth orchestrator.
type Emitter struct {
	pub        broker.Publisher
	brokerName string
	outbox     repository.Outbox
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	cfg        Config
	now        func() time.Time

	seq      atomic.Uint64
	mu       sync.RWMutex
	closed   bool
	shards   []chan queued
	overflow chan queued

	holdMu sync.Mutex
	holds  map[string]hold

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type queued struct {
	ev  domain.Event
	seq uint64
}

// hold diverts a principal's events numbered from on or later to the outbox until until.
type hold struct {
	from  uint64
	until time.Time
}

// NewEmitter starts cfg.Workers shard workers publishing through pub. brokerName labels metrics.
// outbox may be nil, in which case undeliverable events are logged and dropped.
func NewEmitter(pub broker.Publisher, brokerName string, outbox repository.Outbox, metrics *telemetry.Metrics, logger *zap.Logger, cfg Config) *Emitter {
	cfg = cfg.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	e := &Emitter{
		pub:        pub,
		brokerName: brokerName,
		outbox:     outbox,
		metrics:    metrics,
		logger:     logging.OrNop(logger),
		cfg:        cfg,
		now:        time.Now,
		shards:     make([]chan queued, cfg.Workers),
		overflow:   make(chan queued, cfg.QueueSize),
		holds:      map[string]hold{},
		ctx:        ctx,
		cancel:     cancel,
	}
	for i := range e.shards {
		e.shards[i] = make(chan queued, cfg.QueueSize)
		e.wg.Add(1)
		go e.work(e.shards[i])
	}
	e.wg.Add(1)
	go e.drainOverflow()
	return e
}

// Publish queues ev and returns immediately. ID and OccurredAt are filled in when empty.
func (e *Emitter) Publish(ctx context.Context, ev domain.Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = e.now().UTC()
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.Warn("audit emitter closed; event dropped",
			zap.String("event_id", ev.ID), zap.String("event_type", string(ev.Type)))
		return
	}
	q := queued{ev: ev, seq: e.seq.Add(1)}
	select {
	case e.shardFor(ev.OrderingKey()) <- q:
		return
	default:
	}
	e.hold(ev.OrderingKey(), q.seq)
	select {
	case e.overflow <- q:
		e.metrics.AuditSpilled(ctx, SpillQueueFull)
	default:
		e.logger.Error("audit queue and overflow full; event dropped",
			zap.String("event_id", ev.ID), zap.String("event_type", string(ev.Type)))
	}
}

// Close stops accepting events and waits for queued ones to be delivered or spilled. When ctx
// ends first, in-flight retries are abandoned and their events go to the outbox.
func (e *Emitter) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, ch := range e.shards {
		close(ch)
	}
	close(e.overflow)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.cancel()
		return e.pub.Close()
	case <-ctx.Done():
		e.cancel()
		<-done
		e.pub.Close()
		return ctx.Err()
	}
}

func (e *Emitter) shardFor(key string) chan queued {
	h := fnv.New32a()
	h.Write([]byte(key))
	return e.shards[h.Sum32()%uint32(len(e.shards))]
}

func (e *Emitter) work(ch <-chan queued) {
	defer e.wg.Done()
	for q := range ch {
		e.deliver(q)
	}
}

func (e *Emitter) drainOverflow() {
	defer e.wg.Done()
	for q := range e.overflow {
		e.spill(q.ev, SpillQueueFull)
	}
}

func (e *Emitter) deliver(q queued) {
	ev := q.ev
	key := ev.OrderingKey()
	if e.held(ev, q.seq) {
		e.hold(key, q.seq)
		e.spill(ev, SpillOrdering)
		return
	}
	if e.ctx.Err() != nil {
		e.hold(key, q.seq)
		e.spill(ev, SpillShutdown)
		return
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.cfg.InitialBackoff
	b.MaxInterval = e.cfg.MaxBackoff
	_, err := backoff.Retry(e.ctx, func() (struct{}, error) {
		err := e.pub.Publish(e.ctx, ev)
		if err != nil {
			e.metrics.AuditPublishFailed(e.ctx, e.brokerName)
		}
		return struct{}{}, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(e.cfg.MaxRetries)+1))
	if err == nil {
		return
	}
	e.logger.Warn("audit publish failed; spilling to outbox",
		zap.String("event_id", ev.ID), zap.String("event_type", string(ev.Type)), zap.Error(err))
	e.hold(key, q.seq)
	reason := SpillRetriesExhausted
	if e.ctx.Err() != nil {
		reason = SpillShutdown
	}
	e.spill(ev, reason)
}

func (e *Emitter) spill(ev domain.Event, reason string) {
	ctx, cancel := context.WithTimeout(context.Background(), spillTimeout)
	defer cancel()
	if e.outbox == nil {
		e.logger.Error("audit event lost: no outbox configured",
			zap.String("event_id", ev.ID), zap.String("event_type", string(ev.Type)), zap.String("reason", reason))
		return
	}
	if err := e.outbox.Append(ctx, ev); err != nil {
		e.logger.Error("audit event lost: outbox append failed",
			zap.String("event_id", ev.ID), zap.String("event_type", string(ev.Type)), zap.Error(err))
		return
	}
	if reason != SpillQueueFull {
		e.metrics.AuditSpilled(ctx, reason)
	}
}

func (e *Emitter) hold(key string, from uint64) {
	e.holdMu.Lock()
	defer e.holdMu.Unlock()
	h, ok := e.holds[key]
	if ok && h.from < from && e.now().Before(h.until) {
		from = h.from
	}
	e.holds[key] = hold{from: from, until: e.now().Add(e.cfg.SpillHold)}
}

// held reports whether ev must follow earlier events of its principal through the outbox.
func (e *Emitter) held(ev domain.Event, seq uint64) bool {
	key := ev.OrderingKey()
	e.holdMu.Lock()
	h, ok := e.holds[key]
	active := ok && e.now().Before(h.until)
	e.holdMu.Unlock()
	if !ok {
		return false
	}
	if active {
		return seq >= h.from
	}
	if e.outboxPending(ev) {
		e.hold(key, h.from)
		return seq >= h.from
	}
	e.holdMu.Lock()
	if cur, ok := e.holds[key]; ok && cur.from == h.from && cur.until.Equal(h.until) {
		delete(e.holds, key)
	}
	e.holdMu.Unlock()
	return false
}

// outboxPending reports whether the outbox still has unrelayed events for ev's principal.
// An outbox error counts as pending.
func (e *Emitter) outboxPending(ev domain.Event) bool {
	if e.outbox == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), spillTimeout)
	defer cancel()
	pending, err := e.outbox.HasPending(ctx, ev.PrincipalID)
	if err != nil {
		e.logger.Warn("audit outbox check failed; keeping principal on the outbox",
			zap.String("event_id", ev.ID), zap.Error(err))
		return true
	}
	return pending
}
