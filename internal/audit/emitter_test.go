package audit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-core/internal/audit/domain"
	"identity-core/internal/audit/repository"
)

// fakePublisher records delivered events. fail decides per event whether the call fails; gate,
// when set, blocks every call until it is closed.
type fakePublisher struct {
	mu        sync.Mutex
	delivered []domain.Event
	calls     int
	fail      func(ev domain.Event, call int) bool
	gate      chan struct{}
	entered   chan struct{}
	closed    bool
}

func (p *fakePublisher) Publish(ctx context.Context, ev domain.Event) error {
	if p.entered != nil {
		select {
		case p.entered <- struct{}{}:
		default:
		}
	}
	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.fail != nil && p.fail(ev, p.calls) {
		return fmt.Errorf("broker unavailable")
	}
	p.delivered = append(p.delivered, ev)
	return nil
}

func (p *fakePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePublisher) ids() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.delivered))
	for _, ev := range p.delivered {
		out = append(out, ev.ID)
	}
	return out
}

func (p *fakePublisher) setFail(f func(ev domain.Event, call int) bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = f
}

func fastConfig() Config {
	return Config{Workers: 4, QueueSize: 64, MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func pendingIDs(t *testing.T, outbox repository.Outbox) []string {
	t.Helper()
	recs, err := outbox.Pending(context.Background(), 100)
	require.NoError(t, err)
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Event.ID)
	}
	return out
}

func closeEmitter(t *testing.T, e *Emitter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Close(ctx))
}

func TestEmitter_PreservesPerPrincipalOrder(t *testing.T) {
	pub := &fakePublisher{}
	outbox := repository.NewMemoryOutbox()
	cfg := fastConfig()
	cfg.QueueSize = 256
	e := NewEmitter(pub, "fake", outbox, nil, nil, cfg)

	principals := []string{"alice", "bob", "carol", "dave", ""}
	for i := 0; i < 50; i++ {
		for _, p := range principals {
			e.Publish(context.Background(), domain.Event{
				ID:          fmt.Sprintf("%s-%d", p, i),
				Type:        domain.TypeLoginFailed,
				PrincipalID: p,
				Outcome:     domain.OutcomeFailure,
				Attributes:  map[string]string{"n": strconv.Itoa(i)},
			})
		}
	}
	closeEmitter(t, e)

	require.Len(t, pub.delivered, 250)
	assert.Equal(t, 0, outbox.Len())
	last := map[string]int{}
	for _, ev := range pub.delivered {
		n, _ := strconv.Atoi(ev.Attributes["n"])
		prev, seen := last[ev.OrderingKey()]
		if seen {
			assert.Greater(t, n, prev, "principal %q out of order", ev.OrderingKey())
		}
		last[ev.OrderingKey()] = n
	}
	assert.True(t, pub.closed)
}

func TestEmitter_FillsIDAndTimestamp(t *testing.T) {
	pub := &fakePublisher{}
	e := NewEmitter(pub, "fake", nil, nil, nil, fastConfig())
	e.Publish(context.Background(), domain.Event{Type: domain.TypeLogout, PrincipalID: "alice", Outcome: domain.OutcomeSuccess})
	closeEmitter(t, e)

	require.Len(t, pub.delivered, 1)
	assert.NotEmpty(t, pub.delivered[0].ID)
	assert.False(t, pub.delivered[0].OccurredAt.IsZero())
}

func TestEmitter_RetriesTransientFailure(t *testing.T) {
	pub := &fakePublisher{fail: func(_ domain.Event, call int) bool { return call <= 2 }}
	outbox := repository.NewMemoryOutbox()
	e := NewEmitter(pub, "fake", outbox, nil, nil, fastConfig())
	e.Publish(context.Background(), domain.Event{ID: "e1", Type: domain.TypeLoginSucceeded, PrincipalID: "alice"})
	closeEmitter(t, e)

	assert.Equal(t, []string{"e1"}, pub.ids())
	assert.Equal(t, 0, outbox.Len())
}

func TestEmitter_SpillsAfterRetriesAndHoldsPrincipal(t *testing.T) {
	pub := &fakePublisher{fail: func(ev domain.Event, _ int) bool { return ev.PrincipalID == "alice" }}
	outbox := repository.NewMemoryOutbox()
	e := NewEmitter(pub, "fake", outbox, nil, nil, fastConfig())

	e.Publish(context.Background(), domain.Event{ID: "a1", Type: domain.TypeLoginFailed, PrincipalID: "alice"})
	require.Eventually(t, func() bool { return outbox.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	pub.setFail(nil)
	e.Publish(context.Background(), domain.Event{ID: "a2", Type: domain.TypeLoginSucceeded, PrincipalID: "alice"})
	e.Publish(context.Background(), domain.Event{ID: "b1", Type: domain.TypeLoginSucceeded, PrincipalID: "bob"})
	closeEmitter(t, e)

	assert.Equal(t, []string{"b1"}, pub.ids())
	assert.Equal(t, []string{"a1", "a2"}, pendingIDs(t, outbox))
}

// fakeClock is a settable clock for hold windows.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestEmitter_ExpiredHoldWaitsForOutboxDrain(t *testing.T) {
	pub := &fakePublisher{fail: func(domain.Event, int) bool { return true }}
	outbox := repository.NewMemoryOutbox()
	cfg := fastConfig()
	cfg.SpillHold = time.Minute
	e := NewEmitter(pub, "fake", outbox, nil, nil, cfg)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	e.now = clock.Now

	e.Publish(context.Background(), domain.Event{ID: "a1", Type: domain.TypeLoginFailed, PrincipalID: "alice"})
	require.Eventually(t, func() bool { return outbox.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	pub.setFail(nil)
	clock.Advance(2 * time.Minute)
	e.Publish(context.Background(), domain.Event{ID: "a2", Type: domain.TypeLoginSucceeded, PrincipalID: "alice"})
	require.Eventually(t, func() bool { return outbox.Len() == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, pub.ids(), "a2 must not overtake a1 on the broker")

	n, err := NewRelay(outbox, pub, nil, 0).RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	clock.Advance(2 * time.Minute)
	e.Publish(context.Background(), domain.Event{ID: "a3", Type: domain.TypeLogout, PrincipalID: "alice"})
	closeEmitter(t, e)

	assert.Equal(t, []string{"a1", "a2", "a3"}, pub.ids())
	assert.Equal(t, 3, outbox.Len())
}

// countingOutbox counts HasPending lookups.
type countingOutbox struct {
	*repository.MemoryOutbox
	lookups atomic.Int32
}

func (o *countingOutbox) HasPending(ctx context.Context, principalID string) (bool, error) {
	o.lookups.Add(1)
	return o.MemoryOutbox.HasPending(ctx, principalID)
}

func TestEmitter_OrderingSpillRenewsHold(t *testing.T) {
	pub := &fakePublisher{fail: func(domain.Event, int) bool { return true }}
	outbox := &countingOutbox{MemoryOutbox: repository.NewMemoryOutbox()}
	cfg := fastConfig()
	cfg.SpillHold = time.Minute
	e := NewEmitter(pub, "fake", outbox, nil, nil, cfg)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	e.now = clock.Now

	e.Publish(context.Background(), domain.Event{ID: "a1", PrincipalID: "alice"})
	require.Eventually(t, func() bool { return outbox.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	pub.setFail(nil)
	clock.Advance(50 * time.Second)
	e.Publish(context.Background(), domain.Event{ID: "a2", PrincipalID: "alice"})
	require.Eventually(t, func() bool { return outbox.Len() == 2 }, 2*time.Second, 5*time.Millisecond)

	// Past a1's window but inside the one a2 renewed.
	clock.Advance(30 * time.Second)
	e.Publish(context.Background(), domain.Event{ID: "a3", PrincipalID: "alice"})
	closeEmitter(t, e)

	assert.Empty(t, pub.ids())
	assert.Equal(t, []string{"a1", "a2", "a3"}, pendingIDs(t, outbox))
	assert.Zero(t, outbox.lookups.Load())
}

func TestEmitter_OutboxCheckFailureKeepsHold(t *testing.T) {
	pub := &fakePublisher{fail: func(domain.Event, int) bool { return true }}
	outbox := repository.NewMemoryOutbox()
	cfg := fastConfig()
	cfg.SpillHold = time.Minute
	e := NewEmitter(pub, "fake", outbox, nil, nil, cfg)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	e.now = clock.Now

	e.Publish(context.Background(), domain.Event{ID: "a1", PrincipalID: "alice"})
	require.Eventually(t, func() bool { return outbox.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	pub.setFail(nil)
	outbox.Err = errors.New("outbox down")
	clock.Advance(2 * time.Minute)
	e.Publish(context.Background(), domain.Event{ID: "a2", PrincipalID: "alice"})
	e.Publish(context.Background(), domain.Event{ID: "b1", PrincipalID: "bob"})
	closeEmitter(t, e)

	assert.Equal(t, []string{"b1"}, pub.ids())
}

func TestEmitter_QueueFullDoesNotBlock(t *testing.T) {
	pub := &fakePublisher{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	outbox := repository.NewMemoryOutbox()
	e := NewEmitter(pub, "fake", outbox, nil, nil, Config{Workers: 1, QueueSize: 1, MaxRetries: 1, InitialBackoff: time.Millisecond})

	e.Publish(context.Background(), domain.Event{ID: "e1", PrincipalID: "alice"})
	<-pub.entered
	e.Publish(context.Background(), domain.Event{ID: "e2", PrincipalID: "alice"})

	returned := make(chan struct{})
	go func() {
		e.Publish(context.Background(), domain.Event{ID: "e3", PrincipalID: "alice"})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full queue")
	}
	require.Eventually(t, func() bool { return outbox.Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	close(pub.gate)
	e.Publish(context.Background(), domain.Event{ID: "e4", PrincipalID: "alice"})
	closeEmitter(t, e)

	assert.Equal(t, []string{"e1", "e2"}, pub.ids())
	assert.Equal(t, []string{"e3", "e4"}, pendingIDs(t, outbox))
}

func TestEmitter_PublishAfterCloseIsDropped(t *testing.T) {
	pub := &fakePublisher{}
	e := NewEmitter(pub, "fake", nil, nil, nil, fastConfig())
	closeEmitter(t, e)
	e.Publish(context.Background(), domain.Event{ID: "late", PrincipalID: "alice"})
	assert.Empty(t, pub.ids())
	assert.NoError(t, e.Close(context.Background()))
}

func TestEmitter_CloseDeadlineSpillsInFlight(t *testing.T) {
	pub := &fakePublisher{gate: make(chan struct{}), entered: make(chan struct{}, 1)}
	outbox := repository.NewMemoryOutbox()
	e := NewEmitter(pub, "fake", outbox, nil, nil, Config{Workers: 1, QueueSize: 8})

	e.Publish(context.Background(), domain.Event{ID: "e1", PrincipalID: "alice"})
	<-pub.entered
	e.Publish(context.Background(), domain.Event{ID: "e2", PrincipalID: "alice"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, e.Close(ctx), context.DeadlineExceeded)
	assert.Empty(t, pub.ids())
	assert.Equal(t, []string{"e1", "e2"}, pendingIDs(t, outbox))
}
