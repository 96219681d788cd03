package audit

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-core/internal/audit/domain"
)

type fakeReader struct {
	mu   sync.Mutex
	msgs []kafka.Message
}

func (r *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.msgs) > 0 {
		m := r.msgs[0]
		r.msgs = r.msgs[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) Close() error { return nil }

func TestArchiver_WritesDecodedEvents(t *testing.T) {
	good, err := json.Marshal(domain.Event{ID: "e1", Type: domain.TypeLogout, PrincipalID: "alice", Outcome: domain.OutcomeSuccess})
	require.NoError(t, err)
	reader := &fakeReader{msgs: []kafka.Message{
		{Value: []byte("{not json"), Offset: 1},
		{Value: good, Offset: 2},
	}}
	sink := &fakePublisher{}
	a := NewArchiver(reader, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	require.Eventually(t, func() bool { return len(sink.ids()) == 1 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, []string{"e1"}, sink.ids())
}
