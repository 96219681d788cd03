package repository

import (
	"context"
	"sync"
	"time"

	"identity-core/internal/audit/domain"
)

// MemoryOutbox is an in-process Outbox for tests and local runs.
type MemoryOutbox struct {
	mu        sync.Mutex
	seq       int64
	records   []Record
	published map[string]time.Time
	// Err, when set, is returned by every method.
	Err error
}

// NewMemoryOutbox returns an empty MemoryOutbox.
func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{published: map[string]time.Time{}}
}

func (o *MemoryOutbox) Append(_ context.Context, ev domain.Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	for _, r := range o.records {
		if r.Event.ID == ev.ID {
			return nil
		}
	}
	o.seq++
	o.records = append(o.records, Record{Seq: o.seq, Event: ev})
	return nil
}

func (o *MemoryOutbox) Pending(_ context.Context, limit int) ([]Record, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return nil, o.Err
	}
	var out []Record
	for _, r := range o.records {
		if _, done := o.published[r.Event.ID]; done {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (o *MemoryOutbox) MarkPublished(_ context.Context, ids []string, now time.Time) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	for _, id := range ids {
		if _, done := o.published[id]; !done {
			o.published[id] = now
		}
	}
	return nil
}

func (o *MemoryOutbox) HasPending(_ context.Context, principalID string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return false, o.Err
	}
	for _, r := range o.records {
		if r.Event.PrincipalID != principalID {
			continue
		}
		if _, done := o.published[r.Event.ID]; !done {
			return true, nil
		}
	}
	return false, nil
}

// Len returns the number of stored records, published or not.
func (o *MemoryOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.records)
}
