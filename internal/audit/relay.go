package audit

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"identity-core/internal/audit/broker"
	"identity-core/internal/audit/repository"
	"identity-core/internal/logging"
)

const DefaultRelayBatch = 100

// Relay republishes outbox records in sequence order. Once a principal's record fails, the rest
// of that principal's records wait for the next pass so the broker never sees them out of order.
type Relay struct {
	outbox repository.Outbox
	pub    broker.Publisher
	logger *zap.Logger
	batch  int
	now    func() time.Time
}

// NewRelay returns a relay moving up to batch records per pass (DefaultRelayBatch when <= 0).
func NewRelay(outbox repository.Outbox, pub broker.Publisher, logger *zap.Logger, batch int) *Relay {
	if batch <= 0 {
		batch = DefaultRelayBatch
	}
	return &Relay{outbox: outbox, pub: pub, logger: logging.OrNop(logger), batch: batch, now: time.Now}
}

// RunOnce performs one pass and returns the number of records published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	recs, err := r.outbox.Pending(ctx, r.batch)
	if err != nil {
		return 0, err
	}
	blocked := map[string]bool{}
	var published []string
	for _, rec := range recs {
		key := rec.Event.OrderingKey()
		if blocked[key] {
			continue
		}
		if err := r.pub.Publish(ctx, rec.Event); err != nil {
			blocked[key] = true
			r.logger.Warn("outbox relay publish failed",
				zap.Int64("seq", rec.Seq), zap.String("event_id", rec.Event.ID), zap.Error(err))
			continue
		}
		published = append(published, rec.Event.ID)
	}
	if len(published) == 0 {
		return 0, nil
	}
	if err := r.outbox.MarkPublished(ctx, published, r.now().UTC()); err != nil {
		return 0, errors.Wrap(err, "mark relayed events")
	}
	return len(published), nil
}

// Run calls RunOnce every interval until ctx is done. A full batch is followed immediately by
// another pass.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n, err := r.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("outbox relay pass failed", zap.Error(err))
		}
		if n > 0 {
			r.logger.Info("outbox relay published events", zap.Int("count", n))
		}
		if err == nil && n == r.batch {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
