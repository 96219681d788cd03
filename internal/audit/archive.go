package audit

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"identity-core/internal/audit/broker"
	"identity-core/internal/audit/domain"
	"identity-core/internal/logging"
)

const archiveWriteTimeout = 10 * time.Second

// Archiver consumes the audit topic and writes every event to a sink, typically the OTel log
// pipeline. Undecodable messages are logged and skipped.
type Archiver struct {
	reader broker.MessageReader
	sink   broker.Publisher
	logger *zap.Logger
}

// NewArchiver returns an archiver reading from reader into sink.
func NewArchiver(reader broker.MessageReader, sink broker.Publisher, logger *zap.Logger) *Archiver {
	return &Archiver{reader: reader, sink: sink, logger: logging.OrNop(logger)}
}

// Run consumes until ctx is done.
func (a *Archiver) Run(ctx context.Context) error {
	for {
		msg, err := a.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.logger.Warn("audit archive read failed", zap.Error(err))
			continue
		}
		var ev domain.Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			a.logger.Warn("audit archive skipped undecodable message",
				zap.Int64("offset", msg.Offset), zap.Int("partition", msg.Partition), zap.Error(err))
			continue
		}
		writeCtx, cancel := context.WithTimeout(ctx, archiveWriteTimeout)
		if err := a.sink.Publish(writeCtx, ev); err != nil {
			a.logger.Warn("audit archive write failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
		cancel()
	}
}
