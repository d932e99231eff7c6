// Package worker consumes queued catalog records and commits them.
package worker

import (
	"context"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/commit"
	"github.com/JonMunkholm/catalogimport/internal/metrics"
)

// Committer is satisfied by *commit.Coordinator.
type Committer interface {
	Commit(ctx context.Context, rec catalog.Record) commit.Outcome
}

// Processor handles one queue delivery: decode, validate, commit. The
// coordinator notifies on success and dead-letters on failure, so every
// decided delivery is acked; only a delivery that arrives during shutdown is
// handed back to the broker.
type Processor struct {
	committer Committer
	logger    *slog.Logger
}

// NewProcessor returns a Processor committing through c.
func NewProcessor(c Committer, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{committer: c, logger: logger}
}

// Handle implements queue.Handler.
func (p *Processor) Handle(ctx context.Context, d amqp.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	logger := p.logger.With("message_id", d.MessageId)

	rec, err := catalog.Decode(d.Body)
	if err == nil {
		err = catalog.Validate(rec, true)
	}
	if err != nil {
		metrics.RecordsRejected.WithLabelValues("worker").Inc()
		logger.WarnContext(ctx, "record dropped", "reason", err)
		return nil
	}

	// A commit that has started is allowed to finish during shutdown.
	outcome := p.committer.Commit(context.WithoutCancel(ctx), rec)
	logger.DebugContext(ctx, "delivery processed", "record_id", rec.ID, "outcome", outcome)
	return nil
}
