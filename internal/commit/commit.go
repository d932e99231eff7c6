// Package commit is the single writer of products and stocks.
package commit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/deadletter"
	"github.com/JonMunkholm/catalogimport/internal/metrics"
	"github.com/JonMunkholm/catalogimport/internal/storage/postgres"
)

// Outcome is the result of one commit attempt.
type Outcome int

const (
	Committed Outcome = iota
	DuplicateSkipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "committed"
	case DuplicateSkipped:
		return "duplicate_skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Store writes a product and its stock atomically, returning
// postgres.ErrDuplicate when either key already exists.
type Store interface {
	InsertPair(ctx context.Context, p catalog.Product, s catalog.Stock) error
}

// Notifier is told about every committed record.
type Notifier interface {
	Notify(ctx context.Context, rec catalog.Record)
}

// Coordinator commits records and triggers notification.
type Coordinator struct {
	store    Store
	notifier Notifier
	dead     deadletter.Sink
	logger   *slog.Logger
}

// New returns a Coordinator. notifier may be nil (no fan-out); dead may be
// nil (log only).
func New(store Store, notifier Notifier, dead deadletter.Sink, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if dead == nil {
		dead = deadletter.LogSink{Logger: logger}
	}
	return &Coordinator{store: store, notifier: notifier, dead: dead, logger: logger}
}

// Commit writes rec once. Re-committing an existing id is a no-op that
// reports DuplicateSkipped and does not notify. Other failures are
// dead-lettered and reported as Failed; nothing is retried. The record is
// assumed to be valid.
func (c *Coordinator) Commit(ctx context.Context, rec catalog.Record) Outcome {
	outcome, _ := c.CommitErr(ctx, rec)
	return outcome
}

// CommitErr is Commit that also returns the failure cause, for callers that
// report it (the create endpoint).
func (c *Coordinator) CommitErr(ctx context.Context, rec catalog.Record) (Outcome, error) {
	start := time.Now()
	err := c.store.InsertPair(ctx, rec.Product(), rec.Stock())
	metrics.Since(metrics.CommitDuration, start)

	outcome := Committed
	switch {
	case err == nil:
	case errors.Is(err, postgres.ErrDuplicate):
		outcome = DuplicateSkipped
	default:
		outcome = Failed
	}
	metrics.CommitOutcomes.WithLabelValues(outcome.String()).Inc()

	logger := c.logger.With("record_id", rec.ID)
	switch outcome {
	case Committed:
		logger.InfoContext(ctx, "record committed", "count", rec.Count)
		if c.notifier != nil {
			c.notifier.Notify(ctx, rec)
		}
		return Committed, nil
	case DuplicateSkipped:
		logger.InfoContext(ctx, "duplicate record skipped")
		return DuplicateSkipped, nil
	default:
		logger.ErrorContext(ctx, "commit failed", "error", err)
		if derr := c.dead.Put(ctx, deadletter.New(deadletter.CommitFailed, rec.ID, rec, err)); derr != nil {
			logger.ErrorContext(ctx, "dead-letter failed", "error", derr)
		}
		return Failed, err
	}
}
