// Package deadletter receives records the pipeline gave up on.
//
// There are two drop points: entries the broker did not confirm during
// dispatch, and records whose commit failed. Both hand the record to a Sink
// and move on; nothing here retries.
package deadletter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/metrics"
)

// Reason names the drop point.
type Reason string

const (
	DispatchFailed Reason = "dispatch_failed"
	CommitFailed   Reason = "commit_failed"
)

// Letter is one dropped record with enough context to replay it by hand.
type Letter struct {
	Reason Reason         `json:"reason"`
	Source string         `json:"source"` // object key or message id
	Record catalog.Record `json:"record"`
	Error  string         `json:"error"`
	At     time.Time      `json:"at"`
}

// New builds a letter stamped with the current time.
func New(reason Reason, source string, rec catalog.Record, err error) Letter {
	l := Letter{Reason: reason, Source: source, Record: rec, At: time.Now().UTC()}
	if err != nil {
		l.Error = err.Error()
	}
	return l
}

// Sink accepts dropped records.
type Sink interface {
	Put(ctx context.Context, l Letter) error
}

// LogSink writes letters to the structured log. It never fails.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Put(ctx context.Context, l Letter) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.DeadLetters.WithLabelValues(string(l.Reason)).Inc()
	logger.WarnContext(ctx, "record dead-lettered",
		"reason", l.Reason,
		"source", l.Source,
		"record_id", l.Record.ID,
		"error", l.Error,
	)
	return nil
}

// publisher is the subset of *amqp.Channel used by QueueSink.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// QueueSink publishes letters as JSON to a durable queue and logs them too.
type QueueSink struct {
	ch    publisher
	queue string
	log   LogSink
}

// NewQueueSink declares queue on ch and returns a sink publishing to it.
func NewQueueSink(ch *amqp.Channel, queue string, logger *slog.Logger) (*QueueSink, error) {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare dead-letter queue %s: %w", queue, err)
	}
	return &QueueSink{ch: ch, queue: queue, log: LogSink{Logger: logger}}, nil
}

func (s *QueueSink) Put(ctx context.Context, l Letter) error {
	_ = s.log.Put(ctx, l)

	body, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("encode dead letter: %w", err)
	}
	err = s.ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    l.Record.ID,
		Timestamp:    l.At,
		Type:         string(l.Reason),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

// ForQueue returns a QueueSink on ch when queue is set, or a LogSink when it
// is empty.
func ForQueue(ch *amqp.Channel, queue string, logger *slog.Logger) (Sink, error) {
	if queue == "" {
		return LogSink{Logger: logger}, nil
	}
	return NewQueueSink(ch, queue, logger)
}
