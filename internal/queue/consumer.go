package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrDeliveriesClosed is returned by Run when the broker closes the
// delivery channel.
var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Handler processes one delivery. A nil return acks it. A non-nil return
// nacks with requeue so the broker redelivers; handlers dispose of records
// they gave up on themselves and return nil.
type Handler func(ctx context.Context, d amqp.Delivery) error

// Consumer reads a queue with manual acknowledgement, one delivery at a time.
type Consumer struct {
	ch       *amqp.Channel
	queue    string
	tag      string
	prefetch int
	logger   *slog.Logger
}

// NewConsumer declares queue and limits unacked deliveries to prefetch.
func NewConsumer(ch *amqp.Channel, queue, tag string, prefetch int, logger *slog.Logger) (*Consumer, error) {
	if err := DeclareQueue(ch, queue); err != nil {
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set prefetch: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{ch: ch, queue: queue, tag: tag, prefetch: prefetch, logger: logger}, nil
}

// Run consumes until ctx is cancelled or the channel closes.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	msgs, err := c.ch.ConsumeWithContext(ctx, c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.logger.Info("consuming", "queue", c.queue, "prefetch", c.prefetch)
	return serve(ctx, msgs, h, c.logger)
}

func serve(ctx context.Context, msgs <-chan amqp.Delivery, h Handler, logger *slog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			dispose(ctx, d, h, logger)
		}
	}
}

func dispose(ctx context.Context, d amqp.Delivery, h Handler, logger *slog.Logger) {
	if err := h(ctx, d); err != nil {
		logger.Warn("delivery requeued", "message_id", d.MessageId, "error", err)
		if nerr := d.Nack(false, true); nerr != nil {
			logger.Error("nack failed", "message_id", d.MessageId, "error", nerr)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		logger.Error("ack failed", "message_id", d.MessageId, "error", err)
	}
}
