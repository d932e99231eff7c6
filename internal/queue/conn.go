// Package queue moves catalog records between the importer and the worker
// over RabbitMQ: a confirm-mode dispatcher on one side and a manually acked
// consumer on the other.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const dialAttempts = 10

// Dial connects to the broker, retrying with a growing pause while the broker
// is still starting.
func Dial(ctx context.Context, url string) (*amqp.Connection, error) {
	var lastErr error
	for i := 0; i < dialAttempts; i++ {
		conn, err := amqp.Dial(url)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		slog.Warn("broker not ready", "attempt", i+1, "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(1+i) * time.Second):
		}
	}
	return nil, fmt.Errorf("dial broker after %d attempts: %w", dialAttempts, lastErr)
}

// DeclareQueue declares a durable queue.
func DeclareQueue(ch *amqp.Channel, name string) error {
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}
