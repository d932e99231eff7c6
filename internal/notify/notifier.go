package notify

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

// publisher is the subset of *amqp.Channel the notifier needs.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Notifier publishes events to a fanout exchange.
type Notifier struct {
	ch       publisher
	exchange string
	subject  string
	logger   *slog.Logger
}

// DeclareExchange declares the durable fanout exchange events go to.
func DeclareExchange(ch *amqp.Channel, exchange string) error {
	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// New declares exchange on ch and returns a Notifier publishing to it.
func New(ch *amqp.Channel, exchange, subject string, logger *slog.Logger) (*Notifier, error) {
	if err := DeclareExchange(ch, exchange); err != nil {
		return nil, err
	}
	return newNotifier(ch, exchange, subject, logger), nil
}

func newNotifier(ch publisher, exchange, subject string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{ch: ch, exchange: exchange, subject: subject, logger: logger}
}

// Notify publishes the event for rec. A failure is logged and counted; the
// commit that triggered it stands.
func (n *Notifier) Notify(ctx context.Context, rec catalog.Record) {
	if err := n.Publish(ctx, rec); err != nil {
		metrics.Notifications.WithLabelValues("failed").Inc()
		n.logger.ErrorContext(ctx, "notification failed", "record_id", rec.ID, "error", err)
		return
	}
	metrics.Notifications.WithLabelValues("sent").Inc()
	n.logger.DebugContext(ctx, "notification sent", "record_id", rec.ID, "count", rec.Count)
}

// Publish sends the event and returns any transport error.
func (n *Notifier) Publish(ctx context.Context, rec catalog.Record) error {
	ev := NewEvent(n.subject, rec)
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	err = n.ch.PublishWithContext(ctx, n.exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    rec.ID,
		Timestamp:    time.Now().UTC(),
		Type:         ev.Subject,
		Headers:      amqp.Table{AttrCount: int64(rec.Count)},
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", n.exchange, err)
	}
	return nil
}
