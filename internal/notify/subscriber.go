package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Subscriber receives the events of one class from the fanout exchange.
// Each class owns a durable queue named <exchange>.<class>; events that do
// not match the class filter are acked and dropped.
type Subscriber struct {
	ch       *amqp.Channel
	exchange string
	class    Class
	logger   *slog.Logger
}

// QueueName is the queue a class consumes.
func QueueName(exchange string, class Class) string {
	return exchange + "." + class.Name
}

// NewSubscriber declares and binds the class queue.
func NewSubscriber(ch *amqp.Channel, exchange string, class Class, logger *slog.Logger) (*Subscriber, error) {
	if err := DeclareExchange(ch, exchange); err != nil {
		return nil, err
	}
	q := QueueName(exchange, class)
	if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue %s: %w", q, err)
	}
	if err := ch.QueueBind(q, "", exchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind %s to %s: %w", q, exchange, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{ch: ch, exchange: exchange, class: class, logger: logger}, nil
}

// Run delivers matching events to handle until ctx ends.
func (s *Subscriber) Run(ctx context.Context, handle func(context.Context, Event)) error {
	q := QueueName(s.exchange, s.class)
	msgs, err := s.ch.ConsumeWithContext(ctx, q, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", q, err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("subscription %s closed", q)
			}
			ev, match, err := Route(s.class.Policy, d)
			switch {
			case err != nil:
				s.logger.Warn("undecodable event dropped", "queue", q, "error", err)
			case match:
				handle(ctx, ev)
			default:
				s.logger.Debug("event filtered", "queue", q, "message_id", d.MessageId)
			}
			if err := d.Ack(false); err != nil {
				s.logger.Error("ack failed", "queue", q, "error", err)
			}
		}
	}
}

// Route decodes d and applies policy. Attributes come from the message
// headers, falling back to the body's attributes.
func Route(policy FilterPolicy, d amqp.Delivery) (Event, bool, error) {
	var ev Event
	if err := json.Unmarshal(d.Body, &ev); err != nil {
		return Event{}, false, fmt.Errorf("decode event: %w", err)
	}
	attrs := make(map[string]float64, len(ev.Attributes)+len(d.Headers))
	for k, v := range ev.Attributes {
		attrs[k] = v
	}
	for k, v := range d.Headers {
		if f, ok := toFloat(v); ok {
			attrs[k] = f
		}
	}
	return ev, policy.Matches(attrs), nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
