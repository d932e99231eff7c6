package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JonMunkholm/catalogimport/internal/batch"
	"github.com/JonMunkholm/catalogimport/internal/metrics"
)

// HeaderBatchIndex carries an entry's position within its batch.
const HeaderBatchIndex = "x-batch-index"

const defaultConfirmTimeout = 10 * time.Second

// Outcome summarises one Send.
type Outcome int

const (
	Accepted Outcome = iota
	Partial
	Rejected
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Partial:
		return "partial"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result lists batch indices by broker verdict, each in ascending order.
type Result struct {
	Accepted []int
	Failed   []int
}

// Outcome is Accepted when nothing failed and Rejected when nothing was
// accepted. An empty batch is Accepted.
func (r Result) Outcome() Outcome {
	switch {
	case len(r.Failed) == 0:
		return Accepted
	case len(r.Accepted) == 0:
		return Rejected
	default:
		return Partial
	}
}

// FailedEntries returns the entries of b whose index is in r.Failed.
func (r Result) FailedEntries(b batch.Batch) []batch.Entry {
	out := make([]batch.Entry, 0, len(r.Failed))
	for _, e := range b.Entries {
		if slices.Contains(r.Failed, e.Index) {
			out = append(out, e)
		}
	}
	return out
}

// DispatchError reports a transport failure during Send. Failed holds every
// index that was not confirmed.
type DispatchError struct {
	Failed []int
	Err    error
}

func (e *DispatchError) Error() string {
	idx := make([]string, len(e.Failed))
	for i, n := range e.Failed {
		idx[i] = fmt.Sprint(n)
	}
	return fmt.Sprintf("dispatch failed for entries [%s]: %v", strings.Join(idx, ","), e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// confirmer is satisfied by *amqp.DeferredConfirmation.
type confirmer interface {
	WaitContext(ctx context.Context) (bool, error)
}

type publishFunc func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (confirmer, error)

// Dispatcher publishes batches to one queue with publisher confirms. It is
// safe for concurrent Sends on one channel: each Send waits only on the
// deferred confirmations of its own publishes.
type Dispatcher struct {
	queue          string
	confirmTimeout time.Duration
	publish        publishFunc
}

// NewDispatcher puts ch into confirm mode and declares queue.
func NewDispatcher(ch *amqp.Channel, queue string, confirmTimeout time.Duration) (*Dispatcher, error) {
	if err := DeclareQueue(ch, queue); err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}
	publish := func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (confirmer, error) {
		dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, mandatory, immediate, msg)
		if err != nil {
			return nil, err
		}
		if dc == nil {
			return nil, errors.New("channel is not in confirm mode")
		}
		return dc, nil
	}
	return newDispatcher(queue, confirmTimeout, publish), nil
}

func newDispatcher(queue string, confirmTimeout time.Duration, publish publishFunc) *Dispatcher {
	if confirmTimeout <= 0 {
		confirmTimeout = defaultConfirmTimeout
	}
	return &Dispatcher{queue: queue, confirmTimeout: confirmTimeout, publish: publish}
}

type inflight struct {
	index int
	conf  confirmer
}

// Send publishes every entry of b and waits for the broker's verdict on each.
// Nacked entries are listed in Result.Failed with a nil error. A channel
// failure stops publishing; the remaining entries fail and a *DispatchError
// is returned alongside the Result. Send never retries.
func (d *Dispatcher) Send(ctx context.Context, b batch.Batch) (Result, error) {
	var res Result
	if b.Empty() {
		return res, nil
	}

	var transportErr error
	pending := make([]inflight, 0, b.Len())
	for i, e := range b.Entries {
		body, err := json.Marshal(e.Record)
		if err != nil {
			res.Failed = append(res.Failed, e.Index)
			continue
		}
		conf, err := d.publish(ctx, "", d.queue, false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.Record.ID,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{HeaderBatchIndex: int32(e.Index)},
			Body:         body,
		})
		if err != nil {
			transportErr = err
			for _, rest := range b.Entries[i:] {
				res.Failed = append(res.Failed, rest.Index)
			}
			break
		}
		pending = append(pending, inflight{index: e.Index, conf: conf})
	}

	waitCtx, cancel := context.WithTimeout(ctx, d.confirmTimeout)
	defer cancel()
	for _, p := range pending {
		ack, err := p.conf.WaitContext(waitCtx)
		switch {
		case err != nil:
			if transportErr == nil {
				transportErr = fmt.Errorf("await confirm: %w", err)
			}
			res.Failed = append(res.Failed, p.index)
		case ack:
			res.Accepted = append(res.Accepted, p.index)
		default:
			res.Failed = append(res.Failed, p.index)
		}
	}
	slices.Sort(res.Failed)

	metrics.BatchesSent.WithLabelValues(res.Outcome().String()).Inc()
	metrics.EntriesFailed.Add(float64(len(res.Failed)))

	if transportErr != nil {
		return res, &DispatchError{Failed: res.Failed, Err: transportErr}
	}
	return res, nil
}
