package queue

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"strconv"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JonMunkholm/catalogimport/internal/batch"
	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

type fakeConfirm struct {
	ack bool
	err error
}

func (f fakeConfirm) WaitContext(context.Context) (bool, error) { return f.ack, f.err }

// fakeBroker records publishes and answers each with the verdict at the same
// position in verdicts (ack when out of range). failAt makes the n-th publish
// itself fail.
type fakeBroker struct {
	published []amqp.Publishing
	keys      []string
	verdicts  []fakeConfirm
	failAt    int
}

func (f *fakeBroker) publish(_ context.Context, _, key string, _, _ bool, msg amqp.Publishing) (confirmer, error) {
	n := len(f.published)
	if f.failAt > 0 && n+1 == f.failAt {
		return nil, amqp.ErrClosed
	}
	f.published = append(f.published, msg)
	f.keys = append(f.keys, key)
	if n < len(f.verdicts) {
		return f.verdicts[n], nil
	}
	return fakeConfirm{ack: true}, nil
}

func makeBatch(n int) batch.Batch {
	acc := batch.NewAccumulator(n)
	var b batch.Batch
	for i := 0; i < n; i++ {
		b, _ = acc.Push(catalog.Record{ID: "p" + strconv.Itoa(i), Title: "T", Price: 1, Count: i})
	}
	return b
}

func TestSend_AllAccepted(t *testing.T) {
	fb := &fakeBroker{}
	d := newDispatcher("catalog-items", 0, fb.publish)

	res, err := d.Send(context.Background(), makeBatch(5))
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if res.Outcome() != Accepted {
		t.Errorf("Outcome() = %v, want accepted", res.Outcome())
	}
	if !slices.Equal(res.Accepted, []int{0, 1, 2, 3, 4}) {
		t.Errorf("Accepted = %v", res.Accepted)
	}
	if len(fb.published) != 5 {
		t.Fatalf("published %d messages", len(fb.published))
	}

	for i, msg := range fb.published {
		if fb.keys[i] != "catalog-items" {
			t.Errorf("routing key = %q", fb.keys[i])
		}
		if got := msg.Headers[HeaderBatchIndex]; got != int32(i) {
			t.Errorf("msg %d batch index header = %v", i, got)
		}
		var rec catalog.Record
		if err := json.Unmarshal(msg.Body, &rec); err != nil {
			t.Fatal(err)
		}
		if rec.ID != msg.MessageId || rec.Count != i {
			t.Errorf("msg %d body = %+v, MessageId = %q", i, rec, msg.MessageId)
		}
		if msg.DeliveryMode != amqp.Persistent {
			t.Errorf("msg %d not persistent", i)
		}
	}
}

func TestSend_PartialOnNack(t *testing.T) {
	fb := &fakeBroker{verdicts: []fakeConfirm{{ack: true}, {ack: false}, {ack: true}, {ack: false}, {ack: true}}}
	d := newDispatcher("q", 0, fb.publish)

	b := makeBatch(5)
	res, err := d.Send(context.Background(), b)
	if err != nil {
		t.Fatalf("nacks are not transport errors, got %v", err)
	}
	if res.Outcome() != Partial {
		t.Errorf("Outcome() = %v, want partial", res.Outcome())
	}
	if !slices.Equal(res.Failed, []int{1, 3}) || !slices.Equal(res.Accepted, []int{0, 2, 4}) {
		t.Errorf("Accepted = %v, Failed = %v", res.Accepted, res.Failed)
	}

	failed := res.FailedEntries(b)
	if len(failed) != 2 || failed[0].Record.ID != "p1" || failed[1].Record.ID != "p3" {
		t.Errorf("FailedEntries() = %+v", failed)
	}
}

func TestSend_TransportFailure(t *testing.T) {
	tests := []struct {
		name         string
		failAt       int
		wantAccepted []int
		wantOutcome  Outcome
	}{
		{"channel closed immediately", 1, nil, Rejected},
		{"channel closed midway", 3, []int{0, 1}, Partial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBroker{failAt: tt.failAt}
			d := newDispatcher("q", 0, fb.publish)

			res, err := d.Send(context.Background(), makeBatch(5))
			var de *DispatchError
			if !errors.As(err, &de) {
				t.Fatalf("error = %v, want *DispatchError", err)
			}
			if !errors.Is(err, amqp.ErrClosed) {
				t.Errorf("error does not wrap amqp.ErrClosed: %v", err)
			}
			if res.Outcome() != tt.wantOutcome {
				t.Errorf("Outcome() = %v, want %v", res.Outcome(), tt.wantOutcome)
			}
			if !slices.Equal(res.Accepted, tt.wantAccepted) {
				t.Errorf("Accepted = %v, want %v", res.Accepted, tt.wantAccepted)
			}
			if len(res.Accepted)+len(res.Failed) != 5 {
				t.Errorf("indices lost: %v + %v", res.Accepted, res.Failed)
			}
			if !slices.Equal(de.Failed, res.Failed) {
				t.Errorf("DispatchError.Failed = %v, want %v", de.Failed, res.Failed)
			}
		})
	}
}

func TestSend_ConfirmWaitError(t *testing.T) {
	fb := &fakeBroker{verdicts: []fakeConfirm{{ack: true}, {err: context.DeadlineExceeded}}}
	d := newDispatcher("q", 0, fb.publish)

	res, err := d.Send(context.Background(), makeBatch(2))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want deadline exceeded", err)
	}
	if !slices.Equal(res.Failed, []int{1}) {
		t.Errorf("Failed = %v, want [1]", res.Failed)
	}
}

func TestSend_EmptyBatch(t *testing.T) {
	fb := &fakeBroker{}
	d := newDispatcher("q", 0, fb.publish)

	res, err := d.Send(context.Background(), batch.Batch{})
	if err != nil || res.Outcome() != Accepted || len(fb.published) != 0 {
		t.Errorf("Send(empty) = %+v, %v; published %d", res, err, len(fb.published))
	}
}

func TestOutcomeString(t *testing.T) {
	if Accepted.String() != "accepted" || Partial.String() != "partial" || Rejected.String() != "rejected" {
		t.Error("unexpected outcome names")
	}
}

func TestSend_ConcurrentBatchesShareChannel(t *testing.T) {
	var mu sync.Mutex
	published := 0
	publish := func(_ context.Context, _, _ string, _, _ bool, _ amqp.Publishing) (confirmer, error) {
		mu.Lock()
		defer mu.Unlock()
		published++
		return fakeConfirm{ack: true}, nil
	}
	d := newDispatcher("catalog-items", 0, publish)

	const senders = 8
	var wg sync.WaitGroup
	results := make([]Result, senders)
	for i := range senders {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := d.Send(context.Background(), makeBatch(5))
			if err != nil {
				t.Errorf("Send() error = %v", err)
			}
			results[i] = res
		}()
	}
	wg.Wait()

	if published != senders*5 {
		t.Errorf("published %d, want %d", published, senders*5)
	}
	for i, res := range results {
		if !slices.Equal(res.Accepted, []int{0, 1, 2, 3, 4}) {
			t.Errorf("sender %d Accepted = %v", i, res.Accepted)
		}
	}
}
