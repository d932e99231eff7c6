package commit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/deadletter"
	"github.com/JonMunkholm/catalogimport/internal/storage/postgres"
)

// memStore mimics the conditional inserts with two maps.
type memStore struct {
	products map[string]catalog.Product
	stocks   map[string]catalog.Stock
	err      error
}

func newMemStore() *memStore {
	return &memStore{products: map[string]catalog.Product{}, stocks: map[string]catalog.Stock{}}
}

func (m *memStore) InsertPair(_ context.Context, p catalog.Product, s catalog.Stock) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.products[p.ID]; ok {
		return fmt.Errorf("product %s: %w", p.ID, postgres.ErrDuplicate)
	}
	if _, ok := m.stocks[s.ProductID]; ok {
		return fmt.Errorf("stock %s: %w", s.ProductID, postgres.ErrDuplicate)
	}
	m.products[p.ID] = p
	m.stocks[s.ProductID] = s
	return nil
}

type countingNotifier struct{ recs []catalog.Record }

func (n *countingNotifier) Notify(_ context.Context, rec catalog.Record) { n.recs = append(n.recs, rec) }

type captureSink struct{ letters []deadletter.Letter }

func (s *captureSink) Put(_ context.Context, l deadletter.Letter) error {
	s.letters = append(s.letters, l)
	return nil
}

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)) }

func TestCommit_Idempotent(t *testing.T) {
	store := newMemStore()
	notifier := &countingNotifier{}
	c := New(store, notifier, nil, quiet())

	rec := catalog.Record{ID: "id1", Title: "Product1", Description: "Description1", Price: 10, Count: 5}

	if got := c.Commit(context.Background(), rec); got != Committed {
		t.Fatalf("first Commit() = %v, want committed", got)
	}
	if got := c.Commit(context.Background(), rec); got != DuplicateSkipped {
		t.Fatalf("second Commit() = %v, want duplicate_skipped", got)
	}

	if len(store.products) != 1 || len(store.stocks) != 1 {
		t.Errorf("store has %d products, %d stocks; want 1, 1", len(store.products), len(store.stocks))
	}
	if store.stocks["id1"].Count != 5 {
		t.Errorf("stock = %+v", store.stocks["id1"])
	}
	if len(notifier.recs) != 1 {
		t.Errorf("notified %d times, want 1", len(notifier.recs))
	}
}

// A leftover stock row with no product still suppresses the pair; the
// product is not written on its own.
func TestCommit_StockConflictWritesNothing(t *testing.T) {
	store := newMemStore()
	store.stocks["id1"] = catalog.Stock{ProductID: "id1", Count: 1}
	c := New(store, &countingNotifier{}, nil, quiet())

	got := c.Commit(context.Background(), catalog.Record{ID: "id1", Title: "T", Price: 1, Count: 2})
	if got != DuplicateSkipped {
		t.Errorf("Commit() = %v, want duplicate_skipped", got)
	}
	if _, ok := store.products["id1"]; ok {
		t.Error("product written without its stock")
	}
}

func TestCommit_FailureIsDeadLettered(t *testing.T) {
	boom := errors.New("connection refused")
	store := newMemStore()
	store.err = boom
	notifier := &countingNotifier{}
	sink := &captureSink{}
	c := New(store, notifier, sink, quiet())

	rec := catalog.Record{ID: "p1", Title: "T", Price: 1, Count: 1}
	outcome, err := c.CommitErr(context.Background(), rec)
	if outcome != Failed || !errors.Is(err, boom) {
		t.Fatalf("CommitErr() = %v, %v", outcome, err)
	}
	if len(notifier.recs) != 0 {
		t.Error("failed commit must not notify")
	}
	if len(sink.letters) != 1 || sink.letters[0].Reason != deadletter.CommitFailed || sink.letters[0].Record != rec {
		t.Errorf("dead letters = %+v", sink.letters)
	}
}

func TestCommit_NilNotifier(t *testing.T) {
	c := New(newMemStore(), nil, nil, quiet())
	if got := c.Commit(context.Background(), catalog.Record{ID: "a", Title: "T", Price: 1}); got != Committed {
		t.Errorf("Commit() = %v", got)
	}
}

func TestOutcomeString(t *testing.T) {
	for o, want := range map[Outcome]string{Committed: "committed", DuplicateSkipped: "duplicate_skipped", Failed: "failed"} {
		if o.String() != want {
			t.Errorf("%d.String() = %q, want %q", int(o), o.String(), want)
		}
	}
}
