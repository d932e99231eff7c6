package batch

import (
	"strconv"
	"testing"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
)

func records(n int) []catalog.Record {
	out := make([]catalog.Record, n)
	for i := range out {
		out[i] = catalog.Record{ID: "r" + strconv.Itoa(i), Title: "T", Price: 1, Count: i}
	}
	return out
}

func run(size int, recs []catalog.Record) []Batch {
	acc := NewAccumulator(size)
	var out []Batch
	for _, r := range recs {
		if b, ok := acc.Push(r); ok {
			out = append(out, b)
		}
	}
	if b := acc.Flush(); !b.Empty() {
		out = append(out, b)
	}
	return out
}

func TestAccumulator_TwelveRecords(t *testing.T) {
	batches := run(5, records(12))

	want := []int{5, 5, 2}
	if len(batches) != len(want) {
		t.Fatalf("got %d batches, want %d", len(batches), len(want))
	}
	for i, b := range batches {
		if b.Len() != want[i] {
			t.Errorf("batch %d size = %d, want %d", i, b.Len(), want[i])
		}
	}
}

// Every pushed record lands in exactly one batch, in order, and the batch
// count is ceil(M/size).
func TestAccumulator_Completeness(t *testing.T) {
	for _, size := range []int{1, 3, 5} {
		for m := 0; m <= 17; m++ {
			recs := records(m)
			batches := run(size, recs)

			if wantBatches := (m + size - 1) / size; len(batches) != wantBatches {
				t.Errorf("size=%d m=%d: %d batches, want %d", size, m, len(batches), wantBatches)
			}

			var flat []catalog.Record
			for _, b := range batches {
				if b.Len() > size {
					t.Errorf("size=%d m=%d: batch of %d exceeds capacity", size, m, b.Len())
				}
				for i, e := range b.Entries {
					if e.Index != i {
						t.Errorf("entry index = %d, want %d", e.Index, i)
					}
					flat = append(flat, e.Record)
				}
			}
			if len(flat) != m {
				t.Fatalf("size=%d m=%d: %d records out", size, m, len(flat))
			}
			for i := range flat {
				if flat[i] != recs[i] {
					t.Errorf("size=%d m=%d: record %d = %s, want %s", size, m, i, flat[i].ID, recs[i].ID)
				}
			}
		}
	}
}

func TestAccumulator_FlushClears(t *testing.T) {
	acc := NewAccumulator(5)
	acc.Push(catalog.Record{ID: "a"})
	acc.Push(catalog.Record{ID: "b"})

	if got := acc.Flush(); got.Len() != 2 {
		t.Fatalf("Flush() len = %d, want 2", got.Len())
	}
	if acc.Pending() != 0 {
		t.Errorf("Pending() = %d after flush", acc.Pending())
	}
	if got := acc.Flush(); !got.Empty() {
		t.Errorf("second Flush() len = %d, want 0", got.Len())
	}
}

// An emitted batch must not be mutated by later pushes.
func TestAccumulator_BatchesDoNotAlias(t *testing.T) {
	acc := NewAccumulator(2)
	acc.Push(catalog.Record{ID: "a"})
	first, _ := acc.Push(catalog.Record{ID: "b"})
	acc.Push(catalog.Record{ID: "c"})

	if first.Entries[0].Record.ID != "a" || first.Entries[1].Record.ID != "b" {
		t.Errorf("first batch changed: %+v", first.Entries)
	}
}

func TestNewAccumulator_DefaultSize(t *testing.T) {
	acc := NewAccumulator(0)
	for i := 1; i < DefaultSize; i++ {
		if _, full := acc.Push(catalog.Record{}); full {
			t.Fatalf("batch emitted after %d records, want %d", i, DefaultSize)
		}
	}
	if b, full := acc.Push(catalog.Record{}); !full || b.Len() != DefaultSize {
		t.Errorf("Push() = %d, %v; want a full batch of %d", b.Len(), full, DefaultSize)
	}
}
