// Package batch groups records into fixed-size batches for the queue.
package batch

import "github.com/JonMunkholm/catalogimport/internal/catalog"

// DefaultSize is the number of records per queue send.
const DefaultSize = 5

// Entry is a record plus its 0-based position within its batch.
type Entry struct {
	Index  int
	Record catalog.Record
}

// Batch is an ordered group of at most the accumulator's size entries.
type Batch struct {
	Entries []Entry
}

// Len reports the number of entries.
func (b Batch) Len() int { return len(b.Entries) }

// Empty reports whether the batch has no entries.
func (b Batch) Empty() bool { return len(b.Entries) == 0 }

// Accumulator buffers records until a batch is full. One accumulator serves
// one file run; it is not safe for concurrent use.
type Accumulator struct {
	size    int
	pending []Entry
}

// NewAccumulator returns an accumulator emitting batches of size records.
// Non-positive sizes fall back to DefaultSize.
func NewAccumulator(size int) *Accumulator {
	if size <= 0 {
		size = DefaultSize
	}
	return &Accumulator{size: size, pending: make([]Entry, 0, size)}
}

// Pending reports how many records are buffered.
func (a *Accumulator) Pending() int { return len(a.pending) }

// Push appends rec. When the buffer reaches capacity the full batch is
// returned with ok=true and the buffer starts over.
func (a *Accumulator) Push(rec catalog.Record) (Batch, bool) {
	a.pending = append(a.pending, Entry{Index: len(a.pending), Record: rec})
	if len(a.pending) < a.size {
		return Batch{}, false
	}
	return a.take(), true
}

// Flush returns whatever is buffered, possibly an empty batch, and clears.
func (a *Accumulator) Flush() Batch {
	return a.take()
}

func (a *Accumulator) take() Batch {
	b := Batch{Entries: a.pending}
	a.pending = make([]Entry, 0, a.size)
	return b
}
