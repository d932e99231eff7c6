package importer

// limiter.go bounds how many uploaded files are imported at once.
//
// A file event that cannot get a slot within maxWait is dropped with
// ErrTooManyFiles; the file stays under the intake prefix and the sweeper
// offers it again later. WaitForDrain lets shutdown finish in-flight files.

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JonMunkholm/catalogimport/internal/metrics"
)

// ErrTooManyFiles is returned when every import slot stayed busy for maxWait.
var ErrTooManyFiles = errors.New("too many files importing, try again later")

const (
	DefaultMaxConcurrent = 4
	DefaultMaxWait       = 30 * time.Second
)

// Limiter is a counting semaphore over file imports.
type Limiter struct {
	slots   chan struct{}
	maxWait time.Duration

	mu     sync.RWMutex
	active int
}

// NewLimiter allows at most maxConcurrent files at a time.
func NewLimiter(maxConcurrent int, maxWait time.Duration) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Limiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits up to maxWait for a slot. The caller must Release after a
// nil return.
func (l *Limiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.slots <- struct{}{}:
		l.inc(1)
		return nil
	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyFiles
	}
}

// Release frees a slot taken by Acquire.
func (l *Limiter) Release() {
	l.inc(-1)
	<-l.slots
}

func (l *Limiter) inc(n int) {
	l.mu.Lock()
	l.active += n
	l.mu.Unlock()
	metrics.FilesInFlight.Add(float64(n))
}

// Active is the number of files being imported.
func (l *Limiter) Active() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// WaitForDrain blocks until no file is in flight or ctx ends.
func (l *Limiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.Active() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
