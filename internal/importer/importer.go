// Package importer turns uploaded catalog files into queued records.
//
// For each object created under the intake prefix the importer streams the
// file through the row parser, validates each row, groups valid records into
// batches and hands them to the queue dispatcher. Once the whole file has
// parsed cleanly it is relocated to the parsed prefix. A malformed file is
// left where it is.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/catalogimport/internal/batch"
	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/deadletter"
	"github.com/JonMunkholm/catalogimport/internal/metrics"
	"github.com/JonMunkholm/catalogimport/internal/parser"
	"github.com/JonMunkholm/catalogimport/internal/queue"
	"github.com/JonMunkholm/catalogimport/internal/storage/objects"
)

// ErrAlreadyImporting is returned by Offer when the key is being processed.
var ErrAlreadyImporting = errors.New("file is already being imported")

// rowIDSpace namespaces ids generated for rows that carry none.
var rowIDSpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("catalogimport/rows"))

// ObjectStore is the part of the bucket the importer uses.
type ObjectStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, objects.Object, error)
	Copy(ctx context.Context, srcKey, dstKey string) error
	Remove(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]objects.Object, error)
}

// Sender hands a batch to the queue.
type Sender interface {
	Send(ctx context.Context, b batch.Batch) (queue.Result, error)
}

// Options configures an Importer.
type Options struct {
	Parser        parser.Config
	BatchSize     int
	UploadPrefix  string
	ParsedPrefix  string
	FileTimeout   time.Duration
	MaxConcurrent int
	MaxWait       time.Duration
}

// Report summarises one file run.
type Report struct {
	Key       string
	Version   string
	Rows      int
	Rejected  int
	Batches   int
	Sent      int
	Failed    int
	Bytes     int64
	Relocated string
}

// Importer processes uploaded files.
type Importer struct {
	store     ObjectStore
	sender    Sender
	dead      deadletter.Sink
	relocator *Relocator
	limiter   *Limiter
	opts      Options
	logger    *slog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	// rejected maps a key to the ETag of a version that failed to parse.
	rejected map[string]string
}

// New returns an Importer. dead may be nil (log only).
func New(store ObjectStore, sender Sender, dead deadletter.Sink, opts Options, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	if dead == nil {
		dead = deadletter.LogSink{Logger: logger}
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = batch.DefaultSize
	}
	return &Importer{
		store:     store,
		sender:    sender,
		dead:      dead,
		relocator: NewRelocator(store, opts.UploadPrefix, opts.ParsedPrefix),
		limiter:   NewLimiter(opts.MaxConcurrent, opts.MaxWait),
		opts:      opts,
		logger:    logger,
		inflight:  make(map[string]struct{}),
		rejected:  make(map[string]string),
	}
}

// Offer schedules key for import in the background. Keys outside the intake
// prefix are ignored. It blocks while all slots are busy, up to MaxWait.
func (im *Importer) Offer(ctx context.Context, key string) error {
	if !strings.HasPrefix(key, im.opts.UploadPrefix) || key == im.opts.UploadPrefix {
		im.logger.Debug("ignoring object outside intake prefix", "key", key)
		return nil
	}
	if !im.claim(key) {
		return ErrAlreadyImporting
	}
	if err := im.limiter.Acquire(ctx); err != nil {
		im.unclaim(key)
		return err
	}

	go func() {
		defer im.limiter.Release()
		defer im.unclaim(key)
		// Detached from ctx so shutdown lets the file finish; FileTimeout
		// still bounds it.
		_, _ = im.Process(context.WithoutCancel(ctx), key)
	}()
	return nil
}

func (im *Importer) claim(key string) bool {
	im.mu.Lock()
	defer im.mu.Unlock()
	if _, busy := im.inflight[key]; busy {
		return false
	}
	im.inflight[key] = struct{}{}
	return true
}

// setRejected records the version of key that failed to parse. An empty
// etag clears the entry.
func (im *Importer) setRejected(key, etag string) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if etag == "" {
		delete(im.rejected, key)
		return
	}
	im.rejected[key] = etag
}

func (im *Importer) unclaim(key string) {
	im.mu.Lock()
	delete(im.inflight, key)
	im.mu.Unlock()
}

// Drain waits for in-flight files to finish.
func (im *Importer) Drain(ctx context.Context) error {
	return im.limiter.WaitForDrain(ctx)
}

// Process imports one file synchronously. A *parser.ParseError or any
// failure before the last batch is sent leaves the file in place.
func (im *Importer) Process(ctx context.Context, key string) (Report, error) {
	if im.opts.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, im.opts.FileTimeout)
		defer cancel()
	}
	logger := im.logger.With("key", key)

	rep, err := im.run(ctx, key, logger)
	switch {
	case err == nil:
		im.setRejected(key, "")
		metrics.FilesProcessed.WithLabelValues("relocated").Inc()
		logger.InfoContext(ctx, "file imported",
			"rows", rep.Rows,
			"rejected", rep.Rejected,
			"batches", rep.Batches,
			"sent", rep.Sent,
			"failed", rep.Failed,
			"bytes", rep.Bytes,
			"relocated_to", rep.Relocated,
		)
	case isParseError(err):
		im.setRejected(key, rep.Version)
		metrics.FilesProcessed.WithLabelValues("parse_error").Inc()
		logger.ErrorContext(ctx, "file rejected, left in place", "rows_before_error", rep.Rows, "error", err)
	default:
		metrics.FilesProcessed.WithLabelValues("failed").Inc()
		logger.ErrorContext(ctx, "file import failed", "error", err)
	}
	return rep, err
}

func (im *Importer) run(ctx context.Context, key string, logger *slog.Logger) (rep Report, err error) {
	rep.Key = key

	rc, obj, err := im.store.Open(ctx, key)
	if err != nil {
		return rep, fmt.Errorf("open %s: %w", key, err)
	}
	defer rc.Close()
	rep.Version = obj.ETag

	counter := parser.NewCountingReader(rc)
	defer func() {
		rep.Bytes = counter.BytesRead
		metrics.BytesRead.Add(float64(counter.BytesRead))
	}()

	acc := batch.NewAccumulator(im.opts.BatchSize)
	for row, err := range parser.Rows(counter, im.opts.Parser) {
		if err != nil {
			// Records pushed before the bad line still go out; the file stays.
			if n := acc.Pending(); n > 0 {
				logger.DebugContext(ctx, "sending rows parsed before the error", "pending", n)
				im.send(ctx, key, acc.Flush(), &rep, logger)
			}
			return rep, err
		}
		rep.Rows++
		metrics.RowsParsed.Inc()

		rec, err := RecordFromRow(key, obj.ETag, row)
		if err != nil {
			rep.Rejected++
			metrics.RecordsRejected.WithLabelValues("import").Inc()
			logger.WarnContext(ctx, "row dropped", "line", row.Line, "reason", err)
			continue
		}
		if b, ok := acc.Push(rec); ok {
			im.send(ctx, key, b, &rep, logger)
		}
	}
	if b := acc.Flush(); !b.Empty() {
		im.send(ctx, key, b, &rep, logger)
	}

	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("import %s interrupted: %w", key, err)
	}

	target, err := im.relocator.Relocate(ctx, key)
	rep.Relocated = target
	if err != nil {
		return rep, err
	}
	return rep, nil
}

// send dispatches b and dead-letters whatever the broker did not take.
// Dispatch problems never abort the file.
func (im *Importer) send(ctx context.Context, key string, b batch.Batch, rep *Report, logger *slog.Logger) {
	rep.Batches++
	res, err := im.sender.Send(ctx, b)
	rep.Sent += len(res.Accepted)
	rep.Failed += len(res.Failed)
	if len(res.Failed) == 0 {
		return
	}

	logger.WarnContext(ctx, "batch not fully accepted",
		"outcome", res.Outcome(),
		"failed", len(res.Failed),
		"error", err,
	)
	cause := err
	if cause == nil {
		cause = errors.New("broker nacked message")
	}
	for _, e := range res.FailedEntries(b) {
		if derr := im.dead.Put(ctx, deadletter.New(deadletter.DispatchFailed, key, e.Record, cause)); derr != nil {
			logger.ErrorContext(ctx, "dead-letter failed", "record_id", e.Record.ID, "error", derr)
		}
	}
}

// RecordFromRow converts and validates one row. Rows without an id get one
// derived from the key, the object version and the line, so reprocessing the
// same upload yields the same ids and a new upload under the same name does
// not.
func RecordFromRow(key, version string, row parser.RawRow) (catalog.Record, error) {
	rec, err := catalog.FromRow(row.Fields)
	if err != nil {
		return catalog.Record{}, err
	}
	if rec.ID == "" {
		rec.ID = RowID(key, version, row.Line)
	}
	if err := catalog.Validate(rec, true); err != nil {
		return catalog.Record{}, err
	}
	return rec, nil
}

// RowID is the id assigned to an id-less row at line of the given version
// of key.
func RowID(key, version string, line int) string {
	return uuid.NewSHA1(rowIDSpace, []byte(key+"@"+version+"#"+strconv.Itoa(line))).String()
}

func isParseError(err error) bool {
	var pe *parser.ParseError
	return errors.As(err, &pe)
}
