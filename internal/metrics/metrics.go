// Package metrics holds the Prometheus collectors shared by all processes.
package metrics

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "catalog"

var (
	RowsParsed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_parsed_total",
		Help:      "Data rows read from uploaded files.",
	})

	// RecordsRejected is labelled by stage (import, worker, api).
	RecordsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_rejected_total",
		Help:      "Records dropped by validation.",
	}, []string{"stage"})

	// BatchesSent is labelled by dispatch outcome (accepted, partial, rejected).
	BatchesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batches_sent_total",
		Help:      "Batches handed to the queue.",
	}, []string{"outcome"})

	EntriesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "entries_failed_total",
		Help:      "Batch entries the broker did not confirm.",
	})

	// CommitOutcomes is labelled committed, duplicate_skipped or failed.
	CommitOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commit_outcomes_total",
		Help:      "Commit coordinator outcomes.",
	}, []string{"outcome"})

	CommitDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "commit_duration_seconds",
		Help:      "Time spent in the product/stock transaction.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	})

	// Notifications is labelled sent or failed.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification publish attempts.",
	}, []string{"result"})

	// FilesProcessed is labelled relocated, parse_error, dispatch_error or failed.
	FilesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "files_processed_total",
		Help:      "Uploaded files processed by the importer.",
	}, []string{"result"})

	BytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "import_bytes_read_total",
		Help:      "Bytes streamed from uploaded files.",
	})

	RelocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "relocation_duration_seconds",
		Help:      "Copy-then-delete time for a processed file.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
	})

	FilesInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "import_files_in_flight",
		Help:      "Files currently being imported.",
	})

	DeadLetters = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dead_letters_total",
		Help:      "Records handed to the dead-letter sink.",
	}, []string{"reason"})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Since observes the elapsed time on h; use with defer.
func Since(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Serve runs a metrics-only listener until the returned server is shut down.
// Worker processes use it; the API server mounts Handler on its router.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics listener stopped", "addr", addr, "error", err)
		}
	}()
	return srv
}
