package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/catalogimport/internal/config"
	"github.com/JonMunkholm/catalogimport/internal/deadletter"
	"github.com/JonMunkholm/catalogimport/internal/importer"
	"github.com/JonMunkholm/catalogimport/internal/logging"
	"github.com/JonMunkholm/catalogimport/internal/metrics"
	"github.com/JonMunkholm/catalogimport/internal/parser"
	"github.com/JonMunkholm/catalogimport/internal/queue"
	"github.com/JonMunkholm/catalogimport/internal/storage/objects"
)

// resubscribeDelay is the pause before re-subscribing to bucket
// notifications after the stream drops.
const resubscribeDelay = 5 * time.Second

func main() {
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	bucket, err := objects.New(cfg.Storage)
	if err != nil {
		slog.Error("failed to create object store client", "error", err)
		os.Exit(1)
	}
	if err := bucket.EnsureBucket(ctx); err != nil {
		slog.Error("failed to ensure bucket", "bucket", bucket.Name(), "error", err)
		os.Exit(1)
	}

	conn, err := queue.Dial(ctx, cfg.Queue.URL)
	if err != nil {
		slog.Error("failed to connect to broker", "error", err)
		os.Exit(1)
	}
	defer conn.Close()

	sendCh, err := conn.Channel()
	if err != nil {
		slog.Error("failed to open channel", "error", err)
		os.Exit(1)
	}
	defer sendCh.Close()

	dispatcher, err := queue.NewDispatcher(sendCh, cfg.Queue.Name, cfg.Queue.ConfirmTimeout)
	if err != nil {
		slog.Error("failed to create dispatcher", "error", err)
		os.Exit(1)
	}

	// Dead letters go out on their own channel; the dispatch channel is in
	// confirm mode.
	dlqCh, err := conn.Channel()
	if err != nil {
		slog.Error("failed to open channel", "error", err)
		os.Exit(1)
	}
	defer dlqCh.Close()

	dead, err := deadletter.ForQueue(dlqCh, cfg.Queue.DeadLetter, slog.Default())
	if err != nil {
		slog.Error("failed to set up dead-letter sink", "error", err)
		os.Exit(1)
	}

	im := importer.New(bucket, dispatcher, dead, importer.Options{
		Parser: parser.Config{
			Delimiter: cfg.Import.DelimiterRune(),
			Quote:     cfg.Import.QuoteRune(),
		},
		BatchSize:     cfg.Import.BatchSize,
		UploadPrefix:  cfg.Storage.UploadPrefix,
		ParsedPrefix:  cfg.Storage.ParsedPrefix,
		FileTimeout:   cfg.Import.FileTimeout,
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWait:       cfg.Import.MaxWaitTime,
	}, slog.Default())

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		metricsSrv = metrics.Serve(cfg.Metrics.Addr)
	}

	go im.RunSweeper(ctx, importer.SweepConfig{
		Interval: cfg.Import.SweepInterval,
		MinAge:   cfg.Import.SweepMinAge,
	})

	for ctx.Err() == nil {
		im.Listen(ctx, bucket.Listen(ctx, cfg.Storage.UploadPrefix))
		select {
		case <-ctx.Done():
		case <-time.After(resubscribeDelay):
			slog.Info("re-subscribing to bucket notifications")
		}
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := im.Drain(shutdownCtx); err != nil {
		slog.Warn("files still importing at shutdown; the sweeper will retry them", "error", err)
	} else {
		slog.Info("all in-flight files finished")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics shutdown error", "error", err)
		}
	}
}
