package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JonMunkholm/catalogimport/internal/commit"
	"github.com/JonMunkholm/catalogimport/internal/config"
	"github.com/JonMunkholm/catalogimport/internal/deadletter"
	"github.com/JonMunkholm/catalogimport/internal/logging"
	"github.com/JonMunkholm/catalogimport/internal/metrics"
	"github.com/JonMunkholm/catalogimport/internal/notify"
	"github.com/JonMunkholm/catalogimport/internal/queue"
	"github.com/JonMunkholm/catalogimport/internal/storage/postgres"
	"github.com/JonMunkholm/catalogimport/internal/worker"
)

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

	if err := run(cfg); err != nil {
		slog.Error("worker stopped", "error", err)
		os.Exit(1)
	}
	slog.Info("worker stopped")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := postgres.New(pool, cfg.Database.ProductsTable, cfg.Database.StocksTable)
	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	conn, err := queue.Dial(ctx, cfg.Queue.URL)
	if err != nil {
		return err
	}
	defer conn.Close()

	// One channel per concern: consuming, fan-out publishing, dead letters.
	var chans [3]*amqp.Channel
	for i := range chans {
		if chans[i], err = conn.Channel(); err != nil {
			return err
		}
		defer chans[i].Close()
	}
	consumeCh, notifyCh, dlqCh := chans[0], chans[1], chans[2]

	notifier, err := notify.New(notifyCh, cfg.Notify.Exchange, cfg.Notify.Subject, slog.Default())
	if err != nil {
		return err
	}
	dead, err := deadletter.ForQueue(dlqCh, cfg.Queue.DeadLetter, slog.Default())
	if err != nil {
		return err
	}

	coordinator := commit.New(store, notifier, dead, slog.Default())
	processor := worker.NewProcessor(coordinator, slog.Default())

	consumer, err := queue.NewConsumer(consumeCh, cfg.Queue.Name, cfg.Queue.ConsumerTag, cfg.Queue.Prefetch, slog.Default())
	if err != nil {
		return err
	}

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		metricsSrv = metrics.Serve(cfg.Metrics.Addr)
	}

	classes, err := notify.ParseClasses(cfg.Notify.Classes, cfg.Notify.Threshold)
	if err != nil {
		return fmt.Errorf("NOTIFY_CLASSES: %w", err)
	}

	var wg sync.WaitGroup
	for _, class := range classes {
		subCh, err := conn.Channel()
		if err != nil {
			return err
		}
		defer subCh.Close()
		sub, err := notify.NewSubscriber(subCh, cfg.Notify.Exchange, class, slog.Default())
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sub.Run(ctx, deliverTo(class)); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("subscriber stopped", "class", class.Name, "error", err)
			}
		}()
	}

	err = consumer.Run(ctx, processor.Handle)
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	stop()
	wg.Wait()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if serr := metricsSrv.Shutdown(shutdownCtx); serr != nil {
			slog.Error("metrics shutdown error", "error", serr)
		}
	}
	return err
}

// deliverTo is the subscriber endpoint for one class. Delivery is a
// structured log line; a mail or webhook sender would replace it.
func deliverTo(class notify.Class) func(context.Context, notify.Event) {
	return func(ctx context.Context, ev notify.Event) {
		logging.FromContext(ctx).Info("product notification",
			"class", class.Name,
			"filter", class.Policy.String(),
			"subject", ev.Subject,
			"text", ev.Message.Text,
			"record_id", ev.Message.Record.ID,
			"count", ev.Message.Record.Count,
		)
	}
}
