package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/catalogimport/internal/commit"
	"github.com/JonMunkholm/catalogimport/internal/config"
	"github.com/JonMunkholm/catalogimport/internal/logging"
	"github.com/JonMunkholm/catalogimport/internal/notify"
	"github.com/JonMunkholm/catalogimport/internal/queue"
	"github.com/JonMunkholm/catalogimport/internal/storage/objects"
	"github.com/JonMunkholm/catalogimport/internal/storage/postgres"
	"github.com/JonMunkholm/catalogimport/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
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

	pool, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	store := postgres.New(pool, cfg.Database.ProductsTable, cfg.Database.StocksTable)
	if err := store.EnsureSchema(ctx); err != nil {
		slog.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	bucket, err := objects.New(cfg.Storage)
	if err != nil {
		slog.Error("failed to create object store client", "error", err)
		os.Exit(1)
	}

	// Records created through the API fan out like queued ones. Without a
	// broker the API still serves; creates just skip the notification.
	var notifier commit.Notifier
	if conn, err := queue.Dial(ctx, cfg.Queue.URL); err != nil {
		slog.Warn("broker unavailable, create notifications disabled", "error", err)
	} else {
		defer conn.Close()
		ch, err := conn.Channel()
		if err != nil {
			slog.Error("failed to open channel", "error", err)
			os.Exit(1)
		}
		defer ch.Close()
		n, err := notify.New(ch, cfg.Notify.Exchange, cfg.Notify.Subject, slog.Default())
		if err != nil {
			slog.Error("failed to declare notify exchange", "error", err)
			os.Exit(1)
		}
		notifier = n
	}

	coordinator := commit.New(store, notifier, nil, slog.Default())

	server := web.NewServer(cfg, web.Deps{
		Products: store,
		Commits:  coordinator,
		Uploads:  bucket,
	})

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		slog.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-shutdownDone
	slog.Info("server stopped")
}
