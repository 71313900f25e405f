package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/vidurl/api"
	"github.com/use-agent/vidurl/api/handler"
	"github.com/use-agent/vidurl/config"
	"github.com/use-agent/vidurl/fetcher"
	"github.com/use-agent/vidurl/scraper"
)

// batchQueueSize bounds the async batches waiting for the browser session.
const batchQueueSize = 32

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("vidurl server starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"site", cfg.Fetch.SiteURL,
	)

	// ── 3. Launch the browser session ───────────────────────────────
	sess, err := scraper.New(cfg.Browser, cfg.Fetch)
	if err != nil {
		slog.Error("failed to start browser session", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Warn("failed to close browser session", "error", err)
		}
	}()

	// ── 4. Fetcher and batch worker ─────────────────────────────────
	f := fetcher.New(sess, cfg.Fetch)

	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()
	batches := handler.NewBatchQueue(f, batchQueueSize)
	batches.Start(workerCtx)

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(f, batches, cfg, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		slog.Error("HTTP server error", "error", err)
	}

	// A batch in flight can hold the session for a while; give it time.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// Browser session closes via defer.
	slog.Info("vidurl server stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var logHandler slog.Handler
	if cfg.Format == "json" {
		logHandler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		logHandler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(logHandler))
}
