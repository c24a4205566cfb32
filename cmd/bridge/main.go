package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"comfy-bridge/internal/comfyui"
	"comfy-bridge/internal/config"
	"comfy-bridge/internal/journal"
	"comfy-bridge/internal/limiter"
	"comfy-bridge/internal/server"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Initialize logger
	var logLevel slog.Level
	switch cfg.Logging.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	var handler slog.Handler
	if cfg.Logging.JSONFormat {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	// Create root context with cancellation
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// WaitGroup for tracking active goroutines
	var wg sync.WaitGroup

	// Initialize engine client
	engine := comfyui.NewClient(cfg.Engine, logger)

	// One job per client channel, optionally capped globally
	channelLimiter := limiter.NewChannelLimiter(cfg.Server.MaxConcurrentJobs)

	// Initialize job journal (empty path disables it)
	var store journal.Store
	if cfg.Journal.Path != "" {
		sqliteStore, err := journal.NewSQLiteStore(cfg.Journal.Path)
		if err != nil {
			logger.Error("failed to open job journal", "error", err, "path", cfg.Journal.Path)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		store = sqliteStore
		logger.Info("job journal enabled", "path", cfg.Journal.Path)
	}

	srv := server.New(cfg, engine, channelLimiter, store, logger)

	// Start server in goroutine
	serverErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		serverErr <- srv.Run(rootCtx)
	}()

	logger.Info("bridge started",
		"addr", cfg.Server.Addr,
		"engine_url", cfg.Engine.BaseURL,
		"max_concurrent_jobs", cfg.Server.MaxConcurrentJobs,
	)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig)
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
		}
	}

	// Cancel root context to signal all goroutines
	rootCancel()

	// Server waits for jobs itself; leave a margin on top of its timeout
	shutdownTimeout := cfg.Server.ShutdownTimeout + 5*time.Second
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("graceful shutdown complete")
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timeout exceeded, forcing exit")
	}
}
