package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"comfy-bridge/internal/comfyui"
	"comfy-bridge/internal/config"
	"comfy-bridge/internal/journal"
	"comfy-bridge/internal/limiter"
)

// maxGraphSize bounds a single inbound job graph frame
const maxGraphSize = 8 << 20

// Server hosts client channels and the engine-facing helper endpoints
type Server struct {
	cfg       *config.Config
	engine    *comfyui.Client
	inspector *comfyui.Inspector
	limiter   *limiter.ChannelLimiter
	journal   journal.Store
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	// Track running bridges across all channels
	activeJobs sync.WaitGroup
}

// New creates a server. store may be nil when the journal is disabled.
func New(
	cfg *config.Config,
	engine *comfyui.Client,
	channelLimiter *limiter.ChannelLimiter,
	store journal.Store,
	logger *slog.Logger,
) *Server {
	origins := NewOriginAllowlist(cfg.Server.AllowedOrigins, logger)

	return &Server{
		cfg:       cfg,
		engine:    engine,
		inspector: comfyui.NewInspector(engine, cfg.Proxy.ImagePath, logger),
		limiter:   channelLimiter,
		journal:   store,
		upgrader: websocket.Upgrader{
			CheckOrigin: origins.CheckOrigin,
		},
		logger: logger,
	}
}

// Handler builds the HTTP routes. Bridges started through it run on ctx.
func (s *Server) Handler(ctx context.Context) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, RequestLogger(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws", s.handleClientChannel(ctx))
	r.Get(s.cfg.Proxy.ImagePath, s.handleProxyImage)
	r.Post("/interrupt", s.handleInterrupt)
	r.Get("/jobs/{promptID}", s.handleJob)

	return r
}

// Run serves until ctx is cancelled, then waits for active jobs
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server started", "addr", s.cfg.Server.Addr, "engine", s.cfg.Engine.BaseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("stopping server, waiting for active jobs")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("http shutdown incomplete", "error", err)
		}

		// Wait for active jobs with timeout
		done := make(chan struct{})
		go func() {
			s.activeJobs.Wait()
			close(done)
		}()

		select {
		case <-done:
			s.logger.Info("all active jobs completed")
		case <-shutdownCtx.Done():
			s.logger.Warn("some jobs may not have completed", "active", s.limiter.ActiveCount())
		}
		return nil
	})

	return g.Wait()
}
