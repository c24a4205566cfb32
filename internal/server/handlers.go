package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"comfy-bridge/internal/bridge"
	"comfy-bridge/internal/comfyui"
	apperrors "comfy-bridge/internal/errors"
)

// handleClientChannel accepts job graphs over a WebSocket and streams each
// job's events back on the same connection
func (s *Server) handleClientChannel(ctx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already written the HTTP error
			s.logger.Warn("client channel upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
			return
		}
		defer conn.Close()

		channelID := uuid.New().String()
		logger := s.logger.With("channel_id", channelID, "request_id", middleware.GetReqID(r.Context()))
		notifier := bridge.NewWSNotifier(conn, s.cfg.Server.WriteTimeout, logger)

		conn.SetReadLimit(maxGraphSize)

		// Shutdown unblocks the read loop; jobs finish on their own
		stop := context.AfterFunc(ctx, func() {
			conn.SetReadDeadline(time.Now())
		})
		defer stop()

		var jobs sync.WaitGroup
		defer jobs.Wait()

		logger.Info("client channel opened", "remote_addr", r.RemoteAddr)

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				logger.Info("client channel closed", "reason", err)
				return
			}
			if msgType != websocket.TextMessage {
				logger.Debug("ignoring binary client frame", "size", len(data))
				continue
			}

			graph, err := comfyui.ParseJobGraph(data)
			if err != nil {
				logger.Warn("rejecting job graph", "error", err)
				notifier.Emit(bridge.ErrorEvent(apperrors.GetUserMessage(err)))
				continue
			}

			if !s.limiter.TryAcquire(channelID) {
				rejection := apperrors.ErrServerBusy
				if s.limiter.IsActive(channelID) {
					rejection = apperrors.ErrJobInProgress
				}
				logger.Warn("rejecting job", "kind", rejection.Kind, "active_jobs", s.limiter.ActiveCount())
				notifier.Emit(bridge.ErrorEvent(rejection.UserMsg))
				continue
			}

			jobs.Add(1)
			s.activeJobs.Add(1)
			go func(graph comfyui.JobGraph) {
				defer s.activeJobs.Done()
				defer jobs.Done()
				defer s.limiter.Release(channelID)

				s.runJob(ctx, graph, notifier, logger)
			}(graph)
		}
	}
}

func (s *Server) runJob(ctx context.Context, graph comfyui.JobGraph, notifier bridge.Notifier, logger *slog.Logger) {
	opts := bridge.Options{
		Submitter:    s.engine,
		Inspector:    s.inspector,
		Dialer:       bridge.DialFunc(s.dialUpstream),
		Notifier:     notifier,
		Journal:      s.journal,
		PingInterval: s.cfg.Engine.PingInterval,
		Logger:       logger,
	}

	// The bridge reports its own outcome to the client and the log
	_ = bridge.New(opts).Run(ctx, graph)
}

func (s *Server) dialUpstream(ctx context.Context, clientID string) (bridge.Upstream, error) {
	stream, err := s.engine.OpenStream(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// handleProxyImage serves an engine output image to clients that cannot
// reach the engine directly
func (s *Server) handleProxyImage(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	img := comfyui.ImageOutput{
		Filename:  query.Get("filename"),
		Subfolder: query.Get("subfolder"),
		Type:      query.Get("type"),
	}
	if img.Filename == "" {
		http.Error(w, "missing filename", http.StatusBadRequest)
		return
	}

	data, contentType, err := s.engine.GetImage(r.Context(), img)
	if err != nil {
		s.logger.Warn("failed to proxy image", "error", err, "filename", img.Filename)
		http.Error(w, "image unavailable", http.StatusBadGateway)
		return
	}

	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(data)
}

func (s *Server) handleInterrupt(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Interrupt(r.Context()); err != nil {
		s.logger.Warn("interrupt failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": apperrors.GetUserMessage(err)})
		return
	}

	s.logger.Info("interrupt forwarded to engine")
	w.WriteHeader(http.StatusAccepted)
}

type healthResponse struct {
	Status     string               `json:"status"`
	Engine     string               `json:"engine"`
	ActiveJobs int                  `json:"active_jobs"`
	Devices    []comfyui.DeviceInfo `json:"devices,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Engine:     "reachable",
		ActiveJobs: s.limiter.ActiveCount(),
	}

	stats, err := s.engine.CheckHealth(r.Context())
	if err != nil {
		s.logger.Debug("engine health check failed", "error", err)
		resp.Status = "degraded"
		resp.Engine = "unreachable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Devices = stats.Devices
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		http.NotFound(w, r)
		return
	}

	promptID := chi.URLParam(r, "promptID")
	job, err := s.journal.Get(promptID)
	if err != nil {
		s.logger.Error("failed to read job journal", "error", err, "prompt_id", promptID)
		http.Error(w, "journal unavailable", http.StatusInternalServerError)
		return
	}
	if job == nil {
		http.NotFound(w, r)
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
