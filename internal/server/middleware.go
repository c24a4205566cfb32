package server

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// OriginAllowlist manages browser origins allowed to open a client channel
type OriginAllowlist struct {
	allowed  map[string]struct{}
	allowAll bool
	logger   *slog.Logger
}

// NewOriginAllowlist creates an allowlist. An empty list or "*" allows any origin.
func NewOriginAllowlist(origins []string, logger *slog.Logger) *OriginAllowlist {
	allowed := make(map[string]struct{}, len(origins))
	anyOrigin := len(origins) == 0
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin == "*" {
			anyOrigin = true
			continue
		}
		if origin != "" {
			allowed[strings.ToLower(origin)] = struct{}{}
		}
	}
	return &OriginAllowlist{
		allowed:  allowed,
		allowAll: anyOrigin,
		logger:   logger,
	}
}

// CheckOrigin has the signature of websocket.Upgrader.CheckOrigin.
// Requests without an Origin header come from non-browser clients and pass.
func (a *OriginAllowlist) CheckOrigin(r *http.Request) bool {
	if a.allowAll {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if _, ok := a.allowed[strings.ToLower(origin)]; ok {
		return true
	}

	a.logger.Warn("rejected client channel origin",
		"origin", origin,
		"remote_addr", r.RemoteAddr,
	)
	return false
}

// RequestLogger logs each request through slog once it completes
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
