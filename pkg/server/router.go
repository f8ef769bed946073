package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pixload/pixload/internal/logger"
	"github.com/pixload/pixload/pkg/engine"
	"github.com/pixload/pixload/pkg/metrics"
)

// NewRouter builds the HTTP routing for the image service.
//
// Routes:
//   - GET /healthz - liveness probe
//   - GET /metrics - Prometheus metrics (404 when metrics are disabled)
//   - GET /v1/image - load and serve an image
//   - POST /v1/admin/pause - hold all pending loads
//   - POST /v1/admin/resume - release the pause gate
//   - PUT /v1/admin/network-mode - switch normal/denied/degraded
//   - GET /v1/admin/status - engine state snapshot
//   - DELETE /v1/admin/cache/memory - drop all decoded buffers
//   - DELETE /v1/admin/cache/disc - drop the disc entry for ?src=
func NewRouter(eng *engine.Engine, requestTimeout time.Duration) http.Handler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	img := newImageHandler(eng)
	r.Get("/v1/image", img.Get)

	admin := newAdminHandler(eng)
	r.Route("/v1/admin", func(r chi.Router) {
		r.Post("/pause", admin.Pause)
		r.Post("/resume", admin.Resume)
		r.Put("/network-mode", admin.SetNetworkMode)
		r.Get("/status", admin.Status)
		r.Delete("/cache/memory", admin.ClearMemoryCache)
		r.Delete("/cache/disc", admin.RemoveDiscEntry)
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs requests using the internal logger. Health and metrics
// probes log at DEBUG to keep the scrape noise out of INFO.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		}
		if isProbePath(r.URL.Path) {
			logger.Debug("request completed", logArgs...)
		} else {
			logger.Info("request completed", logArgs...)
		}
	})
}

func isProbePath(path string) bool {
	return strings.HasPrefix(path, "/healthz") || strings.HasPrefix(path, "/metrics")
}
