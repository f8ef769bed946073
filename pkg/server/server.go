// Package server exposes the load engine over HTTP: an image endpoint that
// runs requests through the pipeline, admin endpoints for the pause gate and
// network mode, and the health and metrics probes.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/pixload/pixload/internal/logger"
	"github.com/pixload/pixload/pkg/config"
	"github.com/pixload/pixload/pkg/engine"
)

// Server is the image service HTTP server. It supports graceful shutdown
// with a configurable timeout.
type Server struct {
	server       *http.Server
	engine       *engine.Engine
	cfg          config.ServerConfig
	shutdownOnce sync.Once
}

// NewServer creates the server in a stopped state. Call Start to begin
// serving requests.
func NewServer(cfg config.ServerConfig, eng *engine.Engine) *Server {
	router := NewRouter(eng, cfg.RequestTimeout)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		engine: eng,
		cfg:    cfg,
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("image server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("image server failed: %w", err)
	}
}

// Stop shuts the server down gracefully, letting in-flight requests finish
// within ctx. Idempotent.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		logger.Info("stopping image server")
		err = s.server.Shutdown(ctx)
	})
	return err
}
