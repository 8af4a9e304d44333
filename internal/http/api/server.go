package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/slok/devagent/internal/log"
)

// ServerConfig is the configuration for the API server.
type ServerConfig struct {
	ListenAddr string
	Handler    http.Handler
	Logger     log.Logger
}

func (c *ServerConfig) defaults() error {
	if c.Handler == nil {
		return fmt.Errorf("handler is required")
	}

	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "api.Server"})

	return nil
}

// Server serves the API until its context is cancelled.
type Server struct {
	server *http.Server
	logger log.Logger
}

// NewServer returns a new API server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Server{
		server: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           cfg.Handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: cfg.Logger,
	}, nil
}

// Run starts the server and blocks until ctx is cancelled or the server fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("API listening on %s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server error: %w", err)
	case <-ctx.Done():
		s.logger.Infof("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("api shutdown error: %w", err)
		}
		return nil
	}
}
