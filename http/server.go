// Package http exposes the lab pipeline over a REST and websocket API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"mllab/logging"
)

// Server wraps the standard library server with the middleware chain.
type Server struct {
	server *http.Server
	config ServerConfig
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	MaxRequestSize int64
	AllowedOrigins []string
}

// DefaultServerConfig returns the settings used when the config file is
// silent.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        60 * time.Second,
		MaxRequestSize: 32 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// NewServer builds the server around an API and its event hub.
func NewServer(config ServerConfig, api *API, hub *Hub) *Server {
	mux := http.NewServeMux()
	api.Register(mux)
	mux.HandleFunc("GET /api/ws", hub.HandleWS)

	chain := Chain(
		RecoveryMiddleware,
		LoggerMiddleware,
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(config.MaxRequestSize),
	)

	return &Server{
		server: &http.Server{
			Addr: fmt.Sprintf(":%d", config.Port),
			// Write timeout would kill long training polls, so only
			// reads are bounded here.
			Handler:     chain(mux),
			ReadTimeout: config.Timeout,
			IdleTimeout: 120 * time.Second,
		},
		config: config,
	}
}

// Start blocks until the listener fails or Stop is called.
func (s *Server) Start() error {
	logging.L().Infow("starting http server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	logging.L().Infow("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
