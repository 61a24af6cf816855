// Package api serves the dashboard's JSON API.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Server wraps http.Server with the dashboard routes.
type Server struct {
	server *http.Server
	log    zerolog.Logger
}

// NewServer creates a new HTTP server instance listening on addr.
func NewServer(addr string, handler http.Handler, log zerolog.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second, // retries with backoff can take a while
			IdleTimeout:  60 * time.Second,
		},
		log: log,
	}
}

// Start blocks serving requests. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
