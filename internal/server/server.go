// Package server owns HTTP server initialization and lifecycle.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/martinvidela/chatforge/internal/api"
	"github.com/martinvidela/chatforge/internal/infra/config"
)

// Timeouts for the HTTP server. The write timeout must outlast the slowest
// send path: the assistants run poll alone is bounded at 60 seconds.
const (
	readTimeout  = 15 * time.Second
	writeTimeout = 180 * time.Second
	idleTimeout  = 60 * time.Second
)

// Server wraps the HTTP server and database.
type Server struct {
	db   *sql.DB
	http *http.Server
}

// New builds the router and the HTTP server around it.
func New(db *sql.DB, cfg config.Config) (*Server, error) {
	router, err := api.NewRouter(db, cfg)
	if err != nil {
		return nil, err
	}

	return &Server{
		db: db,
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
	}, nil
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	slog.Info("starting HTTP server", "addr", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server and closes the database.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down server")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("database close: %w", err)
	}
	return nil
}
