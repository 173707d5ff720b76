// Package web serves the HTTP API: session lifecycle, frame ingest,
// attendance pings and a server-sent event stream of live sightings.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/cloodei/apt-attendance/internal/store"
	"github.com/cloodei/apt-attendance/internal/stream"
	"github.com/cloodei/apt-attendance/internal/web/handlers"
	"github.com/cloodei/apt-attendance/internal/web/middleware"
)

// Server represents the web server.
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	store      store.Store
	manager    *stream.Manager
	loader     handlers.RosterLoader
	logger     *log.Logger
}

// NewServer creates a new web server.
func NewServer(st store.Store, manager *stream.Manager, loader handlers.RosterLoader, allowedOrigins []string, port int, host string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}

	r := chi.NewRouter()
	s := &Server{
		router:  r,
		store:   st,
		manager: manager,
		loader:  loader,
		logger:  logger,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS(allowedOrigins))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // Long timeout for SSE and frame uploads
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and ends every active stream,
// flushing their attendance trackers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Println("Shutting down web server...")

	s.manager.Shutdown()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
