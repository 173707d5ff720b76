package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/cloodei/apt-attendance/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	sessionsHandler := handlers.NewSessionsHandler(s.store, s.manager, s.loader, s.logger)
	attendanceHandler := handlers.NewAttendanceHandler(s.store, s.manager, s.logger)
	framesHandler := handlers.NewFramesHandler(s.manager, s.logger)
	eventsHandler := handlers.NewEventsHandler(s.manager)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Sessions
		r.Get("/sessions", sessionsHandler.List)
		r.Post("/sessions", sessionsHandler.Create)
		r.Get("/sessions/{id}", sessionsHandler.Get)
		r.Post("/sessions/{id}/end", sessionsHandler.End)

		// Recognition inputs
		r.Post("/sessions/{id}/frames", framesHandler.Ingest)
		r.Post("/sessions/{id}/attendance/ping", attendanceHandler.Ping)

		// Outputs
		r.Get("/sessions/{id}/records", attendanceHandler.Records)
		r.Get("/sessions/{id}/events", eventsHandler.Stream)
	})
}
