package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-sync/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	templatesHandler := handlers.NewTemplatesHandler(s.service, s.logger)
	sessionsHandler := handlers.NewSessionsHandler(s.service, s.logger)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", templatesHandler.Stats)

		// Templates
		r.Get("/templates", templatesHandler.List)
		r.Post("/templates", templatesHandler.Enroll)
		r.Post("/templates/reload", templatesHandler.Reload)
		r.Delete("/templates/{owner}", templatesHandler.Delete)
		r.Post("/checkin", templatesHandler.CheckIn)

		// Sessions
		r.Route("/courses/{course}", func(r chi.Router) {
			r.Get("/sessions", sessionsHandler.List)
			r.Post("/sessions", sessionsHandler.Open)
			r.Get("/sessions/active", sessionsHandler.Active)
			r.Post("/sessions/active/close", sessionsHandler.Close)
			r.Post("/attendance", sessionsHandler.Confirm)
			r.Post("/attend", sessionsHandler.Attend)
		})
	})
}
