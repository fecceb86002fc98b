package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Route("/machine", func(r chi.Router) {
			r.Get("/", s.handleGetStatus)
			r.Get("/attributes", s.handleListAttributes)
			r.Put("/mode", s.handleSetMode)
			r.Post("/fatal/reset", s.handleResetFatal)

			r.Get("/keys/{key}", s.handleGetKey)
			r.Put("/keys/{key}", s.handleSetKey)
		})

		r.Route("/slaves", func(r chi.Router) {
			r.Get("/", s.handleListSlaves)
			r.Post("/", s.handleAddSlave)
			r.Delete("/{id}", s.handleRemoveSlave)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	st := s.machine.Status()
	status := "ok"
	if st.Fatal {
		status = "fatal"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"operating_mode": st.OperatingMode,
		"version":        s.version,
	})
}
