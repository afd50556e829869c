package api

import (
	"context"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)
	if s.limiter != nil {
		r.Use(s.limiter.middleware)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/devices", s.handleListDevices)

			r.Post("/plans/validate", s.handleValidatePlan)

			r.Route("/runs", func(r chi.Router) {
				r.Get("/", s.handleListRuns)
				r.Post("/", s.handleStartRun)

				r.Route("/{key}", func(r chi.Router) {
					r.Get("/", s.handleGetRun)
					r.Post("/pause", s.handlePauseRun)
					r.Post("/resume", s.handleResumeRun)
					r.Post("/cancel", s.handleCancelRun)
				})
			})

			r.Post("/batch", s.handleBatch)

			r.Route("/zerotouch", func(r chi.Router) {
				r.Get("/", s.handleGetZeroTouch)
				r.Put("/", s.handleConfigureZeroTouch)
				r.Post("/cancel", s.handleCancelZeroTouch)
				r.Post("/reset", s.handleResetZeroTouch)
			})

			r.Route("/schedules", func(r chi.Router) {
				r.Get("/", s.handleListSchedules)
				r.Post("/", s.handleAddSchedule)
				r.Post("/reset", s.handleResetSchedules)
			})

			r.Get("/history", s.handleListHistory)

			r.Post("/safety/check", s.handleSafetyCheck)

			r.Get("/ws", s.handleWebSocket)
		})
	})

	return r
}

// componentHealth is one entry of the health response.
type componentHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// handleHealth reports the server version and the health of every
// registered component. Any failing component marks the station degraded.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "ok"
	components := make(map[string]componentHealth, len(names))
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			components[name] = componentHealth{Status: "error", Error: err.Error()}
			continue
		}
		components[name] = componentHealth{Status: "ok"}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"components": components,
	})
}
