package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each component check in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/metrics", s.handleMetrics)

			r.Get("/mapping", s.handleGetMapping)
			r.Get("/mapping.csv", s.handleGetMappingCSV)
			r.Get("/mapping.txt", s.handleGetMappingText)
			r.Get("/mapping.md", s.handleGetMappingMarkdown)
			r.Post("/mapping/refresh", s.handleRefreshMapping)

			r.Route("/runs", func(r chi.Router) {
				r.Get("/", s.handleListRuns)
				r.Get("/latest", s.handleLatestRun)
				r.Get("/{id}", s.handleGetRun)
			})
		})
	})

	return r
}

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components,omitempty"`
	LastRun    string            `json:"last_run,omitempty"`
	LastError  string            `json:"last_error,omitempty"`
}

// handleHealth returns the server health status. A failing component or a
// failed last run reports "degraded" with 200 so the process is not
// restarted for a controller outage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:  "ok",
		Version: s.version,
	}

	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
		for name, check := range s.checks {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			err := check.HealthCheck(ctx)
			cancel()
			if err != nil {
				resp.Components[name] = err.Error()
				resp.Status = "degraded"
				continue
			}
			resp.Components[name] = "ok"
		}
	}

	if run, err := s.runner.Last(); err == nil {
		resp.LastRun = run.ID
	}
	if err := s.runner.LastError(); err != nil {
		resp.LastError = err.Error()
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}
