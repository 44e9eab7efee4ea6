package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wattagent/wattmcp-core/internal/command"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Gateway counters (no auth required for basic monitoring)
		r.Get("/metrics", s.handleMetrics)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Device endpoints
			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Get("/live", s.handleGetLiveTelemetry)
					r.Post("/command", s.handleDispatchCommand)
					r.Get("/command/{commandID}", s.handleGetCommandResult)
				})
			})
		})
	})

	return r
}

// handleHealth returns the server health status, probing any configured
// backend components (MQTT, database, InfluxDB).
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	components := map[string]string{}

	for name, check := range s.health {
		if err := check(r.Context()); err != nil {
			status = "degraded"
			components[name] = err.Error()
		} else {
			components[name] = "ok"
		}
	}

	body := map[string]any{
		"status":  status,
		"version": s.version,
	}
	if len(components) > 0 {
		body["components"] = components
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

// handleMetrics returns the correlation engine counters and registry size.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		command.MetricsSnapshot
		Devices int `json:"devices"`
	}{
		MetricsSnapshot: s.engine.Stats(),
		Devices:         len(s.engine.ListDevices()),
	})
}
