package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get("/ws", s.handleWebSocket)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)

			r.Route("/{label}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Post("/invoke", s.handleInvoke)
			})
		})
	})

	return r
}

// stateRunning is the lifecycle state in which the emulator is healthy.
const stateRunning = "RUNNING"

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string `json:"status"`
	State         string `json:"state"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	StreamClients int    `json:"stream_clients"`
}

// handleHealth reports the lifecycle state. Any state other than RUNNING
// answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.state()
	resp := HealthResponse{
		Status:        "ok",
		State:         state,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		StreamClients: s.hub.ClientCount(),
	}
	status := http.StatusOK
	if state != stateRunning {
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}
