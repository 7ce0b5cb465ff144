package http

import (
	"context"
	"net/http"
	"time"

	"fincontrol/internal/log"
)

// healthChecker is implemented by publishers that track their connection.
type healthChecker interface {
	Healthy() bool
}

type healthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Uptime: time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// handleReady reports whether the database answers and templates loaded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok", "templates": "ok"}
	status := http.StatusOK
	if err := s.repo.Ping(ctx); err != nil {
		log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", "check", "database", log.FieldError, err)
		checks["database"] = "unavailable"
		status = http.StatusServiceUnavailable
	}
	if s.templates == nil {
		checks["templates"] = "not loaded"
		status = http.StatusServiceUnavailable
	}
	// events are best effort, so a lost broker degrades but does not fail
	if hc, ok := s.publisher.(healthChecker); ok {
		checks["amqp"] = "ok"
		if !hc.Healthy() {
			checks["amqp"] = "disconnected"
		}
	}

	resp := healthResponse{Status: "ready", Checks: checks}
	if status != http.StatusOK {
		resp.Status = "not ready"
	}
	writeJSON(w, status, resp)
}
