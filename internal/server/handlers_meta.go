package server

import (
	"net/http"

	"github.com/Agronaut41/admin-cc/internal/api"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.files.Ping(r.Context()); err != nil {
		s.log().Warn("health check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, api.HealthResponse{Status: "unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, api.HealthResponse{Status: "ok"})
}
