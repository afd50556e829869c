package api

import (
	"net/http"

	"github.com/nerrad567/flashline-core/internal/safety"
)

// handleSafetyCheck assesses a planned flash against the brick-risk rules.
func (s *Server) handleSafetyCheck(w http.ResponseWriter, r *http.Request) {
	if s.safety == nil {
		writeUnavailable(w, "safety rules not configured")
		return
	}

	var c safety.Context
	if err := decodeJSON(r, &c); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if c.DeviceModel == "" {
		writeBadRequest(w, "device_model is required")
		return
	}
	writeJSON(w, http.StatusOK, s.safety.Check(c))
}
