package api

import "net/http"

// handleListDevices returns the latest watcher snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": s.registry.List(),
		"stats":   s.registry.Stats(),
	})
}
