package api

import (
	"net/http"
	"strings"

	"github.com/nerrad567/flashline-core/internal/batch"
)

type batchRequest struct {
	Serials []string `json:"serials"`
	Action  string   `json:"action"`
}

// handleBatch runs one reboot action across several devices and returns
// the joined job. Progress is streamed on batch.progress meanwhile.
func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	if s.batch == nil {
		writeUnavailable(w, "batch dispatcher not configured")
		return
	}

	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Serials) == 0 {
		writeBadRequest(w, "serials must not be empty")
		return
	}
	if !batch.Supported(req.Action) {
		writeBadRequest(w, "unsupported action: "+req.Action+" (want one of "+strings.Join(batch.Actions(), ", ")+")")
		return
	}

	s.logger.Info("batch requested", "action", req.Action, "devices", len(req.Serials), "actor", actor(r))
	job := s.batch.Execute(r.Context(), req.Serials, req.Action)
	writeJSON(w, http.StatusOK, job)
}
