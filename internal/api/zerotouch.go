package api

import (
	"net/http"

	"github.com/nerrad567/flashline-core/internal/zerotouch"
)

func (s *Server) handleGetZeroTouch(w http.ResponseWriter, _ *http.Request) {
	if s.zeroTouch == nil {
		writeUnavailable(w, "zero-touch not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.zeroTouch.Snapshot())
}

// handleConfigureZeroTouch replaces the zero-touch configuration. Devices
// already processed stay processed.
func (s *Server) handleConfigureZeroTouch(w http.ResponseWriter, r *http.Request) {
	if s.zeroTouch == nil {
		writeUnavailable(w, "zero-touch not configured")
		return
	}

	var cfg zerotouch.Config
	if err := decodeJSON(r, &cfg); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cfg.PlanPath != "" {
		path, err := s.resolvePlanPath(cfg.PlanPath)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		cfg.PlanPath = path
	}
	if err := cfg.Validate(); err != nil {
		writeValidation(w, err.Error())
		return
	}

	s.zeroTouch.Configure(cfg)
	s.logger.Info("zero-touch configured",
		"enabled", cfg.Enabled,
		"target_serial", cfg.TargetSerial,
		"plan_path", cfg.PlanPath,
		"countdown_seconds", cfg.CountdownSeconds,
		"actor", actor(r),
	)
	writeJSON(w, http.StatusOK, s.zeroTouch.Snapshot())
}

func (s *Server) handleCancelZeroTouch(w http.ResponseWriter, r *http.Request) {
	if s.zeroTouch == nil {
		writeUnavailable(w, "zero-touch not configured")
		return
	}
	cancelled := s.zeroTouch.CancelCountdown()
	if cancelled {
		s.logger.Info("zero-touch countdown cancelled", "actor", actor(r))
	}
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": cancelled})
}

func (s *Server) handleResetZeroTouch(w http.ResponseWriter, r *http.Request) {
	if s.zeroTouch == nil {
		writeUnavailable(w, "zero-touch not configured")
		return
	}
	s.zeroTouch.Reset()
	s.logger.Info("zero-touch processed set cleared", "actor", actor(r))
	writeJSON(w, http.StatusOK, s.zeroTouch.Snapshot())
}
