package api

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/flashline-core/internal/engine"
	"github.com/nerrad567/flashline-core/internal/plan"
)

// startRunRequest is the body of POST /runs. Exactly one of PlanPath and
// Plan must be set.
type startRunRequest struct {
	Serial   string `json:"serial,omitempty"`
	PlanPath string `json:"plan_path,omitempty"`
	Plan     string `json:"plan,omitempty"`
}

// handleValidatePlan parses a raw YAML plan from the body.
func (s *Server) handleValidatePlan(w http.ResponseWriter, r *http.Request) {
	p, err := plan.Read(r.Body)
	if err != nil {
		writePlanError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"plan":  p,
	})
}

// handleStartRun launches a plan in the background and answers 202.
func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	p, err := s.loadRequestPlan(req)
	if err != nil {
		writePlanError(w, err)
		return
	}

	key := engine.RunKey(req.Serial, p)
	if key == "" {
		writeBadRequest(w, "serial is required when the plan has no device target")
		return
	}

	info, err := s.runs.Start(r.Context(), key, p)
	switch {
	case errors.Is(err, engine.ErrRunInProgress):
		writeConflict(w, "a run is already in progress for "+key)
		return
	case err != nil:
		writePlanError(w, err)
		return
	}

	s.logger.Info("run started via API", "key", key, "plan", p.Name, "run_id", info.ID, "actor", actor(r))
	writeJSON(w, http.StatusAccepted, info)
}

// loadRequestPlan resolves the plan named by a start request.
func (s *Server) loadRequestPlan(req startRunRequest) (*plan.Plan, error) {
	switch {
	case req.PlanPath != "" && req.Plan != "":
		return nil, errBadRequest("set either plan_path or plan, not both")
	case req.Plan != "":
		return plan.Parse([]byte(req.Plan))
	case req.PlanPath != "":
		path, err := s.resolvePlanPath(req.PlanPath)
		if err != nil {
			return nil, err
		}
		return plan.LoadFile(path)
	default:
		return nil, errBadRequest("plan_path or plan is required")
	}
}

// resolvePlanPath joins relative paths onto the workflows directory and
// refuses any path, relative or absolute, that lands outside it.
func (s *Server) resolvePlanPath(path string) (string, error) {
	if s.workflowsDir == "" {
		return path, nil
	}
	root := filepath.Clean(s.workflowsDir)
	resolved := filepath.Clean(path)
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errBadRequest("plan_path escapes the workflows directory")
	}
	return resolved, nil
}

// handleListRuns returns the latest run of every key.
func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	runs := s.runs.Runs()
	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	info, err := s.runs.Get(key)
	if err != nil {
		writeRunError(w, key, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handlePauseRun arms a pause. An idle key is accepted so the pause applies
// to the next run.
func (s *Server) handlePauseRun(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	s.runs.Pause(key)
	s.logger.Info("run paused via API", "key", key, "actor", actor(r))
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "status": "pause_requested"})
}

func (s *Server) handleResumeRun(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.runs.Resume(key); err != nil {
		writeRunError(w, key, err)
		return
	}
	s.logger.Info("run resumed via API", "key", key, "actor", actor(r))
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "status": "resumed"})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if err := s.runs.Cancel(key); err != nil {
		writeRunError(w, key, err)
		return
	}
	s.logger.Info("run cancelled via API", "key", key, "actor", actor(r))
	writeJSON(w, http.StatusAccepted, map[string]string{"key": key, "status": "cancel_requested"})
}

func writeRunError(w http.ResponseWriter, key string, err error) {
	if errors.Is(err, engine.ErrRunNotFound) {
		writeNotFound(w, "no run for "+key)
		return
	}
	writeInternalError(w, err.Error())
}

// badRequestError marks request-shape problems found while loading a plan.
type badRequestError string

func (e badRequestError) Error() string { return string(e) }

func errBadRequest(msg string) error { return badRequestError(msg) }

// writePlanError maps plan loading failures onto status codes.
func writePlanError(w http.ResponseWriter, err error) {
	var bad badRequestError
	switch {
	case errors.As(err, &bad):
		writeBadRequest(w, bad.Error())
	case errors.Is(err, fs.ErrNotExist):
		writeNotFound(w, "plan file not found")
	case errors.Is(err, plan.ErrEmptyPlan),
		errors.Is(err, plan.ErrInvalidDocument),
		errors.Is(err, plan.ErrUnknownStepType):
		writeValidation(w, err.Error())
	default:
		writeInternalError(w, fmt.Sprintf("loading plan: %v", err))
	}
}
