package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/flashline-core/internal/schedule"
)

func (s *Server) handleListSchedules(w http.ResponseWriter, _ *http.Request) {
	if s.schedules == nil {
		writeUnavailable(w, "schedules not configured")
		return
	}
	doc, err := s.schedules.Store().Load()
	if err != nil {
		writeInternalError(w, err.Error())
		return
	}
	if doc.Tasks == nil {
		doc.Tasks = []schedule.Entry{}
	}
	writeJSON(w, http.StatusOK, doc)
}

// handleAddSchedule appends an entry to the schedule file.
func (s *Server) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	if s.schedules == nil {
		writeUnavailable(w, "schedules not configured")
		return
	}

	var entry schedule.Entry
	if err := decodeJSON(r, &entry); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.schedules.Save(entry); err != nil {
		if errors.Is(err, schedule.ErrInvalidEntry) {
			writeBadRequest(w, err.Error())
			return
		}
		writeInternalError(w, err.Error())
		return
	}

	s.logger.Info("schedule entry added",
		"device_serial", entry.DeviceSerial,
		"workflow_file", entry.WorkflowFile,
		"actor", actor(r),
	)
	writeJSON(w, http.StatusCreated, entry)
}

// handleResetSchedules lets every connected device match its schedule again.
func (s *Server) handleResetSchedules(w http.ResponseWriter, r *http.Request) {
	if s.schedules == nil {
		writeUnavailable(w, "schedules not configured")
		return
	}
	s.schedules.Reset()
	s.logger.Info("schedule handled set cleared", "actor", actor(r))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
