package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

type scheduleRequest struct {
	Name     string          `json:"name,omitempty"`
	Cron     string          `json:"cron,omitempty"`
	Enabled  *bool           `json:"enabled,omitempty"`
	Scenario json.RawMessage `json:"scenario,omitempty"`
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	if s.scheduleStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "schedules are not configured")
		return
	}

	schedules, err := s.scheduleStore.ListSchedules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if schedules == nil {
		schedules = []Schedule{}
	}
	writeJSON(w, http.StatusOK, schedules)
}

func (s *Server) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	if s.scheduleStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "schedules are not configured")
		return
	}

	var req scheduleRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	now := time.Now().UTC()
	schedule := Schedule{
		ID:        uuid.NewString(),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	updated, err := applyScheduleRequest(schedule, req, true, now)
	if err != nil {
		writeRunAPIError(w, err)
		return
	}

	if err := s.scheduleStore.CreateSchedule(r.Context(), updated); err != nil {
		if errors.Is(err, ErrScheduleExists) {
			writeError(w, http.StatusConflict, "CONFLICT", fmt.Sprintf("schedule %q already exists", updated.ID))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, updated)
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID := r.PathValue("id")
	if s.scheduleStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "schedules are not configured")
		return
	}

	schedule, found, err := s.scheduleStore.GetSchedule(r.Context(), scheduleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("schedule %q not found", scheduleID))
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID := r.PathValue("id")
	if s.scheduleStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "schedules are not configured")
		return
	}

	existing, found, err := s.scheduleStore.GetSchedule(r.Context(), scheduleID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("schedule %q not found", scheduleID))
		return
	}

	var req scheduleRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "PARSE_ERROR", err.Error())
		return
	}

	now := time.Now().UTC()
	next, err := applyScheduleRequest(existing, req, false, now)
	if err != nil {
		writeRunAPIError(w, err)
		return
	}
	next.UpdatedAt = now

	if err := s.scheduleStore.UpdateSchedule(r.Context(), next); err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("schedule %q not found", scheduleID))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID := r.PathValue("id")
	if s.scheduleStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "schedules are not configured")
		return
	}

	if err := s.scheduleStore.DeleteSchedule(r.Context(), scheduleID); err != nil {
		if errors.Is(err, ErrScheduleNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("schedule %q not found", scheduleID))
			return
		}
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// applyScheduleRequest merges req into base and validates the result. The
// next run time is recomputed when the schedule is created, re-enabled or
// given a new cron expression.
func applyScheduleRequest(base Schedule, req scheduleRequest, creating bool, now time.Time) (Schedule, error) {
	currentCron := base.Cron
	wasEnabled := base.Enabled

	if cleanName := strings.TrimSpace(req.Name); cleanName != "" {
		base.Name = cleanName
	}
	if cleanCron := strings.TrimSpace(req.Cron); cleanCron != "" {
		base.Cron = cleanCron
	}
	if req.Enabled != nil {
		base.Enabled = *req.Enabled
	}
	if len(req.Scenario) > 0 {
		base.Scenario = req.Scenario
	}

	if strings.TrimSpace(base.Cron) == "" {
		return Schedule{}, invalidSchedule("cron is required")
	}
	if _, err := ParseCron(base.Cron); err != nil {
		return Schedule{}, invalidSchedule(err.Error())
	}
	if len(base.Scenario) == 0 {
		return Schedule{}, invalidSchedule("scenario is required")
	}
	sc, err := decodeScenario(base.Scenario)
	if err != nil {
		return Schedule{}, err
	}
	if base.Name == "" {
		base.Name = sc.Name
	}

	cronChanged := strings.TrimSpace(currentCron) != "" && currentCron != base.Cron
	if base.Enabled && (creating || cronChanged || !wasEnabled || base.NextRunAt.IsZero()) {
		nextRunAt, err := NextCronRun(base.Cron, now.UTC())
		if err != nil {
			return Schedule{}, invalidSchedule(err.Error())
		}
		base.NextRunAt = nextRunAt
	}

	return base, nil
}

func invalidSchedule(message string) error {
	return &runAPIError{Status: http.StatusBadRequest, Code: "INVALID_SCHEDULE", Message: message}
}

func decodeJSONBody(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}
