package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/petal-labs/footplan/loader"
	"github.com/petal-labs/footplan/runtime"
)

// Run statuses reported in run summaries.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunSummary is the history view of one search, rebuilt from its events.
type RunSummary struct {
	RunID         string     `json:"run_id"`
	Scenario      string     `json:"scenario,omitempty"`
	Status        string     `json:"status"`
	Result        string     `json:"result,omitempty"`
	Trigger       string     `json:"trigger,omitempty"`
	ScheduleID    string     `json:"schedule_id,omitempty"`
	Iterations    int        `json:"iterations,omitempty"`
	ExpandedNodes int        `json:"expanded_nodes,omitempty"`
	PathLength    int        `json:"path_length,omitempty"`
	PathCost      float64    `json:"path_cost,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	DurationMs    int64      `json:"duration_ms"`
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreatePlan plans the scenario in the request body and returns the
// outcome once the search is over.
func (s *Server) handleCreatePlan(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if isMaxBytesError(err) {
			writeError(w, http.StatusRequestEntityTooLarge, "BODY_TOO_LARGE", "request body exceeds size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "READ_ERROR", err.Error())
		return
	}

	sc, err := decodeScenario(body)
	if err != nil {
		writeRunAPIError(w, err)
		return
	}

	resp, err := s.runPlan(r.Context(), sc, nil)
	if err != nil {
		writeRunAPIError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleListRuns returns persisted run summaries from the event store,
// newest first.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.eventStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "event store not configured")
		return
	}

	runIDs, err := s.eventStore.RunIDs(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	statusFilter := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status")))
	resultFilter := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("result")))

	runs := make([]RunSummary, 0, len(runIDs))
	for _, runID := range runIDs {
		events, err := s.eventStore.List(r.Context(), runID, 0, 0)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
			return
		}
		summary, ok := summarizeRunEvents(runID, events)
		if !ok {
			continue
		}
		summary = s.reconcileRunSummary(summary, events)

		if statusFilter != "" && summary.Status != statusFilter {
			continue
		}
		if resultFilter != "" && summary.Result != resultFilter {
			continue
		}
		runs = append(runs, summary)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].RunID > runs[j].RunID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	writeJSON(w, http.StatusOK, runs)
}

// handleGetRun returns a run summary by run ID.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.eventStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "event store not configured")
		return
	}

	runID := strings.TrimSpace(r.PathValue("run_id"))
	events, err := s.eventStore.List(r.Context(), runID, 0, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	summary, ok := summarizeRunEvents(runID, events)
	if !ok {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("run %q not found", runID))
		return
	}
	writeJSON(w, http.StatusOK, s.reconcileRunSummary(summary, events))
}

// handleRunEvents replays the stored events of a run, as server-sent events
// when the client accepts them and as a JSON array otherwise. The optional
// "after" query parameter skips events up to that sequence number.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	if s.eventStore == nil {
		writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "event store not configured")
		return
	}

	var after uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_CURSOR", fmt.Sprintf("after: %v", err))
			return
		}
		after = parsed
	}

	events, err := s.eventStore.List(r.Context(), runID, after, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok || !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		if events == nil {
			events = []runtime.Event{}
		}
		writeJSON(w, http.StatusOK, events)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for _, evt := range events {
		jsonData, _ := json.Marshal(evt)
		fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Kind, jsonData)
	}
	flusher.Flush()
}

func summarizeRunEvents(runID string, events []runtime.Event) (RunSummary, bool) {
	if len(events) == 0 {
		return RunSummary{}, false
	}

	summary := RunSummary{
		RunID:     runID,
		Status:    RunStatusRunning,
		StartedAt: events[0].Time.UTC(),
	}

	for _, event := range events {
		switch event.Kind {
		case runtime.EventSearchStarted:
			if event.Time.Before(summary.StartedAt) {
				summary.StartedAt = event.Time.UTC()
			}
			summary.fillTrigger(event.Payload)

		case runtime.EventSearchTick:
			if n := payloadInt(event.Payload, "iterations"); n > summary.Iterations {
				summary.Iterations = n
			}

		case runtime.EventSearchFinished:
			completedAt := event.Time.UTC()
			summary.CompletedAt = &completedAt
			summary.Status = RunStatusCompleted
			summary.Result = payloadString(event.Payload, "result")
			summary.Iterations = payloadInt(event.Payload, "iterations")
			summary.ExpandedNodes = payloadInt(event.Payload, "expanded_nodes")
			summary.PathLength = payloadInt(event.Payload, "path_length")
			summary.PathCost = payloadFloat(event.Payload, "path_cost")
			summary.fillTrigger(event.Payload)
			if event.Elapsed > 0 {
				summary.DurationMs = event.Elapsed.Milliseconds()
			}
		}
	}

	if summary.CompletedAt != nil && summary.DurationMs == 0 {
		if delta := summary.CompletedAt.Sub(summary.StartedAt); delta > 0 {
			summary.DurationMs = delta.Milliseconds()
		}
	}
	return summary, true
}

func (s *RunSummary) fillTrigger(payload map[string]any) {
	if s.Scenario == "" {
		s.Scenario = payloadString(payload, "scenario")
	}
	if s.Trigger == "" {
		s.Trigger = payloadString(payload, "trigger")
	}
	if s.ScheduleID == "" {
		s.ScheduleID = payloadString(payload, "schedule_id")
	}
}

func payloadString(payload map[string]any, key string) string {
	value, _ := payload[key].(string)
	return strings.TrimSpace(value)
}

// payloadFloat reads a numeric payload value. Events read back from SQLite
// carry JSON numbers as float64; events kept in memory keep their Go types.
func payloadFloat(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case json.Number:
		f, _ := v.Float64()
		return f
	default:
		return 0
	}
}

func payloadInt(payload map[string]any, key string) int {
	return int(payloadFloat(payload, key))
}

// --- helpers ---

// diagMessages formats the error diagnostics as "path: message".
func diagMessages(diags []loader.Diagnostic) []string {
	errs := loader.Errors(diags)
	msgs := make([]string, 0, len(errs))
	for _, d := range errs {
		if d.Path != "" {
			msgs = append(msgs, fmt.Sprintf("%s: %s", d.Path, d.Message))
			continue
		}
		msgs = append(msgs, d.Message)
	}
	return msgs
}

// isMaxBytesError checks if the error is from http.MaxBytesReader.
func isMaxBytesError(err error) bool {
	var maxBytesErr *http.MaxBytesError
	return errors.As(err, &maxBytesErr)
}

func writeRunAPIError(w http.ResponseWriter, err error) {
	var runErr *runAPIError
	if errors.As(err, &runErr) {
		writeError(w, runErr.Status, runErr.Code, runErr.Message, runErr.Details...)
		return
	}
	writeError(w, http.StatusInternalServerError, "RUNTIME_ERROR", err.Error())
}
