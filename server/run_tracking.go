package server

import (
	"strings"
	"time"

	"github.com/petal-labs/footplan/runtime"
)

// runTrackingDecorator records which runs are in flight and stamps the
// scenario name on the run-level events.
func (s *Server) runTrackingDecorator(scenario string) runtime.EventEmitterDecorator {
	return func(next runtime.EventEmitter) runtime.EventEmitter {
		return func(e runtime.Event) {
			switch e.Kind {
			case runtime.EventSearchStarted:
				s.markRunActive(e.RunID)
			case runtime.EventSearchFinished:
				defer s.markRunInactive(e.RunID)
			}
			if scenario != "" && (e.Kind == runtime.EventSearchStarted || e.Kind == runtime.EventSearchFinished) {
				if e.Payload == nil {
					e.Payload = map[string]any{}
				}
				e.Payload["scenario"] = scenario
			}
			next(e)
		}
	}
}

func (s *Server) markRunActive(runID string) {
	id := strings.TrimSpace(runID)
	if id == "" {
		return
	}
	s.activeRunsMu.Lock()
	s.activeRuns[id] = struct{}{}
	s.activeRunsMu.Unlock()
}

func (s *Server) markRunInactive(runID string) {
	id := strings.TrimSpace(runID)
	if id == "" {
		return
	}
	s.activeRunsMu.Lock()
	delete(s.activeRuns, id)
	s.activeRunsMu.Unlock()
}

func (s *Server) isRunActive(runID string) bool {
	id := strings.TrimSpace(runID)
	if id == "" {
		return false
	}
	s.activeRunsMu.RLock()
	_, ok := s.activeRuns[id]
	s.activeRunsMu.RUnlock()
	return ok
}

// reconcileRunSummary marks a run that never finished and is no longer in
// flight, for example after a restart, as failed.
func (s *Server) reconcileRunSummary(summary RunSummary, events []runtime.Event) RunSummary {
	if summary.Status != RunStatusRunning {
		return summary
	}
	if s.isRunActive(summary.RunID) {
		return summary
	}

	summary.Status = RunStatusFailed
	if summary.CompletedAt == nil {
		last := latestEventTime(events)
		if last.IsZero() {
			last = summary.StartedAt
		}
		completedAt := last.UTC()
		summary.CompletedAt = &completedAt
	}
	if summary.DurationMs == 0 && summary.CompletedAt != nil {
		if delta := summary.CompletedAt.Sub(summary.StartedAt); delta > 0 {
			summary.DurationMs = delta.Milliseconds()
		}
	}
	return summary
}

func latestEventTime(events []runtime.Event) time.Time {
	var latest time.Time
	for _, event := range events {
		if event.Time.After(latest) {
			latest = event.Time
		}
	}
	return latest
}
