package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/petal-labs/footplan"
	"github.com/petal-labs/footplan/bus"
	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/loader"
	"github.com/petal-labs/footplan/runtime"
)

type runAPIError struct {
	Status  int
	Code    string
	Message string
	Details []string
}

func (e *runAPIError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// PlanResponse is the outcome of one planning request.
type PlanResponse struct {
	RunID       string             `json:"run_id"`
	Name        string             `json:"name,omitempty"`
	Result      string             `json:"result"`
	Valid       bool               `json:"valid_for_execution"`
	Horizon     float64            `json:"horizon_fraction,omitempty"`
	Statistics  core.Statistics    `json:"statistics"`
	Rejections  map[string]int     `json:"rejections,omitempty"`
	Plan        *core.FootstepPlan `json:"plan,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt time.Time          `json:"completed_at"`
	DurationMs  int64              `json:"duration_ms"`
}

type scheduledRunMetadata struct {
	ScheduleID  string
	ScheduledAt time.Time
}

// decodeScenario decodes and validates a JSON scenario body.
func decodeScenario(body []byte) (*loader.Scenario, error) {
	sc, err := loader.Decode(body, loader.FormatJSON)
	if err != nil {
		return nil, &runAPIError{Status: http.StatusBadRequest, Code: "PARSE_ERROR", Message: err.Error()}
	}
	if diags := loader.Validate(sc); loader.HasErrors(diags) {
		return nil, &runAPIError{
			Status:  http.StatusUnprocessableEntity,
			Code:    "VALIDATION_ERROR",
			Message: "scenario validation failed",
			Details: diagMessages(diags),
		}
	}
	return sc, nil
}

// runPlan builds the planner sc describes, runs it to completion and
// returns the outcome. Events go to the bus, the event store and the
// configured handlers, decorated with run tracking and extraDecorator.
func (s *Server) runPlan(ctx context.Context, sc *loader.Scenario, extraDecorator runtime.EventEmitterDecorator) (PlanResponse, error) {
	if timeout := sc.PlanningTimeout(); timeout > s.maxPlanTimeout {
		sc.Timeout = loader.Duration(s.maxPlanTimeout)
	}

	handler := s.runtimeEvents
	if s.eventStore != nil {
		sub := bus.NewStoreSubscriber(s.eventStore, s.logger)
		handler = runtime.MultiEventHandler(handler, sub.Handle)
	}
	cfg := runtime.EventListenerConfig{
		Handler:    handler,
		Decorator:  combineEmitDecorators(combineEmitDecorators(s.emitDecorator, s.runTrackingDecorator(sc.Name)), extraDecorator),
		NodeEvents: s.nodeEvents,
	}
	if s.bus != nil {
		cfg.Bus = s.bus
		if s.tickCoalesce > 0 {
			te := bus.NewThrottledEmitter(s.bus.Publish, bus.ThrottleConfig{CoalesceInterval: s.tickCoalesce})
			defer te.Close()
			cfg.Bus = te
		}
	}

	builder := footplan.NewPlannerBuilder().
		WithListener(runtime.NewEventListener(cfg)).
		WithLogger(s.logger)
	planner, err := sc.NewPlanner(builder)
	if err != nil {
		return PlanResponse{}, &runAPIError{Status: http.StatusUnprocessableEntity, Code: "PLANNER_ERROR", Message: err.Error()}
	}

	startedAt := time.Now().UTC()
	result, err := planner.Plan(ctx)
	completedAt := time.Now().UTC()
	if err != nil {
		return PlanResponse{}, &runAPIError{Status: http.StatusInternalServerError, Code: "RUNTIME_ERROR", Message: err.Error()}
	}
	if result == core.TimedOutBeforeSolution && ctx.Err() != nil {
		return PlanResponse{}, &runAPIError{Status: http.StatusGatewayTimeout, Code: "TIMEOUT", Message: fmt.Sprintf("run %s interrupted: %v", planner.RunID(), ctx.Err())}
	}

	stats := planner.Statistics()
	resp := PlanResponse{
		RunID:       planner.RunID(),
		Name:        sc.Name,
		Result:      result.String(),
		Valid:       result.ValidForExecution(),
		Statistics:  stats,
		Rejections:  stats.RejectionCounts(),
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		DurationMs:  completedAt.Sub(startedAt).Milliseconds(),
	}
	if horizon, ok := planner.(*footplan.HorizonPlanner); ok {
		resp.Horizon = horizon.HorizonFraction()
	}
	if result.ValidForExecution() {
		resp.Plan = planner.GetPlan()
	}
	return resp, nil
}

func (s *Server) runScheduledPlan(ctx context.Context, schedule Schedule, scheduledAt time.Time) (PlanResponse, error) {
	sc, err := decodeScenario(schedule.Scenario)
	if err != nil {
		return PlanResponse{}, err
	}
	if sc.Name == "" {
		sc.Name = schedule.Name
	}
	decorator := scheduleRunMetadataDecorator(scheduledRunMetadata{
		ScheduleID:  schedule.ID,
		ScheduledAt: scheduledAt,
	})
	return s.runPlan(ctx, sc, decorator)
}

func combineEmitDecorators(
	first runtime.EventEmitterDecorator,
	second runtime.EventEmitterDecorator,
) runtime.EventEmitterDecorator {
	switch {
	case first == nil:
		return second
	case second == nil:
		return first
	default:
		return func(emit runtime.EventEmitter) runtime.EventEmitter {
			return second(first(emit))
		}
	}
}

func scheduleRunMetadataDecorator(meta scheduledRunMetadata) runtime.EventEmitterDecorator {
	return func(next runtime.EventEmitter) runtime.EventEmitter {
		return func(e runtime.Event) {
			if e.Kind == runtime.EventSearchStarted || e.Kind == runtime.EventSearchFinished {
				if e.Payload == nil {
					e.Payload = map[string]any{}
				}
				e.Payload["trigger"] = "schedule"
				e.Payload["schedule_id"] = meta.ScheduleID
				e.Payload["scheduled_at"] = meta.ScheduledAt.UTC().Format(time.RFC3339Nano)
			}
			next(e)
		}
	}
}
