package otel_test

import (
	"context"
	"testing"
	"time"

	otelcodes "go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/petal-labs/footplan"
	"github.com/petal-labs/footplan/core"
	foototel "github.com/petal-labs/footplan/otel"
	"github.com/petal-labs/footplan/runtime"
)

// newTestTracer returns a tracer backed by an in-memory span exporter.
func newTestTracer() (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	return exporter, tp
}

func attrs(s tracetest.SpanStub) map[string]any {
	out := make(map[string]any)
	for _, a := range s.Attributes {
		out[string(a.Key)] = a.Value.AsInterface()
	}
	return out
}

func started(runID string, at time.Time) runtime.Event {
	return runtime.Event{
		Kind:    runtime.EventSearchStarted,
		RunID:   runID,
		Time:    at,
		Payload: map[string]any{"start": "s", "goal": "g"},
	}
}

func finished(runID string, at time.Time, result core.Result) runtime.Event {
	return runtime.Event{
		Kind:    runtime.EventSearchFinished,
		RunID:   runID,
		Time:    at,
		Elapsed: 250 * time.Millisecond,
		Payload: map[string]any{
			"result":         result.String(),
			"iterations":     12,
			"expanded_nodes": 11,
			"path_length":    5,
			"path_cost":      2.5,
		},
	}
}

func TestTracingHandler_SpanPerRun(t *testing.T) {
	exporter, tp := newTestTracer()
	h := foototel.NewTracingHandler(tp.Tracer("test"))
	now := time.Now()

	h.Handle(started("run-1", now))
	if !h.ActiveRunSpanContext("run-1").IsValid() {
		t.Fatal("expected a valid span context after search.started")
	}
	if len(exporter.GetSpans()) != 0 {
		t.Fatal("span should stay open until search.finished")
	}

	h.Handle(runtime.Event{Kind: runtime.EventNodeRejected, RunID: "run-1", Payload: map[string]any{"reason": "STEP_TOO_FAR"}})
	h.Handle(runtime.Event{Kind: runtime.EventNodeRejected, RunID: "run-1", Payload: map[string]any{"reason": "STEP_TOO_FAR"}})
	h.Handle(runtime.Event{Kind: runtime.EventSearchTick, RunID: "run-1", Time: now, Payload: map[string]any{"iterations": 100}})
	h.Handle(finished("run-1", now.Add(250*time.Millisecond), core.SubOptimalSolution))

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name != "search:run-1" {
		t.Errorf("span name = %q, want search:run-1", span.Name)
	}
	a := attrs(span)
	if a["footplan.run_id"] != "run-1" || a["footplan.result"] != "SUB_OPTIMAL_SOLUTION" {
		t.Errorf("attributes = %v", a)
	}
	if a["footplan.expanded_nodes"] != int64(11) || a["footplan.path_cost"] != 2.5 {
		t.Errorf("statistics attributes = %v", a)
	}
	if a["footplan.rejections.STEP_TOO_FAR"] != int64(2) {
		t.Errorf("rejection count attribute = %v, want 2", a["footplan.rejections.STEP_TOO_FAR"])
	}
	if len(span.Events) != 1 || span.Events[0].Name != "search.tick" {
		t.Errorf("span events = %v, want one search.tick", span.Events)
	}
	if span.Status.Code != otelcodes.Ok {
		t.Errorf("status = %v, want Ok", span.Status.Code)
	}
	if h.ActiveRunSpanContext("run-1").IsValid() {
		t.Error("span context should be gone after search.finished")
	}
}

func TestTracingHandler_Status(t *testing.T) {
	tests := []struct {
		result core.Result
		want   otelcodes.Code
	}{
		{core.OptimalSolution, otelcodes.Ok},
		{core.NoPathExists, otelcodes.Ok},
		{core.TimedOutBeforeSolution, otelcodes.Ok},
		{core.PlannerFailed, otelcodes.Error},
	}
	for _, tt := range tests {
		t.Run(tt.result.String(), func(t *testing.T) {
			exporter, tp := newTestTracer()
			h := foototel.NewTracingHandler(tp.Tracer("test"))
			h.Handle(started("run-1", time.Now()))
			h.Handle(finished("run-1", time.Now(), tt.result))

			if got := exporter.GetSpans()[0].Status.Code; got != tt.want {
				t.Errorf("status = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTracingHandler_IgnoresUnknownRuns(t *testing.T) {
	exporter, tp := newTestTracer()
	h := foototel.NewTracingHandler(tp.Tracer("test"))

	h.Handle(runtime.Event{Kind: runtime.EventSearchTick, RunID: "nope"})
	h.Handle(runtime.Event{Kind: runtime.EventNodeRejected, RunID: "nope"})
	h.Handle(finished("nope", time.Now(), core.OptimalSolution))

	if len(exporter.GetSpans()) != 0 {
		t.Error("events of unknown runs should not create spans")
	}
}

func TestTracingHandler_ConcurrentRuns(t *testing.T) {
	exporter, tp := newTestTracer()
	h := foototel.NewTracingHandler(tp.Tracer("test"))
	now := time.Now()

	h.Handle(started("run-a", now))
	h.Handle(started("run-b", now))
	a, b := h.ActiveRunSpanContext("run-a"), h.ActiveRunSpanContext("run-b")
	if a.SpanID() == b.SpanID() {
		t.Error("runs should have distinct spans")
	}
	h.Handle(finished("run-b", now, core.OptimalSolution))
	h.Handle(finished("run-a", now, core.OptimalSolution))

	if got := len(exporter.GetSpans()); got != 2 {
		t.Errorf("got %d spans, want 2", got)
	}
}

func TestTracing_PlannerRun(t *testing.T) {
	exporter, tp := newTestTracer()
	tracing := foototel.NewTracingHandler(tp.Tracer("test"))

	var events []runtime.Event
	listener := runtime.NewEventListener(runtime.EventListenerConfig{
		Handler: runtime.MultiEventHandler(tracing.Handle, func(e runtime.Event) {
			events = append(events, e)
		}),
		Decorator: foototel.Decorator(tracing),
	})
	planner := footplan.NewPlannerBuilder().WithListener(listener).MustBuild()
	_ = planner.SetStart(core.PoseTarget(0, 0, 0, 0))
	_ = planner.SetGoal(core.PoseTarget(0.4, 0, 0, 0))

	result, err := planner.Plan(context.Background())
	if err != nil || !result.ValidForExecution() {
		t.Fatalf("Plan() = %v, %v", result, err)
	}

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("got %d spans, want 1", len(spans))
	}
	if got := attrs(spans[0])["footplan.run_id"]; got != planner.RunID() {
		t.Errorf("span run_id = %v, want %v", got, planner.RunID())
	}

	// The start event is emitted before the span exists; the rest carry it.
	last := events[len(events)-1]
	if last.Kind != runtime.EventSearchFinished {
		t.Fatalf("last event = %v, want search.finished", last.Kind)
	}
	if last.TraceID != spans[0].SpanContext.TraceID().String() {
		t.Errorf("finished event TraceID = %q, want the run span's", last.TraceID)
	}
}
