// Package otel exports footstep search events to OpenTelemetry: a span per
// search run, search metrics, and trace IDs stamped onto emitted events.
package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/footplan/core"
	"github.com/petal-labs/footplan/runtime"
)

// TracingHandler translates search events into OpenTelemetry spans. Each run
// gets one span from search.started to search.finished. Ticks become span
// events and rejections are counted onto the span when it ends.
type TracingHandler struct {
	tracer trace.Tracer

	mu   sync.RWMutex
	runs map[string]*runSpan // runID -> span
}

type runSpan struct {
	span       trace.Span
	rejections map[string]int // reason -> count
}

// NewTracingHandler creates a TracingHandler that starts spans on tracer.
func NewTracingHandler(tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer: tracer,
		runs:   make(map[string]*runSpan),
	}
}

// Handle processes a search event and creates or ends spans accordingly.
// It implements runtime.EventHandler semantics.
func (h *TracingHandler) Handle(e runtime.Event) {
	switch e.Kind {
	case runtime.EventSearchStarted:
		h.handleStarted(e)
	case runtime.EventNodeRejected:
		h.handleRejected(e)
	case runtime.EventSearchTick:
		h.handleTick(e)
	case runtime.EventSearchFinished:
		h.handleFinished(e)
	}
}

func (h *TracingHandler) handleStarted(e runtime.Event) {
	_, span := h.tracer.Start(context.Background(), "search:"+e.RunID,
		trace.WithAttributes(
			attribute.String("footplan.run_id", e.RunID),
			attribute.String("footplan.start", payloadString(e, "start")),
			attribute.String("footplan.goal", payloadString(e, "goal")),
		),
		trace.WithTimestamp(e.Time),
	)

	h.mu.Lock()
	h.runs[e.RunID] = &runSpan{span: span, rejections: make(map[string]int)}
	h.mu.Unlock()
}

func (h *TracingHandler) handleRejected(e runtime.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if run, ok := h.runs[e.RunID]; ok {
		run.rejections[payloadString(e, "reason")]++
	}
}

func (h *TracingHandler) handleTick(e runtime.Event) {
	h.mu.RLock()
	run, ok := h.runs[e.RunID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	iterations, _ := payloadInt(e, "iterations")
	run.span.AddEvent(string(e.Kind),
		trace.WithTimestamp(e.Time),
		trace.WithAttributes(attribute.Int("footplan.iterations", iterations)),
	)
}

func (h *TracingHandler) handleFinished(e runtime.Event) {
	h.mu.Lock()
	run, ok := h.runs[e.RunID]
	delete(h.runs, e.RunID)
	h.mu.Unlock()
	if !ok {
		return
	}

	result := payloadString(e, "result")
	iterations, _ := payloadInt(e, "iterations")
	expanded, _ := payloadInt(e, "expanded_nodes")
	pathLength, _ := payloadInt(e, "path_length")
	pathCost, _ := payloadFloat(e, "path_cost")
	run.span.SetAttributes(
		attribute.String("footplan.result", result),
		attribute.String("footplan.duration", e.Elapsed.String()),
		attribute.Int("footplan.iterations", iterations),
		attribute.Int("footplan.expanded_nodes", expanded),
		attribute.Int("footplan.path_length", pathLength),
		attribute.Float64("footplan.path_cost", pathCost),
	)
	for reason, n := range run.rejections {
		run.span.SetAttributes(attribute.Int("footplan.rejections."+reason, n))
	}

	// Infeasible problems are answers, not errors.
	if result == core.PlannerFailed.String() {
		run.span.SetStatus(codes.Error, "planner failed")
	} else {
		run.span.SetStatus(codes.Ok, "")
	}
	run.span.End(trace.WithTimestamp(e.Time))
}

// ActiveRunSpanContext returns the SpanContext of the span of runID, or an
// empty SpanContext when the run has no open span.
func (h *TracingHandler) ActiveRunSpanContext(runID string) trace.SpanContext {
	h.mu.RLock()
	run, ok := h.runs[runID]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return run.span.SpanContext()
}

func payloadString(e runtime.Event, key string) string {
	s, _ := e.Payload[key].(string)
	return s
}

// payloadInt reads an integer payload value. Values restored from JSON are
// float64.
func payloadInt(e runtime.Event, key string) (int, bool) {
	switch v := e.Payload[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

func payloadFloat(e runtime.Event, key string) (float64, bool) {
	switch v := e.Payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}
