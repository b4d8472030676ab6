package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/footplan/runtime"
)

// MetricsHandler translates search events into OpenTelemetry metrics:
// runs by result, expansions, rejections by reason, planning time and path
// cost.
type MetricsHandler struct {
	runs         metric.Int64Counter
	expansions   metric.Int64Counter
	rejections   metric.Int64Counter
	planningTime metric.Float64Histogram
	pathCost     metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler with instruments from meter.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	runs, err := meter.Int64Counter("footplan.search.runs",
		metric.WithDescription("Number of finished searches"),
	)
	if err != nil {
		return nil, err
	}

	expansions, err := meter.Int64Counter("footplan.search.expansions",
		metric.WithDescription("Number of expanded lattice nodes"),
	)
	if err != nil {
		return nil, err
	}

	rejections, err := meter.Int64Counter("footplan.search.rejections",
		metric.WithDescription("Number of rejected candidate nodes"),
	)
	if err != nil {
		return nil, err
	}

	planningTime, err := meter.Float64Histogram("footplan.search.duration",
		metric.WithDescription("Duration of a search in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	pathCost, err := meter.Float64Histogram("footplan.plan.path_cost",
		metric.WithDescription("Summed edge cost of found paths"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		runs:         runs,
		expansions:   expansions,
		rejections:   rejections,
		planningTime: planningTime,
		pathCost:     pathCost,
	}, nil
}

// Handle processes a search event and records the appropriate metrics.
// It implements runtime.EventHandler semantics.
func (h *MetricsHandler) Handle(e runtime.Event) {
	switch e.Kind {
	case runtime.EventNodeRejected:
		h.rejections.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("reason", payloadString(e, "reason")),
			attribute.String("quadrant", e.Quadrant),
		))
	case runtime.EventSearchFinished:
		h.handleFinished(e)
	}
}

func (h *MetricsHandler) handleFinished(e runtime.Event) {
	ctx := context.Background()
	result := metric.WithAttributes(attribute.String("result", payloadString(e, "result")))

	h.runs.Add(ctx, 1, result)
	h.planningTime.Record(ctx, e.Elapsed.Seconds(), result)
	if expanded, ok := payloadInt(e, "expanded_nodes"); ok && expanded > 0 {
		h.expansions.Add(ctx, int64(expanded))
	}
	if length, _ := payloadInt(e, "path_length"); length > 0 {
		if cost, ok := payloadFloat(e, "path_cost"); ok {
			h.pathCost.Record(ctx, cost)
		}
	}
}
