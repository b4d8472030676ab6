package runtime

import (
	"context"
	"time"

	"github.com/petal-labs/footplan/core"
)

// MultiListener fans notifications out to every non-nil listener, including
// the run boundaries for those implementing RunObserver.
func MultiListener(listeners ...core.Listener) core.Listener {
	var m multiListener
	for _, l := range listeners {
		if l != nil {
			m = append(m, l)
		}
	}
	return m
}

type multiListener []core.Listener

func (m multiListener) NodeAdded(node, parent *core.FootstepNode) {
	for _, l := range m {
		l.NodeAdded(node, parent)
	}
}

func (m multiListener) Rejection(node, parent *core.FootstepNode, reason core.RejectionReason) {
	for _, l := range m {
		l.Rejection(node, parent, reason)
	}
}

func (m multiListener) Tick() {
	for _, l := range m {
		l.Tick()
	}
}

func (m multiListener) PlannerFinished(result core.Result) {
	for _, l := range m {
		l.PlannerFinished(result)
	}
}

func (m multiListener) SearchStarted(ctx context.Context, runID string, start, goal *core.FootstepNode) {
	for _, l := range m {
		if o, ok := l.(RunObserver); ok {
			o.SearchStarted(ctx, runID, start, goal)
		}
	}
}

func (m multiListener) SearchFinished(runID string, outcome Outcome) {
	for _, l := range m {
		if o, ok := l.(RunObserver); ok {
			o.SearchFinished(runID, outcome)
		}
	}
}

// DefaultTickEvery is the number of search iterations per search.tick event.
const DefaultTickEvery = 100

// EventListenerConfig controls where an EventListener sends its events.
type EventListenerConfig struct {
	// Handler receives every event.
	Handler EventHandler

	// Bus distributes events to subscribers. Optional.
	Bus EventPublisher

	// Decorator wraps the emitter, for example to add trace metadata.
	Decorator EventEmitterDecorator

	// NodeEvents enables node.added and node.rejected events. They are
	// numerous, so only run-level events are emitted by default.
	NodeEvents bool

	// TickEvery is the number of iterations between search.tick events
	// (default: DefaultTickEvery).
	TickEvery int

	// Now provides the current time (for testing). If nil, uses time.Now.
	Now func() time.Time
}

// EventListener turns search notifications into Events. It implements
// core.Listener and RunObserver; notifications outside a run are ignored.
type EventListener struct {
	cfg     EventListenerConfig
	emit    EventEmitter
	runID   string
	started time.Time
	ticks   int
}

// NewEventListener returns an EventListener with defaults applied.
func NewEventListener(cfg EventListenerConfig) *EventListener {
	if cfg.TickEvery <= 0 {
		cfg.TickEvery = DefaultTickEvery
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &EventListener{cfg: cfg}
}

// SearchStarted implements RunObserver.
func (l *EventListener) SearchStarted(ctx context.Context, runID string, start, goal *core.FootstepNode) {
	seq := newRunSequence(runID)
	fromCtx := EmitterFromContext(ctx)
	emit := func(e Event) {
		e = seq.Stamp(e)
		if l.cfg.Bus != nil {
			l.cfg.Bus.Publish(e)
		}
		if l.cfg.Handler != nil {
			l.cfg.Handler(e)
		}
		if fromCtx != nil {
			fromCtx(e)
		}
	}
	if l.cfg.Decorator != nil {
		emit = l.cfg.Decorator(emit)
	}
	l.emit = emit
	l.runID = runID
	l.started = l.cfg.Now()
	l.ticks = 0

	l.send(NewEvent(EventSearchStarted, runID).
		WithPayload("start", start.Key().String()).
		WithPayload("goal", goal.Key().String()))
}

// NodeAdded implements core.Listener.
func (l *EventListener) NodeAdded(node, parent *core.FootstepNode) {
	if !l.cfg.NodeEvents || l.emit == nil {
		return
	}
	e := NewEvent(EventNodeAdded, l.runID).WithNode(node)
	if parent != nil {
		e = e.WithPayload("parent", parent.Key().String())
	}
	l.send(e)
}

// Rejection implements core.Listener.
func (l *EventListener) Rejection(node, parent *core.FootstepNode, reason core.RejectionReason) {
	if !l.cfg.NodeEvents || l.emit == nil {
		return
	}
	l.send(NewEvent(EventNodeRejected, l.runID).
		WithNode(node).
		WithPayload("reason", reason.String()))
}

// Tick implements core.Listener.
func (l *EventListener) Tick() {
	if l.emit == nil {
		return
	}
	l.ticks++
	if l.ticks%l.cfg.TickEvery != 0 {
		return
	}
	l.send(NewEvent(EventSearchTick, l.runID).WithPayload("iterations", l.ticks))
}

// PlannerFinished implements core.Listener. The finish event is sent from
// SearchFinished, which also carries the statistics.
func (l *EventListener) PlannerFinished(core.Result) {}

// SearchFinished implements RunObserver.
func (l *EventListener) SearchFinished(runID string, outcome Outcome) {
	if l.emit == nil || runID != l.runID {
		return
	}
	s := outcome.Statistics
	l.send(NewEvent(EventSearchFinished, runID).
		WithPayload("result", outcome.Result.String()).
		WithPayload("iterations", s.Iterations).
		WithPayload("expanded_nodes", s.ExpandedNodes).
		WithPayload("rejected_percent", s.RejectedPercent).
		WithPayload("path_length", len(outcome.Path)).
		WithPayload("path_cost", outcome.PathCost))
	l.emit = nil
	l.runID = ""
}

func (l *EventListener) send(e Event) {
	e.Time = l.cfg.Now()
	e.Elapsed = e.Time.Sub(l.started)
	l.emit(e)
}
