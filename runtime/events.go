// Package runtime provides the search engine that plans footstep sequences
// over the lattice, and the events it emits while doing so.
package runtime

import (
	"time"

	"github.com/petal-labs/footplan/core"
)

// EventKind identifies the type of event emitted during a search.
type EventKind string

const (
	// EventSearchStarted is emitted when a search begins.
	EventSearchStarted EventKind = "search.started"

	// EventNodeAdded is emitted when a candidate is accepted into the graph.
	EventNodeAdded EventKind = "node.added"

	// EventNodeRejected is emitted when a candidate fails a validity check.
	EventNodeRejected EventKind = "node.rejected"

	// EventSearchTick is emitted periodically while the search loop runs.
	EventSearchTick EventKind = "search.tick"

	// EventSearchFinished is emitted when a search completes, with the result
	// and statistics in the payload.
	EventSearchFinished EventKind = "search.finished"
)

// String returns the string representation of the EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is a structured, streamable record of what happened during a search.
// Events should be kept small; node events carry only the lattice key.
type Event struct {
	// Kind identifies the event type.
	Kind EventKind

	// RunID is the unique identifier for this search.
	RunID string

	// NodeKey is the lattice key of the node concerned (empty for run-level events).
	NodeKey string

	// Quadrant is the moving quadrant of the node (empty for run-level events).
	Quadrant string

	// Time is when the event occurred.
	Time time.Time

	// Elapsed is the duration since the search started.
	Elapsed time.Duration

	// Payload contains event-specific data.
	Payload map[string]any

	// Seq is a monotonic sequence number per run (1-indexed).
	Seq uint64

	// TraceID is the OpenTelemetry trace ID (hex-encoded, empty when OTel inactive).
	TraceID string

	// SpanID is the OpenTelemetry span ID (hex-encoded, empty when OTel inactive).
	SpanID string
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(kind EventKind, runID string) Event {
	return Event{
		Kind:    kind,
		RunID:   runID,
		Time:    time.Now(),
		Payload: make(map[string]any),
	}
}

// WithNode sets the node information on the event.
func (e Event) WithNode(node *core.FootstepNode) Event {
	if node == nil {
		return e
	}
	e.NodeKey = node.Key().String()
	e.Quadrant = node.MovingQuadrant().String()
	return e
}

// WithElapsed sets the elapsed duration on the event.
func (e Event) WithElapsed(elapsed time.Duration) Event {
	e.Elapsed = elapsed
	return e
}

// WithPayload adds a key-value pair to the event payload.
func (e Event) WithPayload(key string, value any) Event {
	if e.Payload == nil {
		e.Payload = make(map[string]any)
	}
	e.Payload[key] = value
	return e
}

// EventEmitter is a function type for emitting events.
type EventEmitter func(Event)

// EventEmitterDecorator wraps an emitter to add cross-cutting behavior.
// Typical uses include enriching emitted events (for example with trace metadata).
type EventEmitterDecorator func(EventEmitter) EventEmitter

// EventPublisher can publish events to external subscribers.
// This interface is satisfied by bus.EventBus, allowing the runtime
// to distribute events without importing the bus package directly.
type EventPublisher interface {
	Publish(event Event)
}

// EventHandler is a function type for handling events.
// Implementations can log, store, or forward events as needed.
type EventHandler func(Event)

// MultiEventHandler combines multiple handlers into one.
func MultiEventHandler(handlers ...EventHandler) EventHandler {
	return func(e Event) {
		for _, h := range handlers {
			if h != nil {
				h(e)
			}
		}
	}
}

// ChannelEventHandler returns a handler that sends events to a channel.
// The channel should have sufficient buffer to avoid blocking.
// Events are dropped if the channel is full.
func ChannelEventHandler(ch chan<- Event) EventHandler {
	return func(e Event) {
		select {
		case ch <- e:
		default:
			// Drop event if channel is full
		}
	}
}
