// Package sse streams search events to HTTP clients as Server-Sent Events.
// A run stream replays the stored events of the run and then follows it live
// on the event bus; the all-runs stream only follows the bus.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/petal-labs/footplan/bus"
	"github.com/petal-labs/footplan/runtime"
)

// HeartbeatInterval is the default interval between SSE heartbeat comments.
const HeartbeatInterval = 15 * time.Second

// sseEvent is the JSON representation of a search event on the stream.
type sseEvent struct {
	Kind      string         `json:"kind"`
	RunID     string         `json:"run_id"`
	NodeKey   string         `json:"node_key,omitempty"`
	Quadrant  string         `json:"quadrant,omitempty"`
	Time      time.Time      `json:"time"`
	ElapsedMs int64          `json:"elapsed_ms"`
	Payload   map[string]any `json:"payload"`
	Seq       uint64         `json:"seq"`
	TraceID   string         `json:"trace_id,omitempty"`
	SpanID    string         `json:"span_id,omitempty"`
}

func toSSEEvent(e runtime.Event) sseEvent {
	return sseEvent{
		Kind:      string(e.Kind),
		RunID:     e.RunID,
		NodeKey:   e.NodeKey,
		Quadrant:  e.Quadrant,
		Time:      e.Time,
		ElapsedMs: e.Elapsed.Milliseconds(),
		Payload:   e.Payload,
		Seq:       e.Seq,
		TraceID:   e.TraceID,
		SpanID:    e.SpanID,
	}
}

// SSEHandler serves an SSE stream of search events.
//
// With a "run_id" path value it first replays the stored events of that run
// (when a store is set), then follows the run on the bus, skipping events
// whose sequence number was already sent. The stream closes after
// search.finished. Without a run_id it follows every run on the bus until
// the client disconnects.
//
// The optional "after" query parameter is the last sequence number the
// client has seen.
//
// SSE format:
//
//	id: {seq}
//	event: {kind}
//	data: {json}
//
// A heartbeat comment ": ping\n\n" is sent every heartbeat interval.
type SSEHandler struct {
	store     bus.EventStore
	bus       bus.EventBus
	heartbeat time.Duration
}

// NewSSEHandler creates a new SSEHandler. store may be nil.
func NewSSEHandler(store bus.EventStore, eb bus.EventBus) *SSEHandler {
	return &SSEHandler{
		store:     store,
		bus:       eb,
		heartbeat: HeartbeatInterval,
	}
}

// WithHeartbeat sets the heartbeat interval and returns h.
func (h *SSEHandler) WithHeartbeat(d time.Duration) *SSEHandler {
	if d > 0 {
		h.heartbeat = d
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *SSEHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	var afterSeq uint64
	if afterStr := r.URL.Query().Get("after"); afterStr != "" {
		parsed, err := strconv.ParseUint(afterStr, 10, 64)
		if err != nil {
			http.Error(w, "invalid after parameter", http.StatusBadRequest)
			return
		}
		afterSeq = parsed
	}

	// Subscribe before the headers go out and before replaying, so that a
	// client holding the response misses nothing published afterwards.
	var sub bus.Subscription
	if runID == "" {
		sub = h.bus.SubscribeAll()
	} else {
		sub = h.bus.Subscribe(runID)
	}
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()

	if runID == "" {
		h.streamLive(ctx, w, flusher, sub, nil)
		return
	}

	lastSeq := afterSeq
	if h.store != nil {
		finished, err := h.replayStored(ctx, w, flusher, runID, afterSeq, &lastSeq)
		if err != nil || finished {
			return
		}
	}

	h.streamLive(ctx, w, flusher, sub, &lastSeq)
}

// replayStored writes the stored events of the run after afterSeq. It
// reports whether search.finished was among them.
func (h *SSEHandler) replayStored(
	ctx context.Context,
	w http.ResponseWriter,
	flusher http.Flusher,
	runID string,
	afterSeq uint64,
	lastSeq *uint64,
) (finished bool, err error) {
	events, err := h.store.List(ctx, runID, afterSeq, 0)
	if err != nil {
		return false, err
	}

	for _, evt := range events {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}

		if err := writeSSEEvent(w, evt); err != nil {
			return false, err
		}
		flusher.Flush()

		if evt.Seq > *lastSeq {
			*lastSeq = evt.Seq
		}

		if evt.Kind == runtime.EventSearchFinished {
			return true, nil
		}
	}

	return false, nil
}

// streamLive writes events from sub until the context ends. With a
// non-nil lastSeq, events at or below it are skipped and the stream ends
// after search.finished.
func (h *SSEHandler) streamLive(
	ctx context.Context,
	w http.ResponseWriter,
	flusher http.Flusher,
	sub bus.Subscription,
	lastSeq *uint64,
) {
	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-sub.Events():
			if !ok {
				return
			}

			if lastSeq != nil && evt.Seq <= *lastSeq {
				continue
			}

			if err := writeSSEEvent(w, evt); err != nil {
				return
			}
			flusher.Flush()

			if lastSeq == nil {
				continue
			}
			*lastSeq = evt.Seq
			if evt.Kind == runtime.EventSearchFinished {
				return
			}

		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes a single event in SSE format.
func writeSSEEvent(w http.ResponseWriter, evt runtime.Event) error {
	data, err := json.Marshal(toSSEEvent(evt))
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", evt.Seq, evt.Kind, data)
	return err
}
