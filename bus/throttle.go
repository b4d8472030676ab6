package bus

import (
	"sync"
	"time"

	"github.com/petal-labs/footplan/runtime"
)

// ThrottleConfig controls the behavior of ThrottledEmitter.
type ThrottleConfig struct {
	// CoalesceInterval is how often to flush coalesced tick events.
	// Default: 100ms
	CoalesceInterval time.Duration
}

// ThrottledEmitter wraps a runtime.EventEmitter and coalesces search.tick
// events. Only the latest tick of each run is kept within an interval; a
// background ticker flushes them. Other events pass through immediately,
// and a search.finished event first flushes the pending tick of its run so
// that a run never reports progress after it finished.
type ThrottledEmitter struct {
	emit     runtime.EventEmitter
	interval time.Duration

	// emitMu serializes calls to emit.
	emitMu sync.Mutex

	mu      sync.Mutex
	pending map[string]runtime.Event // runID -> latest tick
	closed  bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewThrottledEmitter creates a ThrottledEmitter around emit.
func NewThrottledEmitter(emit runtime.EventEmitter, cfg ThrottleConfig) *ThrottledEmitter {
	interval := cfg.CoalesceInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	te := &ThrottledEmitter{
		emit:     emit,
		interval: interval,
		pending:  make(map[string]runtime.Event),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	go te.run()
	return te
}

// Emit sends an event through the throttled emitter.
func (te *ThrottledEmitter) Emit(e runtime.Event) {
	if e.Kind == runtime.EventSearchTick {
		te.mu.Lock()
		defer te.mu.Unlock()
		if !te.closed {
			te.pending[e.RunID] = e
		}
		return
	}

	te.emitMu.Lock()
	defer te.emitMu.Unlock()
	if e.Kind == runtime.EventSearchFinished {
		te.mu.Lock()
		tick, ok := te.pending[e.RunID]
		delete(te.pending, e.RunID)
		te.mu.Unlock()
		if ok {
			te.emit(tick)
		}
	}
	te.emit(e)
}

// Publish implements runtime.EventPublisher so that a ThrottledEmitter can
// stand in front of a bus.
func (te *ThrottledEmitter) Publish(e runtime.Event) {
	te.Emit(e)
}

// Decorator returns an EventEmitterDecorator that routes the events of each
// decorated emitter through its own ThrottledEmitter. The throttled emitter
// is closed once it has passed on search.finished.
func Decorator(cfg ThrottleConfig) runtime.EventEmitterDecorator {
	return func(next runtime.EventEmitter) runtime.EventEmitter {
		te := NewThrottledEmitter(next, cfg)
		return func(e runtime.Event) {
			te.Emit(e)
			if e.Kind == runtime.EventSearchFinished {
				go te.Close()
			}
		}
	}
}

// Close flushes pending ticks and stops the background ticker.
// It is safe to call Close multiple times.
func (te *ThrottledEmitter) Close() {
	te.mu.Lock()
	if te.closed {
		te.mu.Unlock()
		return
	}
	te.closed = true
	te.mu.Unlock()

	close(te.stopCh)
	<-te.doneCh
}

func (te *ThrottledEmitter) run() {
	defer close(te.doneCh)

	ticker := time.NewTicker(te.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			te.flush()
		case <-te.stopCh:
			te.flush()
			return
		}
	}
}

func (te *ThrottledEmitter) flush() {
	te.emitMu.Lock()
	defer te.emitMu.Unlock()

	te.mu.Lock()
	if len(te.pending) == 0 {
		te.mu.Unlock()
		return
	}
	toFlush := te.pending
	te.pending = make(map[string]runtime.Event)
	te.mu.Unlock()

	for _, e := range toFlush {
		te.emit(e)
	}
}
