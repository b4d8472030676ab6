package bus

import (
	"slices"
	"sync"

	"github.com/petal-labs/footplan/runtime"
)

// MemBusConfig configures an in-memory event bus.
type MemBusConfig struct {
	// SubscriberBufferSize is the channel buffer size per subscriber (default: 256).
	// Node events of a large search easily exceed it; slow subscribers lose
	// events rather than stall the search.
	SubscriberBufferSize int
}

// MemBus is an in-memory event bus.
type MemBus struct {
	mu         sync.RWMutex
	subs       map[string][]*memSub // runID -> subscribers
	globalSubs []*memSub
	bufSize    int
	closed     bool
}

// NewMemBus creates a new in-memory event bus with the given configuration.
func NewMemBus(config MemBusConfig) *MemBus {
	bufSize := config.SubscriberBufferSize
	if bufSize <= 0 {
		bufSize = 256
	}
	return &MemBus{
		subs:    make(map[string][]*memSub),
		bufSize: bufSize,
	}
}

// Publish sends an event to the subscribers of its run and to every global
// subscriber. Events published after Close are dropped.
func (b *MemBus) Publish(event runtime.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for _, sub := range b.subs[event.RunID] {
		sub.send(event)
	}
	for _, sub := range b.globalSubs {
		sub.send(event)
	}
}

// Subscribe registers a subscriber for a single search run.
func (b *MemBus) Subscribe(runID string) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := b.newSub(runID, false)
	b.subs[runID] = append(b.subs[runID], sub)
	return sub
}

// SubscribeAll registers a subscriber that receives events from all runs.
func (b *MemBus) SubscribeAll() Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := b.newSub("", true)
	b.globalSubs = append(b.globalSubs, sub)
	return sub
}

// SubscriberCount returns the number of open subscriptions for runID, not
// counting global subscribers.
func (b *MemBus) SubscriberCount(runID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[runID])
}

// Close shuts down the bus and all active subscriptions.
func (b *MemBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.close()
		}
	}
	for _, sub := range b.globalSubs {
		sub.close()
	}
	b.subs = make(map[string][]*memSub)
	b.globalSubs = nil
	return nil
}

func (b *MemBus) newSub(runID string, global bool) *memSub {
	sub := &memSub{ch: make(chan runtime.Event, b.bufSize)}
	if b.closed {
		sub.close()
		return sub
	}
	sub.detach = func() { b.remove(runID, global, sub) }
	return sub
}

// remove drops sub from the bus so that finished runs do not accumulate
// subscriber slices.
func (b *MemBus) remove(runID string, global bool, sub *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if global {
		b.globalSubs = slices.DeleteFunc(b.globalSubs, func(s *memSub) bool { return s == sub })
		return
	}
	remaining := slices.DeleteFunc(b.subs[runID], func(s *memSub) bool { return s == sub })
	if len(remaining) == 0 {
		delete(b.subs, runID)
		return
	}
	b.subs[runID] = remaining
}

// memSub is an in-memory subscription.
type memSub struct {
	ch     chan runtime.Event
	detach func()

	mu     sync.Mutex
	closed bool
}

// Events returns a channel of events for this subscription.
func (s *memSub) Events() <-chan runtime.Event {
	return s.ch
}

// Close unsubscribes and releases resources. It is safe to call Close more
// than once.
func (s *memSub) Close() error {
	if s.close() && s.detach != nil {
		s.detach()
	}
	return nil
}

// close closes the channel once and reports whether this call closed it.
func (s *memSub) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.closed = true
	close(s.ch)
	return true
}

// send delivers an event without blocking. Events are dropped when the
// buffer is full or the subscription is closed.
func (s *memSub) send(event runtime.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	select {
	case s.ch <- event:
	default:
	}
}

// Compile-time interface checks.
var _ EventBus = (*MemBus)(nil)
var _ Subscription = (*memSub)(nil)
var _ runtime.EventPublisher = (*MemBus)(nil)
