package runtime

import (
	"context"
	"testing"
)

func TestContextWithEmitter_RoundTrip(t *testing.T) {
	var called bool
	emitter := EventEmitter(func(e Event) { called = true })

	ctx := ContextWithEmitter(context.Background(), emitter)
	got := EmitterFromContext(ctx)
	if got == nil {
		t.Fatal("EmitterFromContext() = nil")
	}

	got(Event{})
	if !called {
		t.Error("emitter from context was not the one we stored")
	}
}

func TestEmitterFromContext_NoEmitter(t *testing.T) {
	if got := EmitterFromContext(context.Background()); got != nil {
		t.Error("EmitterFromContext() without emitter should be nil")
	}
}
