package runtime

import "context"

type emitterKey struct{}

// ContextWithEmitter returns a context carrying emit. A search started with
// that context sends its events to emit as well as to the listener's
// configured handler, bus and decorator chain.
func ContextWithEmitter(ctx context.Context, emit EventEmitter) context.Context {
	return context.WithValue(ctx, emitterKey{}, emit)
}

// EmitterFromContext returns the emitter attached to ctx, or nil.
func EmitterFromContext(ctx context.Context) EventEmitter {
	if ctx == nil {
		return nil
	}
	if emit, ok := ctx.Value(emitterKey{}).(EventEmitter); ok {
		return emit
	}
	return nil
}
