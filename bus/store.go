package bus

import (
	"context"
	"fmt"

	"github.com/petal-labs/footplan/runtime"
)

// EventStore persists search events for replay.
type EventStore interface {
	// Append stores an event.
	Append(ctx context.Context, event runtime.Event) error

	// List returns events for a run in Seq order.
	// afterSeq: return events with Seq > afterSeq (0 means all)
	// limit: max events to return (0 means no limit)
	List(ctx context.Context, runID string, afterSeq uint64, limit int) ([]runtime.Event, error)

	// LatestSeq returns the highest Seq for a run (0 if no events).
	LatestSeq(ctx context.Context, runID string) (uint64, error)

	// RunIDs returns the distinct run IDs in the store, sorted.
	RunIDs(ctx context.Context) ([]string, error)
}

// DefaultReplayPageSize is the number of events Replay reads per query.
const DefaultReplayPageSize = 500

// Replay streams the stored events of runID to handler in Seq order,
// starting after afterSeq. It returns the number of events replayed.
func Replay(ctx context.Context, store EventStore, runID string, afterSeq uint64, handler runtime.EventHandler) (int, error) {
	total := 0
	cursor := afterSeq
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		page, err := store.List(ctx, runID, cursor, DefaultReplayPageSize)
		if err != nil {
			return total, fmt.Errorf("replay %s after seq %d: %w", runID, cursor, err)
		}
		for _, e := range page {
			handler(e)
			cursor = e.Seq
		}
		total += len(page)
		if len(page) < DefaultReplayPageSize {
			return total, nil
		}
	}
}
