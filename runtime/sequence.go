package runtime

import "sync/atomic"

// runSequence numbers the events of one search run. Every run starts again
// at 1, so a replay cursor such as the "after" query parameter is only
// meaningful together with its run ID.
type runSequence struct {
	runID string
	last  atomic.Uint64
}

func newRunSequence(runID string) *runSequence {
	return &runSequence{runID: runID}
}

// Stamp assigns the next sequence number to e. Events of other runs are
// returned unchanged.
func (s *runSequence) Stamp(e Event) Event {
	if e.RunID != s.runID {
		return e
	}
	e.Seq = s.last.Add(1)
	return e
}

// Last returns the most recently assigned number, or 0 before the first event.
func (s *runSequence) Last() uint64 {
	return s.last.Load()
}
