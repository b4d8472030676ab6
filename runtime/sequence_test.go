package runtime

import (
	"sync"
	"testing"
)

func TestRunSequence_StampsFromOne(t *testing.T) {
	seq := newRunSequence("run-1")
	if seq.Last() != 0 {
		t.Fatalf("Last() before any event = %d, want 0", seq.Last())
	}
	for i := uint64(1); i <= 50; i++ {
		e := seq.Stamp(NewEvent(EventSearchTick, "run-1"))
		if e.Seq != i {
			t.Fatalf("event #%d got Seq %d", i, e.Seq)
		}
	}
	if seq.Last() != 50 {
		t.Errorf("Last() = %d, want 50", seq.Last())
	}
}

func TestRunSequence_IgnoresOtherRuns(t *testing.T) {
	seq := newRunSequence("run-1")
	seq.Stamp(NewEvent(EventSearchStarted, "run-1"))

	other := seq.Stamp(NewEvent(EventSearchStarted, "run-2"))
	if other.Seq != 0 {
		t.Errorf("event of another run got Seq %d, want 0", other.Seq)
	}
	if next := seq.Stamp(NewEvent(EventSearchFinished, "run-1")); next.Seq != 2 {
		t.Errorf("next run-1 event got Seq %d, want 2", next.Seq)
	}
}

func TestRunSequence_ConcurrentStamps(t *testing.T) {
	const goroutines, perGoroutine = 50, 100
	seq := newRunSequence("run-1")

	var mu sync.Mutex
	seen := make(map[uint64]bool, goroutines*perGoroutine)
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perGoroutine {
				e := seq.Stamp(NewEvent(EventNodeAdded, "run-1"))
				mu.Lock()
				seen[e.Seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	for i := uint64(1); i <= goroutines*perGoroutine; i++ {
		if !seen[i] {
			t.Fatalf("missing sequence number %d", i)
		}
	}
}
