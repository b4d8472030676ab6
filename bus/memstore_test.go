package bus

import (
	"context"
	"testing"

	"github.com/petal-labs/footplan/runtime"
)

func appendEvents(t *testing.T, store EventStore, runID string, seqs ...uint64) {
	t.Helper()
	for _, seq := range seqs {
		e := runtime.NewEvent(runtime.EventNodeAdded, runID)
		e.Seq = seq
		if err := store.Append(context.Background(), e); err != nil {
			t.Fatalf("Append(%d): %v", seq, err)
		}
	}
}

func TestMemEventStore_ListCursorAndLimit(t *testing.T) {
	store := NewMemEventStore()
	appendEvents(t, store, "run-1", 1, 2, 3, 4, 5, 6, 7, 8, 9, 10)

	all, _ := store.List(context.Background(), "run-1", 0, 0)
	if len(all) != 10 {
		t.Errorf("got %d events, want 10", len(all))
	}

	after, _ := store.List(context.Background(), "run-1", 7, 0)
	if len(after) != 3 || after[0].Seq != 8 {
		t.Errorf("after seq 7 = %d events starting at %d, want 3 starting at 8", len(after), after[0].Seq)
	}

	limited, _ := store.List(context.Background(), "run-1", 2, 3)
	if len(limited) != 3 || limited[0].Seq != 3 || limited[2].Seq != 5 {
		t.Errorf("after seq 2 limit 3 = %v", limited)
	}
}

func TestMemEventStore_KeepsSeqOrder(t *testing.T) {
	store := NewMemEventStore()
	appendEvents(t, store, "run-1", 3, 1, 2)

	events, _ := store.List(context.Background(), "run-1", 0, 0)
	for i, e := range events {
		if e.Seq != uint64(i+1) {
			t.Errorf("events[%d].Seq = %d, want %d", i, e.Seq, i+1)
		}
	}
	if seq, _ := store.LatestSeq(context.Background(), "run-1"); seq != 3 {
		t.Errorf("LatestSeq = %d, want 3", seq)
	}
}

func TestMemEventStore_LatestSeqEmpty(t *testing.T) {
	seq, err := NewMemEventStore().LatestSeq(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("LatestSeq: %v", err)
	}
	if seq != 0 {
		t.Errorf("empty store LatestSeq = %d, want 0", seq)
	}
}

func TestMemEventStore_RunIDs(t *testing.T) {
	store := NewMemEventStore()
	appendEvents(t, store, "run-b", 1)
	appendEvents(t, store, "run-a", 1, 2)

	ids, _ := store.RunIDs(context.Background())
	if len(ids) != 2 || ids[0] != "run-a" || ids[1] != "run-b" {
		t.Errorf("RunIDs = %v, want [run-a run-b]", ids)
	}
	events, _ := store.List(context.Background(), "run-b", 0, 0)
	if len(events) != 1 {
		t.Errorf("run-b events = %d, want 1", len(events))
	}
}

func TestReplay_PagesThroughRun(t *testing.T) {
	store := NewMemEventStore()
	seqs := make([]uint64, DefaultReplayPageSize+20)
	for i := range seqs {
		seqs[i] = uint64(i + 1)
	}
	appendEvents(t, store, "run-1", seqs...)

	var got []uint64
	n, err := Replay(context.Background(), store, "run-1", 10, func(e runtime.Event) {
		got = append(got, e.Seq)
	})
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != len(seqs)-10 || len(got) != n {
		t.Fatalf("Replay returned %d events (handled %d), want %d", n, len(got), len(seqs)-10)
	}
	for i, seq := range got {
		if seq != uint64(i+11) {
			t.Fatalf("replayed[%d] = %d, want %d", i, seq, i+11)
		}
	}
}

func TestReplay_CancelledContext(t *testing.T) {
	store := NewMemEventStore()
	appendEvents(t, store, "run-1", 1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := Replay(ctx, store, "run-1", 0, func(runtime.Event) {})
	if err == nil || n != 0 {
		t.Errorf("Replay with cancelled context = %d, %v", n, err)
	}
}
