package bus

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/petal-labs/footplan/runtime"
)

// testDSN returns a unique shared-memory DSN for test isolation.
func testDSN(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
}

func newTestStore(t *testing.T, cfg ...SQLiteStoreConfig) *SQLiteEventStore {
	t.Helper()
	var c SQLiteStoreConfig
	if len(cfg) > 0 {
		c = cfg[0]
	}
	if c.DSN == "" {
		c.DSN = testDSN(t)
	}
	store, err := NewSQLiteEventStore(c)
	if err != nil {
		t.Fatalf("NewSQLiteEventStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func makeEvent(runID string, seq uint64, kind runtime.EventKind) runtime.Event {
	e := runtime.NewEvent(kind, runID)
	e.Seq = seq
	return e
}

func TestSQLiteEventStore_Append_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := uint64(1); i <= 5; i++ {
		e := makeEvent("run-1", i, runtime.EventNodeRejected)
		e.NodeKey = fmt.Sprintf("(%d,0,0,0|0,0,0,0|0)", i)
		e.Quadrant = "FL"
		e.Elapsed = time.Duration(i) * time.Millisecond
		e.TraceID = "trace-abc"
		e.SpanID = "span-def"
		e.Payload = map[string]any{"reason": "STEP_TOO_FAR", "index": float64(i)}
		if err := store.Append(ctx, e); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	events, err := store.List(ctx, "run-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 5 {
		t.Fatalf("got %d events, want 5", len(events))
	}

	e := events[0]
	if e.RunID != "run-1" || e.Seq != 1 || e.Kind != runtime.EventNodeRejected {
		t.Errorf("event = %s/%d/%s", e.RunID, e.Seq, e.Kind)
	}
	if e.NodeKey != "(1,0,0,0|0,0,0,0|0)" {
		t.Errorf("NodeKey = %q", e.NodeKey)
	}
	if e.Quadrant != "FL" {
		t.Errorf("Quadrant = %q, want FL", e.Quadrant)
	}
	if e.Elapsed != time.Millisecond {
		t.Errorf("Elapsed = %v, want %v", e.Elapsed, time.Millisecond)
	}
	if e.TraceID != "trace-abc" || e.SpanID != "span-def" {
		t.Errorf("trace = %q/%q", e.TraceID, e.SpanID)
	}
	if e.Payload["reason"] != "STEP_TOO_FAR" || e.Payload["index"] != float64(1) {
		t.Errorf("Payload = %v", e.Payload)
	}
}

func TestSQLiteEventStore_Append_DuplicateSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := makeEvent("run-1", 1, runtime.EventSearchStarted)
	if err := store.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, e); err == nil {
		t.Fatal("expected error on duplicate (run_id, seq), got nil")
	}
}

func TestSQLiteEventStore_ListCursorAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for i := uint64(1); i <= 10; i++ {
		store.Append(ctx, makeEvent("run-1", i, runtime.EventSearchTick))
	}

	tests := []struct {
		name      string
		afterSeq  uint64
		limit     int
		wantFirst uint64
		wantLen   int
	}{
		{"all", 0, 0, 1, 10},
		{"after cursor", 7, 0, 8, 3},
		{"limit", 0, 3, 1, 3},
		{"cursor and limit", 4, 2, 5, 2},
		{"past the end", 10, 0, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := store.List(ctx, "run-1", tt.afterSeq, tt.limit)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(events) != tt.wantLen {
				t.Fatalf("got %d events, want %d", len(events), tt.wantLen)
			}
			if tt.wantLen > 0 && events[0].Seq != tt.wantFirst {
				t.Errorf("first Seq = %d, want %d", events[0].Seq, tt.wantFirst)
			}
		})
	}
}

func TestSQLiteEventStore_LatestSeqAndRunIDs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if seq, _ := store.LatestSeq(ctx, "run-1"); seq != 0 {
		t.Errorf("empty LatestSeq = %d, want 0", seq)
	}
	if ids, _ := store.RunIDs(ctx); len(ids) != 0 {
		t.Errorf("empty RunIDs = %v", ids)
	}

	store.Append(ctx, makeEvent("run-b", 1, runtime.EventSearchStarted))
	store.Append(ctx, makeEvent("run-a", 1, runtime.EventSearchStarted))
	store.Append(ctx, makeEvent("run-b", 2, runtime.EventSearchFinished))

	if seq, _ := store.LatestSeq(ctx, "run-b"); seq != 2 {
		t.Errorf("LatestSeq(run-b) = %d, want 2", seq)
	}
	ids, _ := store.RunIDs(ctx)
	if len(ids) != 2 || ids[0] != "run-a" || ids[1] != "run-b" {
		t.Errorf("RunIDs = %v, want [run-a run-b]", ids)
	}
	if events, _ := store.List(ctx, "run-a", 0, 0); len(events) != 1 {
		t.Errorf("run-a events = %d, want 1", len(events))
	}
}

func TestSQLiteEventStore_CountByKind(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	kinds := []runtime.EventKind{
		runtime.EventSearchStarted,
		runtime.EventNodeAdded, runtime.EventNodeAdded, runtime.EventNodeRejected,
		runtime.EventSearchFinished,
	}
	for i, k := range kinds {
		store.Append(ctx, makeEvent("run-1", uint64(i+1), k))
	}

	counts, err := store.CountByKind(ctx, "run-1")
	if err != nil {
		t.Fatalf("CountByKind: %v", err)
	}
	if counts[runtime.EventNodeAdded] != 2 || counts[runtime.EventNodeRejected] != 1 || counts[runtime.EventSearchFinished] != 1 {
		t.Errorf("CountByKind = %v", counts)
	}
}

func TestSQLiteEventStore_PruneByAge(t *testing.T) {
	store := newTestStore(t, SQLiteStoreConfig{RetentionAge: 500 * time.Millisecond})
	ctx := context.Background()

	old := makeEvent("run-1", 1, runtime.EventSearchStarted)
	old.Time = time.Now().Add(-time.Hour)
	store.Append(ctx, old)
	store.Append(ctx, makeEvent("run-1", 2, runtime.EventSearchFinished))

	if err := store.Prune(ctx); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	events, _ := store.List(ctx, "run-1", 0, 0)
	if len(events) != 1 || events[0].Seq != 2 {
		t.Fatalf("after prune got %v, want only seq 2", events)
	}
}

func TestSQLiteEventStore_PruneByCount(t *testing.T) {
	store := newTestStore(t, SQLiteStoreConfig{RetentionCount: 3})
	ctx := context.Background()

	for i := uint64(1); i <= 7; i++ {
		store.Append(ctx, makeEvent("run-1", i, runtime.EventNodeAdded))
		store.Append(ctx, makeEvent("run-2", i, runtime.EventNodeAdded))
	}
	if err := store.Prune(ctx); err != nil {
		t.Fatalf("Prune: %v", err)
	}

	for _, runID := range []string{"run-1", "run-2"} {
		events, _ := store.List(ctx, runID, 0, 0)
		if len(events) != 3 {
			t.Fatalf("%s: after prune got %d events, want 3", runID, len(events))
		}
		if events[0].Seq != 5 || events[2].Seq != 7 {
			t.Errorf("%s: kept seqs %d..%d, want 5..7", runID, events[0].Seq, events[2].Seq)
		}
	}
}

func TestSQLiteEventStore_ConcurrentReadWrite(t *testing.T) {
	store := newTestStore(t, SQLiteStoreConfig{DSN: t.TempDir() + "/events.db"})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint64(1); i <= 50; i++ {
			if err := store.Append(ctx, makeEvent("run-1", i, runtime.EventSearchTick)); err != nil {
				t.Errorf("Append(%d): %v", i, err)
				return
			}
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				if _, err := store.List(ctx, "run-1", 0, 10); err != nil {
					t.Errorf("List: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if seq, _ := store.LatestSeq(ctx, "run-1"); seq != 50 {
		t.Errorf("LatestSeq = %d, want 50", seq)
	}
}

func TestSQLiteEventStore_PersistenceAcrossReopen(t *testing.T) {
	dsn := t.TempDir() + "/test.db"

	store1, err := NewSQLiteEventStore(SQLiteStoreConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("open store1: %v", err)
	}
	ctx := context.Background()
	for i := uint64(1); i <= 3; i++ {
		e := makeEvent("run-1", i, runtime.EventNodeAdded)
		e.Quadrant = "HL"
		e.Payload = map[string]any{"g": float64(i) / 2}
		store1.Append(ctx, e)
	}
	if err := store1.Close(); err != nil {
		t.Fatalf("close store1: %v", err)
	}

	store2, err := NewSQLiteEventStore(SQLiteStoreConfig{DSN: dsn})
	if err != nil {
		t.Fatalf("open store2: %v", err)
	}
	defer store2.Close()

	events, err := store2.List(ctx, "run-1", 0, 0)
	if err != nil {
		t.Fatalf("List after reopen: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("after reopen got %d events, want 3", len(events))
	}
	if events[0].Quadrant != "HL" {
		t.Errorf("Quadrant = %q, want HL", events[0].Quadrant)
	}
	if v := events[1].Payload["g"]; v != float64(1) {
		t.Errorf("Payload[g] = %v, want 1", v)
	}
}

func TestSQLiteEventStore_NilPayload(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := makeEvent("run-1", 1, runtime.EventSearchStarted)
	e.Payload = nil
	if err := store.Append(ctx, e); err != nil {
		t.Fatalf("Append: %v", err)
	}

	events, _ := store.List(ctx, "run-1", 0, 0)
	if len(events) != 1 || events[0].Payload == nil {
		t.Errorf("events = %v, want one event with an empty payload", events)
	}
}
