package bus

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/petal-labs/footplan/runtime"
)

type failingStore struct {
	*MemEventStore
}

func (failingStore) Append(context.Context, runtime.Event) error {
	return errors.New("disk full")
}

func TestStoreSubscriber_PersistsEvents(t *testing.T) {
	store := newTestStore(t)
	sub := NewStoreSubscriber(store, slog.Default())

	for i := 1; i <= 3; i++ {
		e := runtime.NewEvent(runtime.EventNodeAdded, "run-1")
		e.Seq = uint64(i)
		sub.Handle(e)
	}

	events, err := store.List(context.Background(), "run-1", 0, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 3 {
		t.Errorf("got %d events, want 3", len(events))
	}
}

func TestStoreSubscriber_HandleContinuesOnError(t *testing.T) {
	sub := NewStoreSubscriber(failingStore{NewMemEventStore()}, nil)

	// Handle must log and return rather than panic.
	sub.Handle(runtime.NewEvent(runtime.EventSearchStarted, "run-1"))
}

func TestStoreSubscriber_DrainsBusSubscription(t *testing.T) {
	b := NewMemBus(MemBusConfig{})
	store := NewMemEventStore()
	sub := NewStoreSubscriber(store, nil)

	busSub := b.SubscribeAll()
	done := make(chan struct{})
	go func() {
		sub.Drain(busSub)
		close(done)
	}()

	for i := 1; i <= 4; i++ {
		e := runtime.NewEvent(runtime.EventSearchTick, "run-1")
		e.Seq = uint64(i)
		b.Publish(e)
	}
	b.Close()
	<-done

	if seq, _ := store.LatestSeq(context.Background(), "run-1"); seq != 4 {
		t.Errorf("LatestSeq = %d, want 4", seq)
	}
}
