package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
	"github.com/louisbranch/mira/internal/services/controlplane/storage"
)

var testNow = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func accepted(t *testing.T, id, commandID string) event.Event {
	t.Helper()
	evt, err := event.NewAccepted(id, commandID, testNow, "toggle_mic")
	if err != nil {
		t.Fatalf("new accepted: %v", err)
	}
	return evt
}

func TestAppendAndList(t *testing.T) {
	store := New()
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		got, err := store.AppendEvent(ctx, accepted(t, "evt-"+id, "cmd-"+id))
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if got.Seq != uint64(i+1) {
			t.Fatalf("seq = %d", got.Seq)
		}
	}
	page, err := store.ListEvents(ctx, 1, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 || page[0].Seq != 2 {
		t.Fatalf("page = %+v", page)
	}
	if empty, _ := store.ListEvents(ctx, 3, 10); len(empty) != 0 {
		t.Fatalf("expected empty page, got %+v", empty)
	}
}

func TestAppendDuplicateAndFault(t *testing.T) {
	store := New()
	ctx := context.Background()
	if _, err := store.AppendEvent(ctx, accepted(t, "evt-1", "cmd-1")); err != nil {
		t.Fatalf("append: %v", err)
	}
	stored, err := store.AppendEvent(ctx, accepted(t, "evt-2", "cmd-1"))
	if !errors.Is(err, storage.ErrDuplicateCommand) || stored.ID != "evt-1" {
		t.Fatalf("duplicate = %+v, %v", stored, err)
	}

	boom := errors.New("disk full")
	store.FailAppend = func(event.Event) error { return boom }
	if _, err := store.AppendEvent(ctx, accepted(t, "evt-3", "cmd-3")); !errors.Is(err, boom) {
		t.Fatalf("expected injected fault, got %v", err)
	}
	if last, _ := store.LastSeq(ctx); last != 1 {
		t.Fatalf("fault must not write, last=%d", last)
	}
}

func TestSnapshotsPrune(t *testing.T) {
	store := New()
	ctx := context.Background()
	for _, seq := range []uint64{3, 9, 6} {
		if _, err := store.PutSnapshot(ctx, storage.Snapshot{EventSeq: seq, StateJSON: []byte("{}")}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	latest, err := store.LatestSnapshot(ctx)
	if err != nil || latest.EventSeq != 9 {
		t.Fatalf("latest = %+v, %v", latest, err)
	}
	pruned, err := store.PruneSnapshots(ctx, 1)
	if err != nil || pruned != 2 || store.SnapshotCount() != 1 {
		t.Fatalf("pruned = %d, %v, count=%d", pruned, err, store.SnapshotCount())
	}
}
