package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/state"
	"github.com/louisbranch/mira/internal/services/controlplane/storage"
	"github.com/louisbranch/mira/internal/services/controlplane/storage/memory"
)

var testTime = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

func appendPatch(t *testing.T, store *memory.Store, n int, path string, value any) {
	t.Helper()
	p, err := state.NewPatch(testTime, path, value)
	if err != nil {
		t.Fatalf("new patch: %v", err)
	}
	evt, err := event.NewStatePatch(fmt.Sprintf("evt-%d", n), fmt.Sprintf("cmd-%d", n), testTime, p)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	if _, err := store.AppendEvent(context.Background(), evt); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func appendRejected(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	evt, err := event.NewRejected(fmt.Sprintf("evt-%d", n), fmt.Sprintf("cmd-%d", n), testTime, event.Rejection{Reason: "unknown_action", Action: "dance"})
	if err != nil {
		t.Fatalf("new rejected: %v", err)
	}
	if _, err := store.AppendEvent(context.Background(), evt); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func seedLog(t *testing.T, store *memory.Store) {
	t.Helper()
	appendPatch(t, store, 1, "/mode", "voice")
	appendPatch(t, store, 2, "/todos/+", state.Todo{ID: 1, Text: "Buy milk"})
	appendRejected(t, store, 3)
	appendPatch(t, store, 4, "/mic_enabled", true)
	appendPatch(t, store, 5, "/todos/0/completed", true)
}

func TestFromGenesisAppliesOnlyPatches(t *testing.T) {
	store := memory.New()
	seedLog(t, store)

	result, err := FromGenesis(context.Background(), store)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.LastSeq != 5 || result.Applied != 4 || result.Skipped != 1 {
		t.Fatalf("result = %+v", result)
	}
	if result.State.String("/mode") != "voice" || !result.State.Bool("/mic_enabled") {
		t.Fatalf("state = %v", result.State)
	}
	todos, _ := result.State.Todos()
	if len(todos) != 1 || !todos[0].Completed {
		t.Fatalf("todos = %+v", todos)
	}
}

func TestReplayPagesAcrossBoundaries(t *testing.T) {
	store := memory.New()
	for i := 1; i <= 7; i++ {
		appendPatch(t, store, i, "/todos/+", state.Todo{ID: int64(i), Text: "t"})
	}
	result, err := Replay(context.Background(), store, state.New(), Options{PageSize: 2})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.Applied != 7 || result.State.Len("/todos") != 7 {
		t.Fatalf("result = %+v", result)
	}

	partial, err := Replay(context.Background(), store, state.New(), Options{PageSize: 3, UntilSeq: 4})
	if err != nil {
		t.Fatalf("replay until: %v", err)
	}
	if partial.LastSeq != 4 || partial.State.Len("/todos") != 4 {
		t.Fatalf("partial = %+v", partial)
	}
}

func TestRecoverFromSnapshotMatchesGenesis(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	appendPatch(t, store, 1, "/mode", "voice")
	appendPatch(t, store, 2, "/todos/+", state.Todo{ID: 1, Text: "Buy milk"})

	mid, err := FromGenesis(ctx, store)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	data, err := json.Marshal(mid.State)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := store.PutSnapshot(ctx, storage.Snapshot{EventSeq: mid.LastSeq, StateJSON: data}); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
	appendRejected(t, store, 3)
	appendPatch(t, store, 4, "/cam_enabled", true)

	recovered, err := Recover(ctx, store, store)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered.SnapshotSeq != 2 || recovered.Applied != 1 || recovered.Skipped != 1 {
		t.Fatalf("recovered = %+v", recovered)
	}
	if _, err := Verify(ctx, store, store); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestRecoverWithoutSnapshotUsesGenesis(t *testing.T) {
	store := memory.New()
	seedLog(t, store)
	recovered, err := Recover(context.Background(), store, store)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered.SnapshotSeq != 0 || recovered.LastSeq != 5 {
		t.Fatalf("recovered = %+v", recovered)
	}
	empty, err := Recover(context.Background(), memory.New(), nil)
	if err != nil {
		t.Fatalf("recover empty: %v", err)
	}
	if !empty.State.Equal(state.New()) {
		t.Fatal("expected genesis state for empty log")
	}
}

func TestVerifyDetectsDivergentSnapshot(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	appendPatch(t, store, 1, "/mode", "voice")
	if _, err := store.PutSnapshot(ctx, storage.Snapshot{EventSeq: 1, StateJSON: []byte(`{"mode":"settings"}`)}); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
	if _, err := Verify(ctx, store, store); !errors.Is(err, ErrDiverged) {
		t.Fatalf("expected divergence, got %v", err)
	}
}

func TestRecoverRejectsSnapshotAheadOfLog(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	appendPatch(t, store, 1, "/mode", "voice")
	if _, err := store.PutSnapshot(ctx, storage.Snapshot{EventSeq: 9, StateJSON: []byte(`{}`)}); err != nil {
		t.Fatalf("put snapshot: %v", err)
	}
	if _, err := Recover(ctx, store, store); !errors.Is(err, ErrSnapshotAhead) {
		t.Fatalf("expected snapshot ahead, got %v", err)
	}
}

type gapLister struct{ events []event.Event }

func (g gapLister) ListEvents(_ context.Context, afterSeq uint64, _ int) ([]event.Event, error) {
	var out []event.Event
	for _, evt := range g.events {
		if evt.Seq > afterSeq {
			out = append(out, evt)
		}
	}
	return out, nil
}

func TestReplayDetectsGap(t *testing.T) {
	lister := gapLister{events: []event.Event{
		{Seq: 1, Type: event.TypeAccepted},
		{Seq: 3, Type: event.TypeAccepted},
	}}
	_, err := Replay(context.Background(), lister, state.New(), Options{})
	if !errors.Is(err, ErrSequenceGap) {
		t.Fatalf("expected gap error, got %v", err)
	}
}

func TestReplayRequiresInputs(t *testing.T) {
	if _, err := Replay(context.Background(), nil, state.New(), Options{}); !errors.Is(err, ErrEventStoreRequired) {
		t.Fatalf("expected store required, got %v", err)
	}
	if _, err := Replay(context.Background(), memory.New(), nil, Options{}); !errors.Is(err, ErrStateRequired) {
		t.Fatalf("expected state required, got %v", err)
	}
}
