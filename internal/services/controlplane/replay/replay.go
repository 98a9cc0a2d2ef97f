// Package replay rebuilds State from the event log, optionally starting
// from the latest snapshot.
package replay

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/state"
	"github.com/louisbranch/mira/internal/services/controlplane/storage"
)

const defaultPageSize = 200

var (
	// ErrEventStoreRequired indicates a missing event store.
	ErrEventStoreRequired = errors.New("event store is required")
	// ErrStateRequired indicates a missing starting state.
	ErrStateRequired = errors.New("starting state is required")
	// ErrSequenceGap indicates the log is missing an offset.
	ErrSequenceGap = errors.New("event sequence gap")
	// ErrSnapshotAhead indicates a snapshot covers events the log does not have.
	ErrSnapshotAhead = errors.New("snapshot is ahead of the event log")
	// ErrDiverged indicates snapshot recovery and genesis replay disagree.
	ErrDiverged = errors.New("snapshot recovery diverges from genesis replay")
)

// EventLister pages through the log in seq order.
type EventLister interface {
	ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error)
}

// SnapshotReader loads the newest snapshot.
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context) (storage.Snapshot, error)
}

// Options configures replay behavior.
type Options struct {
	AfterSeq uint64
	UntilSeq uint64
	PageSize int
}

// Result captures replay outcomes.
type Result struct {
	State *state.State
	// LastSeq is the offset of the last event read, patch or not.
	LastSeq uint64
	// Applied counts state_patch events folded into State.
	Applied int
	// Skipped counts accepted and rejected events.
	Skipped int
	// SnapshotSeq is the offset of the snapshot recovery started from.
	SnapshotSeq uint64
}

// Replay folds events after opts.AfterSeq into st in log order. Only
// state_patch events change State. st is mutated in place.
func Replay(ctx context.Context, events EventLister, st *state.State, opts Options) (Result, error) {
	if events == nil {
		return Result{}, ErrEventStoreRequired
	}
	if st == nil {
		return Result{}, ErrStateRequired
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	result := Result{State: st, LastSeq: opts.AfterSeq}
	for {
		page, err := events.ListEvents(ctx, result.LastSeq, pageSize)
		if err != nil {
			return result, err
		}
		if len(page) == 0 {
			return result, nil
		}
		for _, evt := range page {
			if opts.UntilSeq > 0 && evt.Seq > opts.UntilSeq {
				return result, nil
			}
			expected := result.LastSeq + 1
			if evt.Seq != expected {
				return result, fmt.Errorf("%w: expected %d got %d", ErrSequenceGap, expected, evt.Seq)
			}
			if evt.Type == event.TypeStatePatch {
				p, err := evt.Patch()
				if err != nil {
					return result, err
				}
				if err := st.Apply(p); err != nil {
					return result, fmt.Errorf("apply event %d: %w", evt.Seq, err)
				}
				result.Applied++
			} else {
				result.Skipped++
			}
			result.LastSeq = evt.Seq
		}
	}
}

// FromGenesis replays the whole log onto the genesis State.
func FromGenesis(ctx context.Context, events EventLister) (Result, error) {
	return Replay(ctx, events, state.New(), Options{})
}

// Recover loads the latest snapshot (or genesis) and replays everything
// recorded after it.
func Recover(ctx context.Context, events EventLister, snapshots SnapshotReader) (Result, error) {
	if snapshots == nil {
		return FromGenesis(ctx, events)
	}
	snap, err := snapshots.LatestSnapshot(ctx)
	if errors.Is(err, storage.ErrNotFound) {
		return FromGenesis(ctx, events)
	}
	if err != nil {
		return Result{}, fmt.Errorf("load snapshot: %w", err)
	}
	st, err := state.FromJSON(snap.StateJSON)
	if err != nil {
		return Result{}, fmt.Errorf("load snapshot %d: %w", snap.ID, err)
	}
	if err := ensureLogCovers(ctx, events, snap.EventSeq); err != nil {
		return Result{}, err
	}
	result, err := Replay(ctx, events, st, Options{AfterSeq: snap.EventSeq})
	result.SnapshotSeq = snap.EventSeq
	return result, err
}

// Verify reports ErrDiverged when snapshot-based recovery and a full
// genesis replay produce different States.
func Verify(ctx context.Context, events EventLister, snapshots SnapshotReader) (Result, error) {
	recovered, err := Recover(ctx, events, snapshots)
	if err != nil {
		return recovered, fmt.Errorf("recover: %w", err)
	}
	genesis, err := FromGenesis(ctx, events)
	if err != nil {
		return recovered, fmt.Errorf("genesis replay: %w", err)
	}
	if recovered.LastSeq != genesis.LastSeq || !recovered.State.Equal(genesis.State) {
		return recovered, fmt.Errorf("%w at seq %d", ErrDiverged, genesis.LastSeq)
	}
	return recovered, nil
}

func ensureLogCovers(ctx context.Context, events EventLister, seq uint64) error {
	if seq == 0 {
		return nil
	}
	page, err := events.ListEvents(ctx, seq-1, 1)
	if err != nil {
		return err
	}
	if len(page) == 0 || page[0].Seq != seq {
		return fmt.Errorf("%w: snapshot at %d", ErrSnapshotAhead, seq)
	}
	return nil
}
