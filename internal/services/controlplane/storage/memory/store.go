// Package memory provides an in-process Store for tests and ephemeral runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
	"github.com/louisbranch/mira/internal/services/controlplane/storage"
)

// Store keeps events and snapshots in memory. The Fail* hooks inject
// persistence faults.
type Store struct {
	mu        sync.Mutex
	events    []event.Event
	byCommand map[string]int
	snapshots []storage.Snapshot
	nextSnap  int64

	// FailAppend, when set, is returned by AppendEvent instead of writing.
	FailAppend func(event.Event) error
	// FailSnapshot, when set, is returned by PutSnapshot instead of writing.
	FailSnapshot func(storage.Snapshot) error
}

// New returns an empty store.
func New() *Store {
	return &Store{byCommand: make(map[string]int)}
}

// AppendEvent implements storage.EventStore.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailAppend != nil {
		if err := s.FailAppend(evt); err != nil {
			return event.Event{}, err
		}
	}
	evt.CommandID = strings.TrimSpace(evt.CommandID)
	if evt.ID == "" || evt.CommandID == "" {
		return event.Event{}, fmt.Errorf("event and command ids are required")
	}
	if !evt.Type.Valid() {
		return event.Event{}, fmt.Errorf("event type %q is invalid", evt.Type)
	}
	if idx, ok := s.byCommand[evt.CommandID]; ok {
		return cloneEvent(s.events[idx]), storage.ErrDuplicateCommand
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)
	evt.Seq = uint64(len(s.events)) + 1
	evt = cloneEvent(evt)
	s.byCommand[evt.CommandID] = len(s.events)
	s.events = append(s.events, evt)
	return cloneEvent(evt), nil
}

// ListEvents implements storage.EventStore.
func (s *Store) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if afterSeq >= uint64(len(s.events)) {
		return nil, nil
	}
	end := min(int(afterSeq)+limit, len(s.events))
	out := make([]event.Event, 0, end-int(afterSeq))
	for _, evt := range s.events[afterSeq:end] {
		out = append(out, cloneEvent(evt))
	}
	return out, nil
}

// EventByCommandID implements storage.EventStore.
func (s *Store) EventByCommandID(ctx context.Context, commandID string) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byCommand[strings.TrimSpace(commandID)]
	if !ok {
		return event.Event{}, storage.ErrNotFound
	}
	return cloneEvent(s.events[idx]), nil
}

// LastSeq implements storage.EventStore.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.events)), nil
}

// PutSnapshot implements storage.SnapshotStore.
func (s *Store) PutSnapshot(ctx context.Context, snap storage.Snapshot) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailSnapshot != nil {
		if err := s.FailSnapshot(snap); err != nil {
			return storage.Snapshot{}, err
		}
	}
	if len(snap.StateJSON) == 0 {
		return storage.Snapshot{}, fmt.Errorf("snapshot state is required")
	}
	s.nextSnap++
	snap.ID = s.nextSnap
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	snap.StateJSON = slices.Clone(snap.StateJSON)
	s.snapshots = append(s.snapshots, snap)
	return snap, nil
}

// LatestSnapshot implements storage.SnapshotStore.
func (s *Store) LatestSnapshot(ctx context.Context) (storage.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return storage.Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.snapshots) == 0 {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	best := s.snapshots[0]
	for _, snap := range s.snapshots[1:] {
		if snap.EventSeq > best.EventSeq || (snap.EventSeq == best.EventSeq && snap.ID > best.ID) {
			best = snap
		}
	}
	best.StateJSON = slices.Clone(best.StateJSON)
	return best, nil
}

// PruneSnapshots implements storage.SnapshotStore.
func (s *Store) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	slices.SortFunc(s.snapshots, func(a, b storage.Snapshot) int {
		if a.EventSeq != b.EventSeq {
			return int(int64(b.EventSeq) - int64(a.EventSeq))
		}
		return int(b.ID - a.ID)
	})
	if len(s.snapshots) <= keep {
		return 0, nil
	}
	pruned := len(s.snapshots) - keep
	s.snapshots = s.snapshots[:keep]
	return pruned, nil
}

// SnapshotCount returns the number of stored snapshots.
func (s *Store) SnapshotCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.snapshots)
}

// Close implements storage.Store.
func (s *Store) Close() error { return nil }

func cloneEvent(evt event.Event) event.Event {
	evt.PayloadJSON = slices.Clone(evt.PayloadJSON)
	return evt
}

var _ storage.Store = (*Store)(nil)
