// Package storage defines the durable event log and snapshot store the
// control plane recovers from.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
)

var (
	// ErrNotFound indicates a missing record.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateCommand indicates the command id already has an event.
	// Append returns the stored event alongside it.
	ErrDuplicateCommand = errors.New("command already has an event")
)

// Snapshot is a full serialization of State taken after EventSeq.
type Snapshot struct {
	ID        int64
	Timestamp time.Time
	EventSeq  uint64
	StateJSON []byte
}

// EventStore is the append-only event log.
type EventStore interface {
	// AppendEvent assigns the next contiguous seq and persists evt.
	AppendEvent(ctx context.Context, evt event.Event) (event.Event, error)
	// ListEvents returns up to limit events with seq > afterSeq in seq order.
	ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error)
	// EventByCommandID returns the event recorded for a command.
	EventByCommandID(ctx context.Context, commandID string) (event.Event, error)
	// LastSeq returns the highest seq in the log, or 0.
	LastSeq(ctx context.Context) (uint64, error)
}

// FilteredEventLister lists events matching an AIP-160 filter expression.
type FilteredEventLister interface {
	ListEventsFiltered(ctx context.Context, afterSeq uint64, limit int, filter string) ([]event.Event, error)
}

// SnapshotStore persists periodic State snapshots.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, snap Snapshot) (Snapshot, error)
	// LatestSnapshot returns the snapshot with the highest EventSeq, or ErrNotFound.
	LatestSnapshot(ctx context.Context) (Snapshot, error)
	// PruneSnapshots deletes all but the newest keep snapshots.
	PruneSnapshots(ctx context.Context, keep int) (int, error)
}

// Store combines the event log and snapshot store.
type Store interface {
	EventStore
	SnapshotStore
	Close() error
}
