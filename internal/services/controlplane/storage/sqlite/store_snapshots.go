package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/mira/internal/services/controlplane/storage"
)

// PutSnapshot stores a serialized State taken after snap.EventSeq.
func (s *Store) PutSnapshot(ctx context.Context, snap storage.Snapshot) (storage.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Snapshot{}, err
	}
	if len(snap.StateJSON) == 0 {
		return storage.Snapshot{}, fmt.Errorf("snapshot state is required")
	}
	if snap.Timestamp.IsZero() {
		snap.Timestamp = time.Now().UTC()
	}
	snap.Timestamp = snap.Timestamp.UTC().Truncate(time.Millisecond)

	result, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO snapshots (ts, event_seq, state) VALUES (?, ?, ?)",
		toMillis(snap.Timestamp), int64(snap.EventSeq), string(snap.StateJSON),
	)
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("put snapshot: %w", err)
	}
	snap.ID, err = result.LastInsertId()
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("snapshot id: %w", err)
	}
	return snap, nil
}

// LatestSnapshot returns the snapshot covering the most events.
func (s *Store) LatestSnapshot(ctx context.Context) (storage.Snapshot, error) {
	if err := s.ready(ctx); err != nil {
		return storage.Snapshot{}, err
	}
	var (
		snap     storage.Snapshot
		ts       int64
		eventSeq int64
		stateRaw string
	)
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT id, ts, event_seq, state FROM snapshots ORDER BY event_seq DESC, id DESC LIMIT 1",
	).Scan(&snap.ID, &ts, &eventSeq, &stateRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Snapshot{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Snapshot{}, fmt.Errorf("latest snapshot: %w", err)
	}
	snap.Timestamp = fromMillis(ts)
	snap.EventSeq = uint64(eventSeq)
	snap.StateJSON = []byte(stateRaw)
	return snap, nil
}

// PruneSnapshots keeps the newest keep snapshots and deletes the rest.
func (s *Store) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	if keep < 1 {
		return 0, fmt.Errorf("keep must be at least 1")
	}
	result, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM snapshots
WHERE id NOT IN (
	SELECT id FROM snapshots ORDER BY event_seq DESC, id DESC LIMIT ?
)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return int(n), nil
}
