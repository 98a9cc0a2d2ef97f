package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/event"
	"github.com/louisbranch/mira/internal/services/controlplane/storage"
	"github.com/louisbranch/mira/internal/services/controlplane/storage/filter"
)

const eventColumns = "seq, id, ts, command_id, type, payload"

// AppendEvent allocates the next seq and inserts evt in one transaction.
// A command id that already has an event yields the stored event and
// storage.ErrDuplicateCommand.
func (s *Store) AppendEvent(ctx context.Context, evt event.Event) (event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return event.Event{}, err
	}
	evt.ID = strings.TrimSpace(evt.ID)
	evt.CommandID = strings.TrimSpace(evt.CommandID)
	if evt.ID == "" {
		return event.Event{}, fmt.Errorf("event id is required")
	}
	if evt.CommandID == "" {
		return event.Event{}, fmt.Errorf("command id is required")
	}
	if !evt.Type.Valid() {
		return event.Event{}, fmt.Errorf("event type %q is invalid", evt.Type)
	}
	if len(evt.PayloadJSON) == 0 {
		evt.PayloadJSON = []byte("{}")
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	evt.Timestamp = evt.Timestamp.UTC().Truncate(time.Millisecond)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM events").Scan(&last); err != nil {
		return event.Event{}, fmt.Errorf("get event seq: %w", err)
	}
	evt.Seq = uint64(last) + 1

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO events ("+eventColumns+") VALUES (?, ?, ?, ?, ?, ?)",
		int64(evt.Seq), evt.ID, toMillis(evt.Timestamp), evt.CommandID, string(evt.Type), string(evt.PayloadJSON),
	); err != nil {
		if isConstraintError(err) {
			_ = tx.Rollback()
			stored, lookupErr := s.EventByCommandID(ctx, evt.CommandID)
			if lookupErr == nil {
				return stored, storage.ErrDuplicateCommand
			}
		}
		return event.Event{}, fmt.Errorf("append event: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return event.Event{}, fmt.Errorf("commit: %w", err)
	}
	return evt, nil
}

// ListEvents returns up to limit events after afterSeq in seq order.
func (s *Store) ListEvents(ctx context.Context, afterSeq uint64, limit int) ([]event.Event, error) {
	return s.ListEventsFiltered(ctx, afterSeq, limit, "")
}

// ListEventsFiltered is ListEvents restricted by an AIP-160 filter over
// type, command_id, seq and ts.
func (s *Store) ListEventsFiltered(ctx context.Context, afterSeq uint64, limit int, filterExpr string) ([]event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	cond, err := filter.Parse(filterExpr)
	if err != nil {
		return nil, err
	}

	where := "seq > ?"
	params := []any{int64(afterSeq)}
	if !cond.Empty() {
		where += " AND " + cond.Clause
		params = append(params, cond.Params...)
	}
	params = append(params, limit)

	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE "+where+" ORDER BY seq ASC LIMIT ?",
		params...,
	)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	events := make([]event.Event, 0, min(limit, 256))
	for rows.Next() {
		evt, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// EventByCommandID returns the event recorded for commandID.
func (s *Store) EventByCommandID(ctx context.Context, commandID string) (event.Event, error) {
	if err := s.ready(ctx); err != nil {
		return event.Event{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE command_id = ?",
		strings.TrimSpace(commandID),
	)
	evt, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, storage.ErrNotFound
	}
	return evt, err
}

// LastSeq returns the highest committed seq.
func (s *Store) LastSeq(ctx context.Context) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var last int64
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), 0) FROM events").Scan(&last); err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return uint64(last), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (event.Event, error) {
	var (
		seq     int64
		ts      int64
		typ     string
		payload string
		evt     event.Event
	)
	if err := row.Scan(&seq, &evt.ID, &ts, &evt.CommandID, &typ, &payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return event.Event{}, err
		}
		return event.Event{}, fmt.Errorf("scan event: %w", err)
	}
	evt.Seq = uint64(seq)
	evt.Timestamp = fromMillis(ts)
	evt.Type = event.Type(typ)
	evt.PayloadJSON = []byte(payload)
	return evt, nil
}
