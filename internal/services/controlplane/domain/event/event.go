// Package event defines the immutable records the arbiter appends to the
// log: exactly one per submitted command.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/state"
)

// Type identifies how a command was resolved.
type Type string

const (
	// TypeAccepted records a command that was valid but changed nothing.
	TypeAccepted Type = "accepted"
	// TypeRejected records a command that failed validation.
	TypeRejected Type = "rejected"
	// TypeStatePatch records a command that produced a State mutation.
	TypeStatePatch Type = "state_patch"
)

// Valid reports whether t is a known event type.
func (t Type) Valid() bool {
	switch t {
	case TypeAccepted, TypeRejected, TypeStatePatch:
		return true
	default:
		return false
	}
}

// ErrWrongType is returned when decoding a payload of another event type.
var ErrWrongType = errors.New("event has a different type")

// Event is a persisted record of how one command was resolved.
//
// Seq is the log offset assigned on append; it is zero until then.
type Event struct {
	Seq         uint64          `json:"seq"`
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"ts"`
	CommandID   string          `json:"command_id"`
	Type        Type            `json:"type"`
	PayloadJSON json.RawMessage `json:"payload"`
}

// Rejection is the payload of a rejected event.
type Rejection struct {
	Reason  string `json:"reason"`
	Action  string `json:"action"`
	Message string `json:"message,omitempty"`
}

// Acceptance is the payload of an accepted event.
type Acceptance struct {
	Action string `json:"action"`
}

// NewStatePatch builds the state_patch event carrying p.
func NewStatePatch(id, commandID string, ts time.Time, p state.Patch) (Event, error) {
	return newEvent(id, commandID, ts, TypeStatePatch, p)
}

// NewRejected builds the rejected event for a command.
func NewRejected(id, commandID string, ts time.Time, r Rejection) (Event, error) {
	return newEvent(id, commandID, ts, TypeRejected, r)
}

// NewAccepted builds the accepted event for a command without a patch.
func NewAccepted(id, commandID string, ts time.Time, action string) (Event, error) {
	return newEvent(id, commandID, ts, TypeAccepted, Acceptance{Action: action})
}

func newEvent(id, commandID string, ts time.Time, typ Type, payload any) (Event, error) {
	if id == "" {
		return Event{}, errors.New("event id is required")
	}
	if commandID == "" {
		return Event{}, errors.New("command id is required")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s payload: %w", typ, err)
	}
	return Event{
		ID:          id,
		Timestamp:   ts.UTC(),
		CommandID:   commandID,
		Type:        typ,
		PayloadJSON: data,
	}, nil
}

// Patch decodes the payload of a state_patch event.
func (e Event) Patch() (state.Patch, error) {
	if e.Type != TypeStatePatch {
		return state.Patch{}, fmt.Errorf("%w: %s", ErrWrongType, e.Type)
	}
	var p state.Patch
	if err := json.Unmarshal(e.PayloadJSON, &p); err != nil {
		return state.Patch{}, fmt.Errorf("decode patch of event %d: %w", e.Seq, err)
	}
	return p, nil
}

// Rejection decodes the payload of a rejected event.
func (e Event) Rejection() (Rejection, error) {
	if e.Type != TypeRejected {
		return Rejection{}, fmt.Errorf("%w: %s", ErrWrongType, e.Type)
	}
	var r Rejection
	if err := json.Unmarshal(e.PayloadJSON, &r); err != nil {
		return Rejection{}, fmt.Errorf("decode rejection of event %d: %w", e.Seq, err)
	}
	return r, nil
}
