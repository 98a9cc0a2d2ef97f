// Package command defines the request envelope producers submit to the
// arbiter and the closed set of actions it understands.
package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/louisbranch/mira/internal/platform/id"
)

// Source identifies the producer family of a command.
type Source string

const (
	SourceGesture Source = "gesture"
	SourceVoice   Source = "voice"
	SourceSystem  Source = "system"
)

// Valid reports whether s is a known producer family.
func (s Source) Valid() bool {
	switch s {
	case SourceGesture, SourceVoice, SourceSystem:
		return true
	default:
		return false
	}
}

// Action names the requested change.
type Action string

const (
	ActionAddTodo           Action = "add_todo"
	ActionCompleteTodo      Action = "complete_todo"
	ActionToggleMic         Action = "toggle_mic"
	ActionToggleCam         Action = "toggle_cam"
	ActionSetMode           Action = "set_mode"
	ActionSetGNArmed        Action = "set_gn_armed"
	ActionGestureSwipeLeft  Action = "gesture_swipe_left"
	ActionGestureSwipeRight Action = "gesture_swipe_right"
	ActionGesturePinch      Action = "gesture_pinch"
	ActionGestureFist       Action = "gesture_fist"
	ActionGestureOpen       Action = "gesture_open"
	ActionGestureTwoFinger  Action = "gesture_twoFinger"
)

const gesturePrefix = "gesture_"

// GestureAction returns the action emitted for a gesture name such as
// "swipe_left" or "pinch".
func GestureAction(gesture string) Action {
	return Action(gesturePrefix + gesture)
}

// GestureName returns the gesture carried by a gesture_* action.
func (a Action) GestureName() (string, bool) {
	name, ok := strings.CutPrefix(string(a), gesturePrefix)
	return name, ok && name != ""
}

// Command is an immutable request to change State.
type Command struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"ts"`
	Source    Source         `json:"source"`
	Action    Action         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// New creates a command with a fresh id and the current time.
func New(source Source, action Action, payload map[string]any) (Command, error) {
	cmdID, err := id.NewID()
	if err != nil {
		return Command{}, err
	}
	return Command{
		ID:        cmdID,
		Timestamp: time.Now().UTC(),
		Source:    source,
		Action:    action,
		Payload:   maps.Clone(payload),
	}, nil
}

// Normalize trims identifiers and fills a missing id or timestamp.
func Normalize(cmd Command, now time.Time) (Command, error) {
	cmd.ID = strings.TrimSpace(cmd.ID)
	cmd.Source = Source(strings.TrimSpace(string(cmd.Source)))
	cmd.Action = Action(strings.TrimSpace(string(cmd.Action)))
	if cmd.ID == "" {
		generated, err := id.NewID()
		if err != nil {
			return Command{}, err
		}
		cmd.ID = generated
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = now
	}
	cmd.Timestamp = cmd.Timestamp.UTC()
	cmd.Payload = maps.Clone(cmd.Payload)
	return cmd, nil
}

// DecodePayload decodes the payload map into target, rejecting values of
// the wrong JSON type.
func (c Command) DecodePayload(target any) error {
	payload := c.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(target); err != nil {
		return fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	return nil
}
