package command

import (
	"fmt"
	"strings"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/state"
)

// AddTodoPayload is the payload of add_todo.
type AddTodoPayload struct {
	Text string `json:"text"`
}

// CompleteTodoPayload is the payload of complete_todo.
type CompleteTodoPayload struct {
	ID int64 `json:"id"`
}

// SetModePayload is the payload of set_mode.
type SetModePayload struct {
	Mode string `json:"mode"`
}

// SetGNArmedPayload is the payload of set_gn_armed.
type SetGNArmedPayload struct {
	GNArmed *bool `json:"gnArmed"`
}

// GesturePayload is the optional payload of gesture_* actions.
type GesturePayload struct {
	Gesture    string  `json:"gesture,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	GNArmed    bool    `json:"gnArmed,omitempty"`
}

func validateNoPayload(Command) error { return nil }

func validateAddTodo(cmd Command) error {
	var p AddTodoPayload
	if err := cmd.DecodePayload(&p); err != nil {
		return err
	}
	if strings.TrimSpace(p.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrPayloadInvalid)
	}
	return nil
}

func validateCompleteTodo(cmd Command) error {
	var p CompleteTodoPayload
	if err := cmd.DecodePayload(&p); err != nil {
		return err
	}
	if p.ID <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrPayloadInvalid)
	}
	return nil
}

func validateSetMode(cmd Command) error {
	var p SetModePayload
	if err := cmd.DecodePayload(&p); err != nil {
		return err
	}
	if !state.ValidMode(p.Mode) {
		return fmt.Errorf("%w: unknown mode %q", ErrPayloadInvalid, p.Mode)
	}
	return nil
}

func validateSetGNArmed(cmd Command) error {
	var p SetGNArmedPayload
	if err := cmd.DecodePayload(&p); err != nil {
		return err
	}
	if p.GNArmed == nil {
		return fmt.Errorf("%w: gnArmed is required", ErrPayloadInvalid)
	}
	return nil
}

func validateGesture(cmd Command) error {
	var p GesturePayload
	if err := cmd.DecodePayload(&p); err != nil {
		return err
	}
	name, _ := cmd.Action.GestureName()
	if p.Gesture != "" && p.Gesture != name {
		return fmt.Errorf("%w: gesture %q does not match action %s", ErrPayloadInvalid, p.Gesture, cmd.Action)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("%w: confidence out of range", ErrPayloadInvalid)
	}
	return nil
}
