package command

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

var (
	// ErrActionRequired indicates a missing action.
	ErrActionRequired = errors.New("command action is required")
	// ErrActionUnknown indicates an unregistered action.
	ErrActionUnknown = errors.New("command action is not registered")
	// ErrSourceInvalid indicates an unknown producer family.
	ErrSourceInvalid = errors.New("command source is invalid")
	// ErrPayloadInvalid indicates a payload that does not fit the action.
	ErrPayloadInvalid = errors.New("command payload is invalid")
)

// PayloadValidator checks the payload of one action.
type PayloadValidator func(Command) error

// Definition registers one action.
type Definition struct {
	Action          Action
	ValidatePayload PayloadValidator
}

// Registry stores action definitions and validates commands.
type Registry struct {
	definitions map[Action]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[Action]Definition)}
}

// DefaultRegistry returns a registry with every built-in action.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	defs := []Definition{
		{Action: ActionAddTodo, ValidatePayload: validateAddTodo},
		{Action: ActionCompleteTodo, ValidatePayload: validateCompleteTodo},
		{Action: ActionToggleMic, ValidatePayload: validateNoPayload},
		{Action: ActionToggleCam, ValidatePayload: validateNoPayload},
		{Action: ActionSetMode, ValidatePayload: validateSetMode},
		{Action: ActionSetGNArmed, ValidatePayload: validateSetGNArmed},
		{Action: ActionGestureSwipeLeft, ValidatePayload: validateGesture},
		{Action: ActionGestureSwipeRight, ValidatePayload: validateGesture},
		{Action: ActionGesturePinch, ValidatePayload: validateGesture},
		{Action: ActionGestureFist, ValidatePayload: validateGesture},
		{Action: ActionGestureOpen, ValidatePayload: validateGesture},
		{Action: ActionGestureTwoFinger, ValidatePayload: validateGesture},
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds an action definition.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Action = Action(strings.TrimSpace(string(def.Action)))
	if def.Action == "" {
		return ErrActionRequired
	}
	if r.definitions == nil {
		r.definitions = make(map[Action]Definition)
	}
	if _, exists := r.definitions[def.Action]; exists {
		return fmt.Errorf("command action already registered: %s", def.Action)
	}
	r.definitions[def.Action] = def
	return nil
}

// Actions returns the registered actions in sorted order.
func (r *Registry) Actions() []Action {
	if r == nil {
		return nil
	}
	actions := make([]Action, 0, len(r.definitions))
	for action := range r.definitions {
		actions = append(actions, action)
	}
	slices.Sort(actions)
	return actions
}

// Validate checks source, action and payload of a normalized command.
func (r *Registry) Validate(cmd Command) error {
	if r == nil {
		return errors.New("registry is required")
	}
	if cmd.Action == "" {
		return ErrActionUnknown
	}
	def, ok := r.definitions[cmd.Action]
	if !ok {
		return fmt.Errorf("%w: %s", ErrActionUnknown, cmd.Action)
	}
	if !cmd.Source.Valid() {
		return fmt.Errorf("%w: %q", ErrSourceInvalid, cmd.Source)
	}
	if def.ValidatePayload != nil {
		if err := def.ValidatePayload(cmd); err != nil {
			return err
		}
	}
	return nil
}
