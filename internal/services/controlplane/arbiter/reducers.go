package arbiter

import (
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/command"
	"github.com/louisbranch/mira/internal/services/controlplane/domain/state"
)

// Reducer decides the outcome of one validated command. It reads st and
// never mutates it.
type Reducer func(st *state.State, cmd command.Command) command.Decision

// DefaultReducers returns the reducer for every built-in action.
func DefaultReducers() map[command.Action]Reducer {
	return map[command.Action]Reducer{
		command.ActionAddTodo:           reduceAddTodo,
		command.ActionCompleteTodo:      reduceCompleteTodo,
		command.ActionToggleMic:         reduceToggle(state.KeyMicEnabled),
		command.ActionToggleCam:         reduceToggle(state.KeyCamEnabled),
		command.ActionSetMode:           reduceSetMode,
		command.ActionSetGNArmed:        reduceSetGNArmed,
		command.ActionGestureSwipeLeft:  reduceGesture,
		command.ActionGestureSwipeRight: reduceGesture,
		command.ActionGesturePinch:      reduceGesture,
		command.ActionGestureFist:       reduceGesture,
		command.ActionGestureOpen:       reduceGesture,
		command.ActionGestureTwoFinger:  reduceGesture,
	}
}

func reduceAddTodo(st *state.State, cmd command.Command) command.Decision {
	var p command.AddTodoPayload
	if err := cmd.DecodePayload(&p); err != nil {
		return invalidPayload(err)
	}
	todo := state.Todo{
		ID:        int64(st.Len("/"+state.KeyTodos)) + 1,
		Text:      strings.TrimSpace(p.Text),
		CreatedAt: cmd.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	return patch(cmd, "/"+state.KeyTodos+"/"+state.AppendSegment, todo)
}

func reduceCompleteTodo(st *state.State, cmd command.Command) command.Decision {
	var p command.CompleteTodoPayload
	if err := cmd.DecodePayload(&p); err != nil {
		return invalidPayload(err)
	}
	idx, ok := st.TodoIndex(p.ID)
	if !ok {
		return command.Reject(command.ReasonInvalidPayload, fmt.Sprintf("todo %d does not exist", p.ID))
	}
	return patch(cmd, state.TodoPath(idx, "completed"), true)
}

func reduceToggle(key string) Reducer {
	return func(st *state.State, cmd command.Command) command.Decision {
		path := "/" + key
		return patch(cmd, path, !st.Bool(path))
	}
}

func reduceSetMode(st *state.State, cmd command.Command) command.Decision {
	var p command.SetModePayload
	if err := cmd.DecodePayload(&p); err != nil {
		return invalidPayload(err)
	}
	if st.String("/"+state.KeyMode) == p.Mode {
		return command.AcceptNoop()
	}
	return patch(cmd, "/"+state.KeyMode, p.Mode)
}

func reduceSetGNArmed(_ *state.State, cmd command.Command) command.Decision {
	var p command.SetGNArmedPayload
	if err := cmd.DecodePayload(&p); err != nil || p.GNArmed == nil {
		return invalidPayload(err)
	}
	return patch(cmd, "/"+state.KeyGNArmed, *p.GNArmed)
}

func reduceGesture(_ *state.State, cmd command.Command) command.Decision {
	name, ok := cmd.Action.GestureName()
	if !ok {
		return command.Reject(command.ReasonUnknownAction, string(cmd.Action))
	}
	return patch(cmd, "/"+state.KeyLastGesture, name)
}

func patch(cmd command.Command, path string, value any) command.Decision {
	p, err := state.NewPatch(cmd.Timestamp, path, value)
	if err != nil {
		return invalidPayload(err)
	}
	return command.Accept(p)
}

func invalidPayload(err error) command.Decision {
	msg := "payload does not fit the action"
	if err != nil {
		msg = err.Error()
	}
	return command.Reject(command.ReasonInvalidPayload, msg)
}
