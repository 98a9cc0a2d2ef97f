package command

import (
	"errors"
	"testing"
	"time"
)

func TestNewCopiesPayload(t *testing.T) {
	payload := map[string]any{"text": "Buy milk"}
	cmd, err := New(SourceVoice, ActionAddTodo, payload)
	if err != nil {
		t.Fatalf("new command: %v", err)
	}
	payload["text"] = "changed"
	if cmd.Payload["text"] != "Buy milk" {
		t.Fatalf("payload aliased: %v", cmd.Payload)
	}
	if cmd.ID == "" || cmd.Timestamp.IsZero() {
		t.Fatalf("expected id and timestamp, got %+v", cmd)
	}
}

func TestNormalizeFillsDefaults(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	cmd, err := Normalize(Command{Source: " voice ", Action: " toggle_mic "}, now)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if cmd.ID == "" {
		t.Fatal("expected generated id")
	}
	if !cmd.Timestamp.Equal(now) {
		t.Fatalf("timestamp = %s", cmd.Timestamp)
	}
	if cmd.Source != SourceVoice || cmd.Action != ActionToggleMic {
		t.Fatalf("expected trimmed fields, got %+v", cmd)
	}

	kept, err := Normalize(Command{ID: "cmd-1", Timestamp: now.Add(time.Hour)}, now)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if kept.ID != "cmd-1" || !kept.Timestamp.Equal(now.Add(time.Hour)) {
		t.Fatalf("expected caller values kept, got %+v", kept)
	}
}

func TestGestureActionNames(t *testing.T) {
	if GestureAction("swipe_left") != ActionGestureSwipeLeft {
		t.Fatalf("gesture action = %s", GestureAction("swipe_left"))
	}
	name, ok := ActionGestureTwoFinger.GestureName()
	if !ok || name != "twoFinger" {
		t.Fatalf("gesture name = %q, %v", name, ok)
	}
	if _, ok := ActionToggleMic.GestureName(); ok {
		t.Fatal("toggle_mic is not a gesture")
	}
}

func TestRegistryValidate(t *testing.T) {
	reg := DefaultRegistry()
	tests := []struct {
		name    string
		cmd     Command
		wantErr error
	}{
		{"add todo", Command{Source: SourceVoice, Action: ActionAddTodo, Payload: map[string]any{"text": "Buy milk"}}, nil},
		{"add todo blank", Command{Source: SourceVoice, Action: ActionAddTodo, Payload: map[string]any{"text": "  "}}, ErrPayloadInvalid},
		{"add todo wrong type", Command{Source: SourceVoice, Action: ActionAddTodo, Payload: map[string]any{"text": 12}}, ErrPayloadInvalid},
		{"complete todo", Command{Source: SourceSystem, Action: ActionCompleteTodo, Payload: map[string]any{"id": float64(2)}}, nil},
		{"complete todo zero", Command{Source: SourceSystem, Action: ActionCompleteTodo, Payload: map[string]any{}}, ErrPayloadInvalid},
		{"toggle mic", Command{Source: SourceGesture, Action: ActionToggleMic}, nil},
		{"set mode", Command{Source: SourceVoice, Action: ActionSetMode, Payload: map[string]any{"mode": "settings"}}, nil},
		{"set mode unknown", Command{Source: SourceVoice, Action: ActionSetMode, Payload: map[string]any{"mode": "party"}}, ErrPayloadInvalid},
		{"gn armed", Command{Source: SourceGesture, Action: ActionSetGNArmed, Payload: map[string]any{"gnArmed": false}}, nil},
		{"gn armed missing", Command{Source: SourceGesture, Action: ActionSetGNArmed}, ErrPayloadInvalid},
		{"gesture", Command{Source: SourceGesture, Action: ActionGesturePinch, Payload: map[string]any{"gesture": "pinch", "confidence": 0.9}}, nil},
		{"gesture mismatch", Command{Source: SourceGesture, Action: ActionGesturePinch, Payload: map[string]any{"gesture": "fist"}}, ErrPayloadInvalid},
		{"gesture confidence", Command{Source: SourceGesture, Action: ActionGestureFist, Payload: map[string]any{"confidence": 1.5}}, ErrPayloadInvalid},
		{"unknown action", Command{Source: SourceVoice, Action: "dance"}, ErrActionUnknown},
		{"empty action", Command{Source: SourceVoice}, ErrActionUnknown},
		{"bad source", Command{Source: "keyboard", Action: ActionToggleMic}, ErrSourceInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Validate(tt.cmd)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("validate: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRegistryRegisterRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(Definition{Action: ActionToggleMic}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(Definition{Action: ActionToggleMic}); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := reg.Register(Definition{Action: " "}); !errors.Is(err, ErrActionRequired) {
		t.Fatalf("expected action required, got %v", err)
	}
}

func TestDefaultRegistryCoversAllActions(t *testing.T) {
	actions := DefaultRegistry().Actions()
	if len(actions) != 12 {
		t.Fatalf("expected 12 actions, got %d: %v", len(actions), actions)
	}
}

func TestRejectionFor(t *testing.T) {
	reg := DefaultRegistry()
	cases := map[string]Command{
		ReasonUnknownAction:  {Source: SourceVoice, Action: "dance"},
		ReasonInvalidSource:  {Source: "keyboard", Action: ActionToggleMic},
		ReasonInvalidPayload: {Source: SourceVoice, Action: ActionSetMode},
	}
	for want, cmd := range cases {
		got := RejectionFor(reg.Validate(cmd))
		if got.Code != want {
			t.Fatalf("rejection for %s = %s, want %s", cmd.Action, got.Code, want)
		}
	}
}

func TestDecisionConstructors(t *testing.T) {
	if d := AcceptNoop(); d.Patch != nil || d.Rejection != nil {
		t.Fatalf("noop = %+v", d)
	}
	if d := Reject(ReasonInvalidPayload, "bad"); d.Rejection == nil || d.Rejection.Code != ReasonInvalidPayload {
		t.Fatalf("reject = %+v", d)
	}
}
