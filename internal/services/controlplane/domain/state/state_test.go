package state

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

var testTime = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func mustPatch(t *testing.T, path string, value any) Patch {
	t.Helper()
	p, err := NewPatch(testTime, path, value)
	if err != nil {
		t.Fatalf("new patch %s: %v", path, err)
	}
	return p
}

func mustJSON(t *testing.T, s *State) string {
	t.Helper()
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal state: %v", err)
	}
	return string(data)
}

func TestNewReturnsGenesis(t *testing.T) {
	got := mustJSON(t, New())
	want := `{"cam_enabled":false,"gn_armed":false,"last_gesture":"idle","mic_enabled":false,"mode":"idle","todos":[]}`
	if got != want {
		t.Fatalf("genesis = %s, want %s", got, want)
	}
}

func TestApplyScalarAndAppend(t *testing.T) {
	s := New()
	if err := s.Apply(mustPatch(t, "/mic_enabled", true)); err != nil {
		t.Fatalf("apply mic: %v", err)
	}
	if err := s.Apply(mustPatch(t, "/todos/+", Todo{ID: 1, Text: "Buy milk", CreatedAt: "x"})); err != nil {
		t.Fatalf("apply todo: %v", err)
	}
	if err := s.Apply(mustPatch(t, TodoPath(0, "completed"), true)); err != nil {
		t.Fatalf("complete todo: %v", err)
	}

	if !s.Bool("/mic_enabled") {
		t.Fatal("expected mic enabled")
	}
	todos, err := s.Todos()
	if err != nil {
		t.Fatalf("todos: %v", err)
	}
	if len(todos) != 1 || todos[0].Text != "Buy milk" || !todos[0].Completed || todos[0].ID != 1 {
		t.Fatalf("todos = %+v", todos)
	}
	if idx, ok := s.TodoIndex(1); !ok || idx != 0 {
		t.Fatalf("todo index = %d, %v", idx, ok)
	}
}

func TestApplyCreatesLeafKeys(t *testing.T) {
	s := New()
	if err := s.Apply(mustPatch(t, "/ui", map[string]any{})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(mustPatch(t, "/ui/theme", "dark")); err != nil {
		t.Fatalf("apply nested: %v", err)
	}
	if s.String("/ui/theme") != "dark" {
		t.Fatalf("theme = %q", s.String("/ui/theme"))
	}
}

func TestApplyInvalidPathLeavesStateUnchanged(t *testing.T) {
	s := New()
	before := mustJSON(t, s)

	bad := []Patch{
		{Timestamp: testTime, Path: "", Value: json.RawMessage(`1`)},
		{Timestamp: testTime, Path: "/", Value: json.RawMessage(`1`)},
		{Timestamp: testTime, Path: "/missing/child", Value: json.RawMessage(`1`)},
		{Timestamp: testTime, Path: "/todos/3/text", Value: json.RawMessage(`"x"`)},
		{Timestamp: testTime, Path: "/mode/+", Value: json.RawMessage(`"x"`)},
		{Timestamp: testTime, Path: "/+", Value: json.RawMessage(`"x"`)},
		{Timestamp: testTime, Path: "/todos/+/text", Value: json.RawMessage(`"x"`)},
	}
	for _, p := range bad {
		if err := s.Apply(p); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("apply %q: expected ErrInvalidPath, got %v", p.Path, err)
		}
	}
	if err := s.Apply(Patch{Path: "/mode", Value: json.RawMessage(`{`)}); err == nil {
		t.Fatal("expected decode error")
	}
	if after := mustJSON(t, s); after != before {
		t.Fatalf("state changed: %s", after)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	s := New()
	if err := s.Apply(mustPatch(t, "/todos/+", Todo{ID: 1, Text: "a"})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	c := s.Clone()
	if err := s.Apply(mustPatch(t, TodoPath(0, "text"), "changed")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.Apply(mustPatch(t, "/todos/+", Todo{ID: 2, Text: "b"})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	todos, _ := c.Todos()
	if len(todos) != 1 || todos[0].Text != "a" {
		t.Fatalf("clone mutated: %+v", todos)
	}
	if s.Equal(c) {
		t.Fatal("expected states to differ")
	}
}

func TestFromJSONRoundTripIsExact(t *testing.T) {
	s := New()
	if err := s.Apply(mustPatch(t, "/todos/+", Todo{ID: 9007199254740993, Text: "big"})); err != nil {
		t.Fatalf("apply: %v", err)
	}
	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	restored, err := FromJSON(data)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if !restored.Equal(s) {
		t.Fatalf("round trip mismatch:\n%s\n%s", mustJSON(t, restored), data)
	}
	if _, err := FromJSON([]byte(`[]`)); err == nil {
		t.Fatal("expected error for non-object root")
	}
}

func TestLiveAndReplayedPatchesProduceSameState(t *testing.T) {
	live := New()
	replayed := New()
	patches := []Patch{
		mustPatch(t, "/mode", ModeVoice),
		mustPatch(t, "/todos/+", Todo{ID: 1, Text: "one", CreatedAt: testTime.Format(time.RFC3339Nano)}),
		mustPatch(t, "/gn_armed", true),
	}
	for _, p := range patches {
		if err := live.Apply(p); err != nil {
			t.Fatalf("live apply: %v", err)
		}
		encoded, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("encode patch: %v", err)
		}
		var decoded Patch
		if err := json.Unmarshal(encoded, &decoded); err != nil {
			t.Fatalf("decode patch: %v", err)
		}
		if err := replayed.Apply(decoded); err != nil {
			t.Fatalf("replay apply: %v", err)
		}
	}
	if !live.Equal(replayed) {
		t.Fatalf("live %s != replayed %s", mustJSON(t, live), mustJSON(t, replayed))
	}
}

func TestValidMode(t *testing.T) {
	for _, mode := range []string{ModeIdle, ModeVoice, ModeGesture, ModeSettings} {
		if !ValidMode(mode) {
			t.Fatalf("expected %q valid", mode)
		}
	}
	if ValidMode("party") {
		t.Fatal("expected unknown mode invalid")
	}
}
