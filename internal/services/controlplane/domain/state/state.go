// Package state holds the materialized application State and the patch
// algebra that mutates it.
package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrInvalidPath reports a patch path that does not address the tree.
var ErrInvalidPath = errors.New("invalid state path")

// Well-known top-level keys.
const (
	KeyMode        = "mode"
	KeyTodos       = "todos"
	KeyMicEnabled  = "mic_enabled"
	KeyCamEnabled  = "cam_enabled"
	KeyLastGesture = "last_gesture"
	KeyGNArmed     = "gn_armed"
)

// Mode values accepted by set_mode.
const (
	ModeIdle     = "idle"
	ModeVoice    = "voice"
	ModeGesture  = "gesture"
	ModeSettings = "settings"
)

// ValidMode reports whether mode is one of the known UI modes.
func ValidMode(mode string) bool {
	switch mode {
	case ModeIdle, ModeVoice, ModeGesture, ModeSettings:
		return true
	default:
		return false
	}
}

// State is a JSON tree of objects, arrays and scalars. Numbers are kept as
// json.Number so integers survive snapshot round trips exactly.
type State struct {
	root map[string]any
}

// New returns the genesis State every replay starts from.
func New() *State {
	return &State{root: map[string]any{
		KeyMode:        ModeIdle,
		KeyTodos:       []any{},
		KeyMicEnabled:  false,
		KeyCamEnabled:  false,
		KeyLastGesture: "idle",
		KeyGNArmed:     false,
	}}
}

// FromJSON decodes a serialized State, as written by MarshalJSON.
func FromJSON(data []byte) (*State, error) {
	v, err := decodeValue(data)
	if err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	root, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("decode state: root is not an object")
	}
	return &State{root: root}, nil
}

// MarshalJSON renders the tree with sorted object keys.
func (s *State) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("null"), nil
	}
	return json.Marshal(s.root)
}

// Equal reports whether two States serialize identically.
func (s *State) Equal(other *State) bool {
	a, errA := s.MarshalJSON()
	b, errB := other.MarshalJSON()
	return errA == nil && errB == nil && bytes.Equal(a, b)
}

// Clone returns a deep copy that shares nothing with s.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	return &State{root: cloneValue(s.root).(map[string]any)}
}

// Apply mutates s by p. On error s is left unchanged.
func (s *State) Apply(p Patch) error {
	segments, err := p.Segments()
	if err != nil {
		return err
	}
	value, err := decodeValue(p.Value)
	if err != nil {
		return fmt.Errorf("decode patch value at %s: %w", p.Path, err)
	}
	_, err = setAt(s.root, segments, value)
	return err
}

// Get returns the value at path, or false when nothing is there.
func (s *State) Get(path string) (any, bool) {
	segments, err := splitPath(path)
	if err != nil {
		return nil, false
	}
	var node any = s.root
	for _, seg := range segments {
		switch n := node.(type) {
		case map[string]any:
			child, ok := n[seg]
			if !ok {
				return nil, false
			}
			node = child
		case []any:
			idx, err := arrayIndex(seg, len(n))
			if err != nil {
				return nil, false
			}
			node = n[idx]
		default:
			return nil, false
		}
	}
	return node, true
}

// Bool reads a boolean, treating missing or mistyped values as false.
func (s *State) Bool(path string) bool {
	v, _ := s.Get(path)
	b, _ := v.(bool)
	return b
}

// String reads a string, treating missing or mistyped values as "".
func (s *State) String(path string) string {
	v, _ := s.Get(path)
	str, _ := v.(string)
	return str
}

// Len returns the length of the array at path, or 0.
func (s *State) Len(path string) int {
	v, _ := s.Get(path)
	arr, _ := v.([]any)
	return len(arr)
}

// setAt writes value below node and returns the (possibly reallocated)
// node. Parents are only reassigned after the child write succeeded, so a
// failure anywhere leaves the tree untouched.
func setAt(node any, segments []string, value any) (any, error) {
	if len(segments) == 0 {
		return value, nil
	}
	seg, rest := segments[0], segments[1:]
	switch n := node.(type) {
	case map[string]any:
		if seg == AppendSegment {
			return nil, fmt.Errorf("%w: cannot append to an object", ErrInvalidPath)
		}
		child, ok := n[seg]
		if !ok && len(rest) > 0 {
			return nil, fmt.Errorf("%w: missing key %q", ErrInvalidPath, seg)
		}
		updated, err := setAt(child, rest, value)
		if err != nil {
			return nil, err
		}
		n[seg] = updated
		return n, nil
	case []any:
		if seg == AppendSegment {
			return append(n, value), nil
		}
		idx, err := arrayIndex(seg, len(n))
		if err != nil {
			return nil, err
		}
		updated, err := setAt(n[idx], rest, value)
		if err != nil {
			return nil, err
		}
		n[idx] = updated
		return n, nil
	default:
		return nil, fmt.Errorf("%w: %q addresses a scalar", ErrInvalidPath, seg)
	}
}

func decodeValue(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after value")
	}
	return v, nil
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = cloneValue(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = cloneValue(child)
		}
		return out
	default:
		return t
	}
}

