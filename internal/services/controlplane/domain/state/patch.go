package state

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// AppendSegment is the path segment that appends to an array.
const AppendSegment = "+"

// Patch is one atomic mutation of the State tree.
//
// Value holds canonical JSON so a patch applied live and the same patch
// decoded from the event log produce identical trees.
type Patch struct {
	Timestamp time.Time       `json:"ts"`
	Path      string          `json:"path"`
	Value     json.RawMessage `json:"value"`
}

// NewPatch encodes value and returns the patch for path.
func NewPatch(ts time.Time, path string, value any) (Patch, error) {
	if _, err := splitPath(path); err != nil {
		return Patch{}, err
	}
	data, err := json.Marshal(value)
	if err != nil {
		return Patch{}, fmt.Errorf("encode patch value: %w", err)
	}
	return Patch{Timestamp: ts.UTC(), Path: path, Value: data}, nil
}

// Segments returns the decoded path segments.
func (p Patch) Segments() ([]string, error) {
	return splitPath(p.Path)
}

func splitPath(path string) ([]string, error) {
	trimmed := strings.TrimSpace(path)
	if !strings.HasPrefix(trimmed, "/") || len(trimmed) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	segments := strings.Split(trimmed[1:], "/")
	for i, seg := range segments {
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
		if seg == AppendSegment && i != len(segments)-1 {
			return nil, fmt.Errorf("%w: %q must be the last segment", ErrInvalidPath, AppendSegment)
		}
	}
	return segments, nil
}

func arrayIndex(seg string, length int) (int, error) {
	idx, err := strconv.Atoi(seg)
	if err != nil || idx < 0 || idx >= length {
		return 0, fmt.Errorf("%w: index %q out of range", ErrInvalidPath, seg)
	}
	return idx, nil
}
