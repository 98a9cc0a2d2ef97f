package worker

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/louisbranch/mira/internal/services/gesture"
)

func TestFrameReaderSkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		`{"ts":"2026-04-01T10:00:00Z","hands":[{"id":"right","pose":"fist","centroid":{"x":0.4,"y":0.5}}]}`,
		``,
		`{"ts":`,
		`{"hands":[]}`,
		`{"ts":"2026-04-01T10:00:00.020Z","hands":[]}`,
	}, "\n")
	fr := NewFrameReader(strings.NewReader(input))

	first, err := fr.Next()
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if len(first.Hands) != 1 || first.Hands[0].Pose != gesture.PoseFist || first.Hands[0].Centroid.X != 0.4 {
		t.Fatalf("first = %+v", first)
	}
	second, err := fr.Next()
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Timestamp.Sub(first.Timestamp).Milliseconds() != 20 || len(second.Hands) != 0 {
		t.Fatalf("second = %+v", second)
	}
	if _, err := fr.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("end = %v, want EOF", err)
	}
	if fr.Skipped() != 2 {
		t.Fatalf("skipped = %d, want 2", fr.Skipped())
	}
}
