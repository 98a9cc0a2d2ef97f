package worker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/louisbranch/mira/internal/services/gesture"
)

const maxFrameBytes = 1 << 20

// FrameReader decodes classifier frames, one JSON object per line.
// Malformed lines are logged and skipped.
type FrameReader struct {
	scanner *bufio.Scanner
	line    int
	skipped int
}

// NewFrameReader reads frames from r.
func NewFrameReader(r io.Reader) *FrameReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	return &FrameReader{scanner: scanner}
}

// Next returns the next frame or io.EOF.
func (fr *FrameReader) Next() (gesture.Frame, error) {
	for fr.scanner.Scan() {
		fr.line++
		line := bytes.TrimSpace(fr.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var frame gesture.Frame
		if err := json.Unmarshal(line, &frame); err != nil {
			fr.skipped++
			log.Printf("gesture worker: skip frame line %d: %v", fr.line, err)
			continue
		}
		if frame.Timestamp.IsZero() {
			fr.skipped++
			log.Printf("gesture worker: skip frame line %d: missing ts", fr.line)
			continue
		}
		return frame, nil
	}
	if err := fr.scanner.Err(); err != nil {
		return gesture.Frame{}, fmt.Errorf("read frames: %w", err)
	}
	return gesture.Frame{}, io.EOF
}

// Skipped returns how many lines could not be decoded.
func (fr *FrameReader) Skipped() int {
	return fr.skipped
}
