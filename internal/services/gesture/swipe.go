package gesture

import (
	"math"
	"time"
)

type centroidSample struct {
	ts time.Time
	x  float64
}

// Candidate is a gesture the debouncer may turn into a command.
type Candidate struct {
	Gesture    string
	Confidence float64
}

// SwipeDetector keeps a fixed-capacity ring of horizontal centroid samples
// of the active hand and reports directional swipes.
type SwipeDetector struct {
	threshold float64
	minSpan   time.Duration
	maxSpan   time.Duration

	buf   []centroidSample
	start int
	n     int
}

// NewSwipeDetector builds a detector from cfg.
func NewSwipeDetector(cfg Config) *SwipeDetector {
	cfg = cfg.withDefaults()
	return &SwipeDetector{
		threshold: cfg.SwipeThreshold,
		minSpan:   cfg.SwipeMinSpan,
		maxSpan:   cfg.SwipeMaxSpan,
		buf:       make([]centroidSample, cfg.SwipeCapacity),
	}
}

// Add records x at ts, evicting the oldest sample when full and samples
// that fell out of the time window.
func (d *SwipeDetector) Add(ts time.Time, x float64) {
	if d.n == len(d.buf) {
		d.start = (d.start + 1) % len(d.buf)
		d.n--
	}
	d.buf[(d.start+d.n)%len(d.buf)] = centroidSample{ts: ts, x: x}
	d.n++
	for d.n > 1 && ts.Sub(d.at(0).ts) >= d.maxSpan {
		d.start = (d.start + 1) % len(d.buf)
		d.n--
	}
}

// Len returns the number of buffered samples.
func (d *SwipeDetector) Len() int {
	return d.n
}

// Detect reports a swipe when the buffer spans [minSpan, maxSpan) and the
// net displacement exceeds the threshold. palm says whether a steady-open
// palm is visible on either hand; without one nothing is reported.
func (d *SwipeDetector) Detect(palm bool) (Candidate, bool) {
	if !palm || d.n < 2 {
		return Candidate{}, false
	}
	first, last := d.at(0), d.at(d.n-1)
	span := last.ts.Sub(first.ts)
	if span < d.minSpan || span >= d.maxSpan {
		return Candidate{}, false
	}
	dx := last.x - first.x
	if math.Abs(dx) <= d.threshold {
		return Candidate{}, false
	}
	name := GestureSwipeRight
	if dx < 0 {
		name = GestureSwipeLeft
	}
	return Candidate{Gesture: name, Confidence: SwipeConfidence(dx, d.threshold)}, true
}

// Reset empties the buffer.
func (d *SwipeDetector) Reset() {
	d.start, d.n = 0, 0
}

func (d *SwipeDetector) at(i int) centroidSample {
	return d.buf[(d.start+i)%len(d.buf)]
}

// SwipeConfidence maps displacement to [0,1]: 0.6 at the threshold,
// growing linearly with |dx|.
func SwipeConfidence(dx, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	return math.Min(1, math.Max(0, 0.6*math.Abs(dx)/threshold))
}
