// Package gesture turns per-frame hand classifications into the GN-armed
// signal and a bounded stream of gesture commands.
package gesture

import (
	"math"
	"time"
)

// Pose is the classifier's label for one hand.
type Pose string

const (
	PoseOpen      Pose = "open"
	PoseFist      Pose = "fist"
	PosePinch     Pose = "pinch"
	PoseTwoFinger Pose = "twoFinger"
	PoseUnknown   Pose = "unknown"
)

// Known reports whether p is a recognised, non-unknown pose.
func (p Pose) Known() bool {
	switch p {
	case PoseOpen, PoseFist, PosePinch, PoseTwoFinger:
		return true
	default:
		return false
	}
}

// Swipe gesture names. Static gestures use the pose name.
const (
	GestureSwipeLeft  = "swipe_left"
	GestureSwipeRight = "swipe_right"
	GestureIdle       = "idle"
)

// Point is a normalized image coordinate in [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Velocity is centroid speed in normalized units per second.
type Velocity struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Mag float64 `json:"mag"`
}

func newVelocity(x, y float64) Velocity {
	return Velocity{X: x, Y: y, Mag: math.Hypot(x, y)}
}

// HandObservation is the per-frame view of one hand.
type HandObservation struct {
	Present  bool     `json:"present"`
	Pose     Pose     `json:"pose"`
	Velocity Velocity `json:"velocity"`
	SteadyMs int64    `json:"steadyMs"`
}

// HandSample is one hand as reported by the classifier. SteadyMs and
// Velocity are optional; the Tracker derives them when missing.
type HandSample struct {
	ID         string    `json:"id"`
	Pose       Pose      `json:"pose"`
	Centroid   Point     `json:"centroid"`
	Confidence float64   `json:"confidence,omitempty"`
	SteadyMs   *int64    `json:"steadyMs,omitempty"`
	Velocity   *Velocity `json:"velocity,omitempty"`
}

// Frame is one classifier output.
type Frame struct {
	Timestamp time.Time    `json:"ts"`
	Hands     []HandSample `json:"hands"`
}

// Hand is a tracked hand after the Tracker filled in derived fields.
type Hand struct {
	ID         string
	Centroid   Point
	Confidence float64
	HandObservation
}

// FeedItem is the lossy live classification published for displays.
type FeedItem struct {
	Timestamp  time.Time `json:"ts"`
	Gesture    string    `json:"gesture"`
	Confidence float64   `json:"confidence"`
	Armed      bool      `json:"armed"`
}

func ms(d time.Duration) int64 {
	return d.Milliseconds()
}
