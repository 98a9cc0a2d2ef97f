package gesture

import (
	"time"
)

// Tracker follows one hand across frames and derives how long it has held
// its pose and how fast its centroid moves.
type Tracker struct {
	pose      Pose
	poseSince time.Time
	last      Point
	lastAt    time.Time
	velocity  Velocity
	seen      bool
}

// Update folds a new sample taken at ts and returns the hand's observation.
// Values supplied by the classifier win over derived ones.
func (t *Tracker) Update(ts time.Time, sample HandSample) Hand {
	if !t.seen || sample.Pose != t.pose {
		t.pose = sample.Pose
		t.poseSince = ts
	}
	if t.seen {
		if dt := ts.Sub(t.lastAt).Seconds(); dt > 0 {
			t.velocity = newVelocity((sample.Centroid.X-t.last.X)/dt, (sample.Centroid.Y-t.last.Y)/dt)
		}
	}
	t.last = sample.Centroid
	t.lastAt = ts
	t.seen = true

	obs := HandObservation{
		Present:  true,
		Pose:     sample.Pose,
		Velocity: t.velocity,
		SteadyMs: ms(ts.Sub(t.poseSince)),
	}
	if sample.SteadyMs != nil {
		obs.SteadyMs = *sample.SteadyMs
	}
	if sample.Velocity != nil {
		obs.Velocity = newVelocity(sample.Velocity.X, sample.Velocity.Y)
	}
	return Hand{
		ID:              sample.ID,
		Centroid:        sample.Centroid,
		Confidence:      sample.Confidence,
		HandObservation: obs,
	}
}
