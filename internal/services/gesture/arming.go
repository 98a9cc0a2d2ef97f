package gesture

import "time"

// Context says what the two hands are currently doing together.
type Context string

const (
	ContextNone Context = "none"
	// ContextInApp means both hands gesture with no steady-open modifier.
	ContextInApp Context = "in_app"
	// ContextGlobal means the GN modifier is held.
	ContextGlobal Context = "global"
)

// ArmState is the derived GN-armed flag.
type ArmState struct {
	Armed     bool
	ChangedAt time.Time
	Context   Context
}

// Arming applies the two-hand modifier rule with hysteresis. Either hand
// may be the modifier: an open pose held for SteadyThreshold while another
// present hand shows a known pose arms GN. Once armed the flag only drops
// after the condition stayed false for Hysteresis.
type Arming struct {
	steady     time.Duration
	hysteresis time.Duration

	state      ArmState
	falseSince time.Time
}

// NewArming builds an Arming from cfg.
func NewArming(cfg Config) *Arming {
	cfg = cfg.withDefaults()
	return &Arming{
		steady:     cfg.SteadyThreshold,
		hysteresis: cfg.Hysteresis,
		state:      ArmState{Context: ContextNone},
	}
}

// State returns the last computed state.
func (a *Arming) State() ArmState {
	return a.state
}

// Update recomputes the flag for the hands seen at ts.
func (a *Arming) Update(ts time.Time, hands []Hand) ArmState {
	modifier, ok := steadyOpen(hands, a.steady)
	condition := ok && otherKnown(hands, modifier)

	switch {
	case condition:
		a.falseSince = time.Time{}
		if !a.state.Armed {
			a.state.Armed = true
			a.state.ChangedAt = ts
		}
	case a.state.Armed:
		if a.falseSince.IsZero() {
			a.falseSince = ts
		}
		if ts.Sub(a.falseSince) >= a.hysteresis {
			a.state.Armed = false
			a.state.ChangedAt = ts
			a.falseSince = time.Time{}
		}
	}

	switch {
	case a.state.Armed:
		a.state.Context = ContextGlobal
	case !ok && bothGesturing(hands):
		a.state.Context = ContextInApp
	default:
		a.state.Context = ContextNone
	}
	return a.state
}

// steadyOpen returns the index of the first present hand holding an open
// pose for at least steady.
func steadyOpen(hands []Hand, steady time.Duration) (int, bool) {
	for i, h := range hands {
		if h.Present && h.Pose == PoseOpen && h.SteadyMs >= steady.Milliseconds() {
			return i, true
		}
	}
	return -1, false
}

func otherKnown(hands []Hand, modifier int) bool {
	for i, h := range hands {
		if i != modifier && h.Present && h.Pose.Known() {
			return true
		}
	}
	return false
}

func bothGesturing(hands []Hand) bool {
	known := 0
	for _, h := range hands {
		if h.Present && h.Pose.Known() {
			known++
		}
	}
	return known >= 2
}
