package gesture

import "time"

// Phase is a debouncer state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseArmed
	PhaseTriggered
	PhaseCooldown
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseArmed:
		return "ARMED"
	case PhaseTriggered:
		return "TRIGGERED"
	case PhaseCooldown:
		return "COOLDOWN"
	default:
		return "UNKNOWN"
	}
}

// Emission is the single gesture a debounce cycle produces.
type Emission struct {
	Timestamp  time.Time
	Gesture    string
	Confidence float64
	// GNArmed is the arming captured when the cycle started.
	GNArmed bool
}

// Debouncer gates candidates through IDLE, ARMED, TRIGGERED and COOLDOWN.
// A candidate must persist for ArmHold to arm the cycle and for a further
// TriggerStability to fire. Each cycle fires at most once and is followed
// by Cooldown during which nothing fires.
type Debouncer struct {
	minConfidence float64
	armHold       time.Duration
	stability     time.Duration
	cooldown      time.Duration

	phase         Phase
	tracking      bool
	current       Candidate
	since         time.Time
	cycleGNArmed  bool
	cooldownUntil time.Time
}

// NewDebouncer builds a debouncer from cfg.
func NewDebouncer(cfg Config) *Debouncer {
	cfg = cfg.withDefaults()
	return &Debouncer{
		minConfidence: cfg.MinConfidence,
		armHold:       cfg.ArmHold,
		stability:     cfg.TriggerStability,
		cooldown:      cfg.Cooldown,
	}
}

// Phase returns the current state.
func (d *Debouncer) Phase() Phase {
	return d.phase
}

// Update advances the machine to ts. cand is nil when the frame has no
// candidate; candidates below the confidence floor count as none.
func (d *Debouncer) Update(ts time.Time, cand *Candidate, gnArmed bool) (Emission, bool) {
	switch {
	case cand == nil || cand.Confidence < d.minConfidence:
		d.tracking = false
	case !d.tracking || cand.Gesture != d.current.Gesture:
		d.tracking = true
		d.current = *cand
		d.since = ts
		if d.phase != PhaseCooldown {
			d.phase = PhaseIdle
		}
	default:
		d.current.Confidence = cand.Confidence
	}

	if d.phase == PhaseCooldown {
		if ts.Before(d.cooldownUntil) {
			return Emission{}, false
		}
		d.phase = PhaseIdle
	}
	if !d.tracking {
		d.phase = PhaseIdle
		return Emission{}, false
	}

	held := ts.Sub(d.since)
	if d.phase == PhaseIdle && held >= d.armHold {
		d.phase = PhaseArmed
		d.cycleGNArmed = gnArmed
	}
	if d.phase == PhaseArmed && held >= d.armHold+d.stability {
		d.phase = PhaseTriggered
		em := Emission{
			Timestamp:  ts,
			Gesture:    d.current.Gesture,
			Confidence: d.current.Confidence,
			GNArmed:    d.cycleGNArmed,
		}
		d.phase = PhaseCooldown
		d.cooldownUntil = ts.Add(d.cooldown)
		return em, true
	}
	return Emission{}, false
}

// Drop resets a pending cycle without emitting, as when every hand left
// the frame. A running cooldown still runs out.
func (d *Debouncer) Drop() {
	d.tracking = false
	if d.phase != PhaseCooldown {
		d.phase = PhaseIdle
	}
}
