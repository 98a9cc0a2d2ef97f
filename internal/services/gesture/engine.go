package gesture

import (
	"time"

	"github.com/louisbranch/mira/internal/services/controlplane/domain/command"
)

// Output is what one frame produced.
type Output struct {
	Feed     FeedItem
	Arm      ArmState
	Commands []command.Command
}

// Engine runs tracker, arming, swipe detection and the debouncer over a
// frame stream. It is not safe for concurrent use.
type Engine struct {
	cfg      Config
	trackers map[string]*Tracker
	arming   *Arming
	swipe    *SwipeDetector
	debounce *Debouncer
	active   string
}

// NewEngine builds an engine from cfg.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:      cfg,
		trackers: make(map[string]*Tracker),
		arming:   NewArming(cfg),
		swipe:    NewSwipeDetector(cfg),
		debounce: NewDebouncer(cfg),
	}
}

// Phase exposes the debouncer state.
func (e *Engine) Phase() Phase {
	return e.debounce.Phase()
}

// Process consumes one frame. Commands carry the frame timestamp and are
// built for the gesture source.
func (e *Engine) Process(frame Frame) (Output, error) {
	ts := frame.Timestamp.UTC()
	hands := e.track(frame)

	wasArmed := e.arming.State().Armed
	arm := e.arming.Update(ts, hands)

	var out Output
	out.Arm = arm
	if arm.Armed != wasArmed {
		cmd, err := newGestureCommand(command.ActionSetGNArmed, ts, map[string]any{"gnArmed": arm.Armed})
		if err != nil {
			return Output{}, err
		}
		out.Commands = append(out.Commands, cmd)
	}

	if len(hands) == 0 {
		e.swipe.Reset()
		e.debounce.Drop()
		e.active = ""
		out.Feed = FeedItem{Timestamp: ts, Gesture: GestureIdle, Armed: arm.Armed}
		return out, nil
	}

	cand, feed := e.candidate(ts, hands)
	var candPtr *Candidate
	if cand.Gesture != "" {
		candPtr = &cand
	}
	out.Feed = FeedItem{Timestamp: ts, Gesture: feed.Gesture, Confidence: feed.Confidence, Armed: arm.Armed}

	em, ok := e.debounce.Update(ts, candPtr, arm.Armed)
	if !ok {
		return out, nil
	}
	if em.Gesture == GestureSwipeLeft || em.Gesture == GestureSwipeRight {
		e.swipe.Reset()
	}
	cmd, err := newGestureCommand(command.GestureAction(em.Gesture), em.Timestamp, map[string]any{
		"gesture":    em.Gesture,
		"confidence": em.Confidence,
		"gnArmed":    em.GNArmed,
	})
	if err != nil {
		return Output{}, err
	}
	out.Commands = append(out.Commands, cmd)
	return out, nil
}

// track updates per-hand trackers and forgets hands that left.
func (e *Engine) track(frame Frame) []Hand {
	seen := make(map[string]bool, len(frame.Hands))
	hands := make([]Hand, 0, len(frame.Hands))
	for i, sample := range frame.Hands {
		if sample.ID == "" {
			sample.ID = handIDs[min(i, len(handIDs)-1)]
		}
		if seen[sample.ID] {
			continue
		}
		seen[sample.ID] = true
		tr, ok := e.trackers[sample.ID]
		if !ok {
			tr = &Tracker{}
			e.trackers[sample.ID] = tr
		}
		hands = append(hands, tr.Update(frame.Timestamp.UTC(), sample))
	}
	for id := range e.trackers {
		if !seen[id] {
			delete(e.trackers, id)
		}
	}
	return hands
}

var handIDs = []string{"first", "second", "other"}

// candidate picks the active hand, feeds the swipe buffer and returns the
// debounce candidate together with what the live feed should show.
func (e *Engine) candidate(ts time.Time, hands []Hand) (Candidate, Candidate) {
	modifier, hasModifier := steadyOpen(hands, e.cfg.SteadyThreshold)
	active := primary(hands, modifier)

	hand := hands[active]
	if hand.ID != e.active {
		e.swipe.Reset()
		e.active = hand.ID
	}
	e.swipe.Add(ts, hand.Centroid.X)

	if swipe, ok := e.swipe.Detect(hasModifier); ok {
		return swipe, swipe
	}
	if !hand.Pose.Known() {
		return Candidate{}, Candidate{Gesture: string(PoseUnknown)}
	}
	conf := e.cfg.StaticConfidence
	if hand.Confidence > 0 {
		conf = hand.Confidence
	}
	static := Candidate{Gesture: string(hand.Pose), Confidence: conf}
	// An open palm is only a gesture when it is steady beside a modifier.
	if active == modifier || (hand.Pose == PoseOpen && hand.SteadyMs < e.cfg.SteadyThreshold.Milliseconds()) {
		return Candidate{}, static
	}
	return static, static
}

// primary picks the gesturing hand: the first hand that is neither the
// modifier nor an open palm, then any other hand, then the modifier itself.
func primary(hands []Hand, modifier int) int {
	fallback := -1
	for i, h := range hands {
		if i == modifier {
			continue
		}
		if h.Pose != PoseOpen {
			return i
		}
		if fallback < 0 {
			fallback = i
		}
	}
	if fallback < 0 {
		return modifier
	}
	return fallback
}

func newGestureCommand(action command.Action, ts time.Time, payload map[string]any) (command.Command, error) {
	cmd, err := command.New(command.SourceGesture, action, payload)
	if err != nil {
		return command.Command{}, err
	}
	cmd.Timestamp = ts
	return cmd, nil
}
