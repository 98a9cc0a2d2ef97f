package gesture

import (
	"fmt"
	"time"
)

// Config holds the engine thresholds. Zero fields take the defaults.
type Config struct {
	// SteadyThreshold is how long an open hand must hold to act as the
	// GN modifier.
	SteadyThreshold time.Duration
	// Hysteresis keeps GN armed while the arming condition is briefly false.
	Hysteresis time.Duration

	SwipeThreshold float64
	SwipeMinSpan   time.Duration
	SwipeMaxSpan   time.Duration
	SwipeCapacity  int

	MinConfidence    float64
	StaticConfidence float64
	ArmHold          time.Duration
	TriggerStability time.Duration
	Cooldown         time.Duration
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		SteadyThreshold:  250 * time.Millisecond,
		Hysteresis:       120 * time.Millisecond,
		SwipeThreshold:   0.18,
		SwipeMinSpan:     150 * time.Millisecond,
		SwipeMaxSpan:     500 * time.Millisecond,
		SwipeCapacity:    16,
		MinConfidence:    0.6,
		StaticConfidence: 0.85,
		ArmHold:          120 * time.Millisecond,
		TriggerStability: 100 * time.Millisecond,
		Cooldown:         500 * time.Millisecond,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.SteadyThreshold <= 0 {
		c.SteadyThreshold = d.SteadyThreshold
	}
	if c.Hysteresis <= 0 {
		c.Hysteresis = d.Hysteresis
	}
	if c.SwipeThreshold <= 0 {
		c.SwipeThreshold = d.SwipeThreshold
	}
	if c.SwipeMinSpan <= 0 {
		c.SwipeMinSpan = d.SwipeMinSpan
	}
	if c.SwipeMaxSpan <= 0 {
		c.SwipeMaxSpan = d.SwipeMaxSpan
	}
	if c.SwipeCapacity <= 1 {
		c.SwipeCapacity = d.SwipeCapacity
	}
	if c.MinConfidence <= 0 {
		c.MinConfidence = d.MinConfidence
	}
	if c.StaticConfidence <= 0 {
		c.StaticConfidence = d.StaticConfidence
	}
	if c.ArmHold <= 0 {
		c.ArmHold = d.ArmHold
	}
	if c.TriggerStability <= 0 {
		c.TriggerStability = d.TriggerStability
	}
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	return c
}

// Validate reports thresholds that cannot work together.
func (c Config) Validate() error {
	c = c.withDefaults()
	if c.SwipeMinSpan >= c.SwipeMaxSpan {
		return fmt.Errorf("swipe min span %v must be below max span %v", c.SwipeMinSpan, c.SwipeMaxSpan)
	}
	if c.MinConfidence > 1 || c.StaticConfidence > 1 {
		return fmt.Errorf("confidence thresholds must be at most 1")
	}
	return nil
}
