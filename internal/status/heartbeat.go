// Package status drives the health indicators: the heartbeat blink and the
// battery classifier that selects its pattern.
//
// Both are advanced by the control loop; neither runs on its own goroutine,
// so a blocked loop visibly freezes the heartbeat.
package status

import (
	"fmt"
	"time"

	"github.com/sweeney/photo-trigger/internal/logic"
)

// Heartbeat is a poll-driven blink generator.
type Heartbeat struct {
	led   logic.Indicator
	clock logic.Clock

	frequency float64
	duty      int

	started    bool
	on         bool
	phaseStart time.Time
	phaseLen   time.Duration
}

// NewHeartbeat creates a stopped heartbeat on led.
func NewHeartbeat(led logic.Indicator, clock logic.Clock) *Heartbeat {
	return &Heartbeat{led: led, clock: clock}
}

// Begin starts blinking at hz with the given duty cycle, beginning with an ON phase.
func (h *Heartbeat) Begin(hz float64, dutyCyclePercent int) error {
	if err := h.SetFrequency(hz); err != nil {
		return err
	}
	if err := h.SetDutyCycle(dutyCyclePercent); err != nil {
		return err
	}
	on := h.duty > 0
	if err := h.led.Set(on); err != nil {
		return fmt.Errorf("set heartbeat led: %w", err)
	}
	h.started = true
	h.startPhase(on, h.clock.Now())
	return nil
}

// SetFrequency changes the blink frequency. It applies from the next phase boundary.
func (h *Heartbeat) SetFrequency(hz float64) error {
	if hz <= 0 {
		return fmt.Errorf("heartbeat frequency must be positive, got %v", hz)
	}
	h.frequency = hz
	return nil
}

// SetDutyCycle changes the ON share of the period. It applies from the next phase boundary.
func (h *Heartbeat) SetDutyCycle(percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("heartbeat duty cycle must be 0..100, got %d", percent)
	}
	h.duty = percent
	return nil
}

// Advance flips the LED when the current phase has elapsed; otherwise it does nothing.
func (h *Heartbeat) Advance() error {
	if !h.started {
		return nil
	}
	now := h.clock.Now()
	if now.Sub(h.phaseStart) < h.phaseLen {
		return nil
	}

	next := !h.on
	switch h.duty {
	case 0:
		next = false
	case 100:
		next = true
	}
	if next != h.on {
		if err := h.led.Set(next); err != nil {
			return fmt.Errorf("set heartbeat led: %w", err)
		}
	}
	h.startPhase(next, now)
	return nil
}

// startPhase fixes the length of the new phase from the current pattern.
func (h *Heartbeat) startPhase(on bool, now time.Time) {
	h.on = on
	h.phaseStart = now
	if on {
		h.phaseLen = h.OnDuration()
	} else {
		h.phaseLen = h.OffDuration()
	}
}

// Period returns the blink period at the current frequency.
func (h *Heartbeat) Period() time.Duration {
	if h.frequency <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / h.frequency)
}

// OnDuration returns the ON share of the period.
func (h *Heartbeat) OnDuration() time.Duration {
	return h.Period() * time.Duration(h.duty) / 100
}

// OffDuration returns the remainder of the period.
func (h *Heartbeat) OffDuration() time.Duration {
	return h.Period() - h.OnDuration()
}

// Pattern returns the current frequency and duty cycle.
func (h *Heartbeat) Pattern() Pattern {
	return Pattern{FrequencyHz: h.frequency, DutyCycle: h.duty}
}

// On reports whether the LED is in its ON phase.
func (h *Heartbeat) On() bool {
	return h.on
}
