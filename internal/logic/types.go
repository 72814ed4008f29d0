// Package logic contains the light-barrier engines: startup calibration and
// barrier-crossing detection.
// This package has NO hardware dependencies; sensors, indicators and time are
// injected through the interfaces below.
package logic

import "time"

// Reader yields instantaneous readings from one analog channel.
type Reader interface {
	Read() (int, error)
}

// Indicator is a single digital output line.
type Indicator interface {
	Set(active bool) error
}

// BarrierState is the detector's state.
type BarrierState string

const (
	StateIdle            BarrierState = "IDLE"
	StatePulsing         BarrierState = "PULSING"
	StateAwaitingRelease BarrierState = "AWAITING_RELEASE"
)

// CalibrationResult is produced once at startup.
type CalibrationResult struct {
	BaselineAverage  int
	TriggerThreshold int
	Valid            bool
}

// EventType represents a detector event.
type EventType string

const (
	EventTriggered    EventType = "TRIGGERED"
	EventReleased     EventType = "RELEASED"
	EventBeamStuck    EventType = "BEAM_STUCK"
	EventFaultCleared EventType = "FAULT_CLEARED"
)

// Event is reported by the detector as it moves through a crossing.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Reading   int
	Threshold int
}

// EventHandler receives detector events as they happen.
type EventHandler func(Event)

// Counts tracks detector activity since startup.
type Counts struct {
	Pulses int
	Faults int
}
