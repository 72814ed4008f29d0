package logic

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DetectorConfig holds the detector timing constants.
type DetectorConfig struct {
	Hold           time.Duration // trigger assertion length
	ErrorThreshold time.Duration // beam-stuck timeout, measured from the end of the hold
	ReleasePoll    time.Duration // delay between re-samples while awaiting release, 0 spins
}

// Detector is the barrier-crossing state machine.
//
// Poll runs one control-loop step. From Idle it either returns at once (beam
// clear) or runs a complete crossing: Pulsing holds the trigger output, then
// AwaitingRelease re-samples until the beam is restored. Nothing else in the
// loop advances during a crossing, which stalls the heartbeat on a stuck beam.
// Only cancellation of the context passed to Poll ends the wait early.
type Detector struct {
	cfg       DetectorConfig
	threshold int
	sensor    Reader
	trigger   Indicator
	fault     Indicator
	clock     Clock
	handler   EventHandler

	state           BarrierState
	releaseDeadline time.Time
	releasePending  bool // trigger de-assert failed and is retried
	faulted         bool
	counts          Counts
}

// NewDetector creates a detector in Idle. The calibration result must be valid.
// handler may be nil.
func NewDetector(cfg DetectorConfig, cal CalibrationResult, sensor Reader, trigger, fault Indicator, clock Clock, handler EventHandler) (*Detector, error) {
	if !cal.Valid {
		return nil, errors.New("detector requires a valid calibration")
	}
	return &Detector{
		cfg:       cfg,
		threshold: cal.TriggerThreshold,
		sensor:    sensor,
		trigger:   trigger,
		fault:     fault,
		clock:     clock,
		handler:   handler,
		state:     StateIdle,
	}, nil
}

// Interrupted reports whether reading counts as a broken beam.
// The comparison is inclusive: a reading equal to the threshold triggers.
func Interrupted(reading, threshold int) bool {
	return reading <= threshold
}

// Poll advances the state machine. It returns once the detector is back in
// Idle, or with an error, in which case the current state is kept and the next
// call resumes from it. ctx is checked before every AwaitingRelease sample;
// when it is done Poll returns ctx.Err() without touching the outputs.
func (d *Detector) Poll(ctx context.Context) error {
	for {
		switch d.state {
		case StateIdle:
			v, err := d.sensor.Read()
			if err != nil {
				return fmt.Errorf("read photosensor: %w", err)
			}
			if !Interrupted(v, d.threshold) {
				return nil
			}
			d.state = StatePulsing
			d.counts.Pulses++
			d.emit(EventTriggered, v)

		case StatePulsing:
			if err := d.pulse(); err != nil {
				return err
			}

		case StateAwaitingRelease:
			if err := ctx.Err(); err != nil {
				return err
			}
			released, err := d.awaitRelease()
			if err != nil {
				return err
			}
			if released {
				return nil
			}

		default:
			return fmt.Errorf("unknown detector state %q", d.state)
		}
	}
}

// pulse asserts the trigger for the hold duration, blocking.
func (d *Detector) pulse() error {
	if err := d.trigger.Set(true); err != nil {
		return fmt.Errorf("assert trigger: %w", err)
	}
	d.clock.Sleep(d.cfg.Hold)
	d.releaseDeadline = d.clock.Now()
	d.state = StateAwaitingRelease
	d.releasePending = true
	return d.releaseTrigger()
}

// releaseTrigger de-asserts the trigger. After a failed write the next
// awaitRelease retries it; the hold is never repeated.
func (d *Detector) releaseTrigger() error {
	if err := d.trigger.Set(false); err != nil {
		return fmt.Errorf("release trigger: %w", err)
	}
	d.releasePending = false
	return nil
}

// awaitRelease takes one sample while waiting for the beam to clear.
func (d *Detector) awaitRelease() (bool, error) {
	if d.releasePending {
		if err := d.releaseTrigger(); err != nil {
			return false, err
		}
	}

	v, err := d.sensor.Read()
	if err != nil {
		return false, fmt.Errorf("read photosensor: %w", err)
	}

	if !Interrupted(v, d.threshold) {
		if d.faulted {
			if err := d.fault.Set(false); err != nil {
				return false, fmt.Errorf("clear fault indicator: %w", err)
			}
			d.faulted = false
			d.emit(EventFaultCleared, v)
		}
		d.state = StateIdle
		d.emit(EventReleased, v)
		return true, nil
	}

	if !d.faulted && d.clock.Now().Sub(d.releaseDeadline) > d.cfg.ErrorThreshold {
		if err := d.fault.Set(true); err != nil {
			return false, fmt.Errorf("set fault indicator: %w", err)
		}
		d.faulted = true
		d.counts.Faults++
		d.emit(EventBeamStuck, v)
	}

	if d.cfg.ReleasePoll > 0 {
		d.clock.Sleep(d.cfg.ReleasePoll)
	}
	return false, nil
}

func (d *Detector) emit(t EventType, reading int) {
	if d.handler == nil {
		return
	}
	d.handler(Event{
		Timestamp: d.clock.Now(),
		Type:      t,
		Reading:   reading,
		Threshold: d.threshold,
	})
}

// State returns the current state.
func (d *Detector) State() BarrierState {
	return d.state
}

// Faulted reports whether the beam-stuck fault is latched.
func (d *Detector) Faulted() bool {
	return d.faulted
}

// Threshold returns the trigger threshold in use.
func (d *Detector) Threshold() int {
	return d.threshold
}

// Counts returns pulse and fault counts since startup.
func (d *Detector) Counts() Counts {
	return d.counts
}
