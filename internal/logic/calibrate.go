package logic

import (
	"errors"
	"fmt"
	"time"
)

// ErrCalibrationFailed means the ambient baseline is below the minimum limit:
// emitter and receiver have no optical path.
var ErrCalibrationFailed = errors.New("calibration failed")

// CalibrationParams configures the startup procedure.
type CalibrationParams struct {
	SampleCount int           // readings taken = SampleCount + 1
	SampleDelay time.Duration // delay after each reading
	MinLimit    int           // lowest acceptable baseline average
	Offset      int           // threshold = baseline - Offset
}

// Calibrate samples the photosensor SampleCount+1 times and derives the
// trigger threshold from the truncated mean.
//
// Exactly one of ready or fault is activated before returning. On a baseline
// below MinLimit the result is invalid and the error wraps ErrCalibrationFailed;
// the caller must not start the detector. A read or write error aborts
// calibration without touching the remaining indicator, except that a failed
// fault write on a low baseline still wraps ErrCalibrationFailed.
func Calibrate(sensor Reader, clock Clock, p CalibrationParams, ready, fault Indicator) (CalibrationResult, error) {
	n := p.SampleCount + 1
	sum := 0
	for i := 0; i < n; i++ {
		v, err := sensor.Read()
		if err != nil {
			return CalibrationResult{}, fmt.Errorf("calibration sample %d: %w", i, err)
		}
		sum += v
		clock.Sleep(p.SampleDelay)
	}

	res := CalibrationResult{BaselineAverage: sum / n}
	if res.BaselineAverage < p.MinLimit {
		if err := fault.Set(true); err != nil {
			return res, fmt.Errorf("%w: baseline %d below minimum %d; set fault indicator: %v", ErrCalibrationFailed, res.BaselineAverage, p.MinLimit, err)
		}
		return res, fmt.Errorf("%w: baseline %d below minimum %d", ErrCalibrationFailed, res.BaselineAverage, p.MinLimit)
	}

	res.TriggerThreshold = res.BaselineAverage - p.Offset
	res.Valid = true
	if err := ready.Set(true); err != nil {
		return res, fmt.Errorf("set ready indicator: %w", err)
	}
	return res, nil
}

// FixedThreshold is used when autolearn is disabled: the threshold is a
// constant and the ready indicator is switched on straight away.
func FixedThreshold(threshold int, ready Indicator) (CalibrationResult, error) {
	res := CalibrationResult{TriggerThreshold: threshold, Valid: true}
	if err := ready.Set(true); err != nil {
		return res, fmt.Errorf("set ready indicator: %w", err)
	}
	return res, nil
}
