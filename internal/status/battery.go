package status

import (
	"fmt"

	"github.com/sweeney/photo-trigger/internal/logic"
)

// Level is the classified battery state.
type Level string

const (
	LevelNormal  Level = "NORMAL"
	LevelWarning Level = "WARNING"
	LevelLow     Level = "LOW"
)

// Pattern is a heartbeat frequency and duty cycle pair.
type Pattern struct {
	FrequencyHz float64
	DutyCycle   int
}

// Pattern returns the documented heartbeat code for the level.
func (l Level) Pattern() Pattern {
	switch l {
	case LevelLow:
		return Pattern{FrequencyHz: 5, DutyCycle: 50}
	case LevelWarning:
		return Pattern{FrequencyHz: 2, DutyCycle: 10}
	default:
		return Pattern{FrequencyHz: 0.5, DutyCycle: 50}
	}
}

// Classify maps a window average onto a level. warning must exceed low.
func Classify(average, low, warning int) Level {
	switch {
	case average <= low:
		return LevelLow
	case average <= warning:
		return LevelWarning
	default:
		return LevelNormal
	}
}

// BatteryConfig holds the classifier constants.
type BatteryConfig struct {
	Window           int
	LowThreshold     int
	WarningThreshold int
}

// PatternSetter receives the pattern of each classified window.
type PatternSetter interface {
	SetFrequency(hz float64) error
	SetDutyCycle(percent int) error
}

// WindowResult describes a completed averaging window.
type WindowResult struct {
	Average int
	Level   Level
	Changed bool // level differs from the previous window
}

// Classifier averages battery readings over fixed windows.
type Classifier struct {
	cfg       BatteryConfig
	sensor    logic.Reader
	heartbeat PatternSetter

	sum     int
	count   int
	level   Level
	average int
}

// NewClassifier creates a classifier that starts in LevelNormal.
func NewClassifier(cfg BatteryConfig, sensor logic.Reader, heartbeat PatternSetter) *Classifier {
	return &Classifier{
		cfg:       cfg,
		sensor:    sensor,
		heartbeat: heartbeat,
		level:     LevelNormal,
	}
}

// Accumulate adds one reading. It returns a result only when the reading
// completes a window; the heartbeat pattern is pushed at that point.
func (c *Classifier) Accumulate() (*WindowResult, error) {
	v, err := c.sensor.Read()
	if err != nil {
		return nil, fmt.Errorf("read battery: %w", err)
	}
	c.sum += v
	c.count++

	if c.count < c.cfg.Window {
		return nil, nil
	}

	avg := c.sum / c.cfg.Window
	c.sum = 0
	c.count = 0

	level := Classify(avg, c.cfg.LowThreshold, c.cfg.WarningThreshold)
	res := &WindowResult{Average: avg, Level: level, Changed: level != c.level}
	c.level = level
	c.average = avg

	p := level.Pattern()
	if err := c.heartbeat.SetFrequency(p.FrequencyHz); err != nil {
		return res, err
	}
	if err := c.heartbeat.SetDutyCycle(p.DutyCycle); err != nil {
		return res, err
	}
	return res, nil
}

// Level returns the level of the last completed window.
func (c *Classifier) Level() Level {
	return c.level
}

// Average returns the average of the last completed window, 0 before the first.
func (c *Classifier) Average() int {
	return c.average
}

// Pending returns the number of readings in the open window.
func (c *Classifier) Pending() int {
	return c.count
}
