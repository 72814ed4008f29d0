// Package mqtt mirrors diagnostic log lines to an MQTT broker.
// Payloads are the same human-readable lines written to the console; the
// mirror is observational only and never blocks the caller.
package mqtt

import (
	"bytes"

	"github.com/sirupsen/logrus"
)

// Publisher sends diagnostic lines to the broker.
type Publisher interface {
	// Publish queues a line for delivery. It must not block.
	Publish(line []byte) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Hook is a logrus hook that forwards entries at or above a level.
type Hook struct {
	publisher Publisher
	levels    []logrus.Level
	formatter logrus.Formatter
}

// NewHook returns a hook publishing entries at min level or more severe.
func NewHook(p Publisher, min logrus.Level) *Hook {
	var levels []logrus.Level
	for _, l := range logrus.AllLevels {
		if l <= min {
			levels = append(levels, l)
		}
	}
	return &Hook{
		publisher: p,
		levels:    levels,
		formatter: &logrus.TextFormatter{DisableColors: true, FullTimestamp: true},
	}
}

// Levels implements logrus.Hook.
func (h *Hook) Levels() []logrus.Level {
	return h.levels
}

// Fire implements logrus.Hook.
func (h *Hook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	return h.publisher.Publish(bytes.TrimRight(line, "\n"))
}
