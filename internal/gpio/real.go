//go:build linux

package gpio

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
)

const consumer = "photo-trigger"

// Config selects the chip and line offsets for the real writer.
type Config struct {
	Chip            string
	Offsets         map[Line]int
	TriggerInverted bool
}

// RealWriter drives output lines on actual hardware using the Linux GPIO character device.
type RealWriter struct {
	chip  *gpiocdev.Chip
	lines map[Line]*gpiocdev.Line
}

// NewRealWriter requests every output line, each starting at its inactive level.
// The trigger line is requested active-low when TriggerInverted is set, so the
// inactive level is driven high from the first moment.
func NewRealWriter(cfg Config) (*RealWriter, error) {
	chip, err := gpiocdev.NewChip(cfg.Chip, gpiocdev.WithConsumer(consumer))
	if err != nil {
		return nil, errors.Wrapf(err, "open gpio chip %s", cfg.Chip)
	}

	w := &RealWriter{chip: chip, lines: make(map[Line]*gpiocdev.Line, len(Lines))}
	for _, line := range Lines {
		offset, ok := cfg.Offsets[line]
		if !ok {
			w.Close()
			return nil, fmt.Errorf("no offset configured for %s line", line)
		}

		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
		if line == Trigger && cfg.TriggerInverted {
			opts = append(opts, gpiocdev.AsActiveLow)
		}

		l, err := chip.RequestLine(offset, opts...)
		if err != nil {
			w.Close()
			return nil, errors.Wrapf(err, "request %s pin %d", line, offset)
		}
		w.lines[line] = l
	}

	return w, nil
}

// Set drives line to its logical level. Active-low handling is done by the kernel.
func (w *RealWriter) Set(line Line, active bool) error {
	l, ok := w.lines[line]
	if !ok {
		return fmt.Errorf("%s line not requested", line)
	}
	if err := l.SetValue(physical(active, false)); err != nil {
		return errors.Wrapf(err, "set %s pin", line)
	}
	return nil
}

// Close releases GPIO resources.
// Lines are switched back to inputs before release so nothing stays driven
// after the daemon exits.
func (w *RealWriter) Close() error {
	var errs []error

	for _, line := range Lines {
		l := w.lines[line]
		if l == nil {
			continue
		}
		if err := l.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, errors.Wrapf(err, "reconfigure %s pin", line))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, errors.Wrapf(err, "close %s pin", line))
		}
	}
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close chip"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
