// Package gpio drives the controller's digital output lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Line identifies one of the four digital outputs.
type Line int

const (
	Trigger Line = iota
	Ready
	Fault
	Heartbeat
)

// Lines lists every output in request order.
var Lines = []Line{Trigger, Ready, Fault, Heartbeat}

func (l Line) String() string {
	switch l {
	case Trigger:
		return "trigger"
	case Ready:
		return "ready"
	case Fault:
		return "fault"
	case Heartbeat:
		return "heartbeat"
	}
	return "unknown"
}

// Writer sets the logical level of output lines.
type Writer interface {
	// Set drives line to its active (true) or inactive (false) level.
	// Polarity is handled by the implementation: active means "asserted"
	// even on an active-low line.
	Set(line Line, active bool) error

	// Close releases GPIO resources.
	Close() error
}

// Default line offsets on gpiochip0 (BCM numbering).
const (
	DefaultChip         = "gpiochip0"
	DefaultPinTrigger   = 17
	DefaultPinReady     = 27
	DefaultPinFault     = 22
	DefaultPinHeartbeat = 23
)

// Pin binds a single line of a Writer. It satisfies the indicator
// interfaces used by the logic and status packages.
type Pin struct {
	w    Writer
	line Line
}

// NewPin returns a Pin driving line through w.
func NewPin(w Writer, line Line) Pin {
	return Pin{w: w, line: line}
}

// Set drives the bound line.
func (p Pin) Set(active bool) error {
	return p.w.Set(p.line, active)
}

// Line returns the bound line.
func (p Pin) Line() Line {
	return p.line
}

// physical converts a logical level to the raw line value.
func physical(active, inverted bool) int {
	if active != inverted {
		return 1
	}
	return 0
}
