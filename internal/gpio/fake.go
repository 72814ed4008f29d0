package gpio

import "time"

// FakeWriter is a test double that records output levels.
type FakeWriter struct {
	// Levels holds the current logical level of each line.
	Levels map[Line]bool

	// History records every Set call in order.
	History []Change

	// TriggerInverted makes Raw report the trigger line as active-low.
	TriggerInverted bool

	// Now, if set, timestamps each Change.
	Now func() time.Time

	// Closed tracks if Close was called
	Closed bool

	// WriteError, if set, will be returned by Set()
	WriteError error
}

// Change is a single recorded Set call.
type Change struct {
	Line   Line
	Active bool
	At     time.Time
}

// NewFakeWriter creates a FakeWriter with every line inactive.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{Levels: make(map[Line]bool)}
}

// Set records the new level of line.
func (f *FakeWriter) Set(line Line, active bool) error {
	if f.WriteError != nil {
		return f.WriteError
	}

	c := Change{Line: line, Active: active}
	if f.Now != nil {
		c.At = f.Now()
	}
	f.Levels[line] = active
	f.History = append(f.History, c)
	return nil
}

// Level returns the current logical level of line.
func (f *FakeWriter) Level(line Line) bool {
	return f.Levels[line]
}

// Raw returns the electrical value of line, applying trigger polarity.
func (f *FakeWriter) Raw(line Line) int {
	return physical(f.Levels[line], line == Trigger && f.TriggerInverted)
}

// Changes returns the recorded history of a single line.
func (f *FakeWriter) Changes(line Line) []Change {
	var out []Change
	for _, c := range f.History {
		if c.Line == line {
			out = append(out, c)
		}
	}
	return out
}

// Pin returns a Pin bound to line on this writer.
func (f *FakeWriter) Pin(line Line) Pin {
	return NewPin(f, line)
}

// Close marks the writer as closed.
func (f *FakeWriter) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded history and levels.
func (f *FakeWriter) Reset() {
	f.Levels = make(map[Line]bool)
	f.History = nil
	f.Closed = false
	f.WriteError = nil
}
