package gpio

import (
	"errors"
	"testing"
	"time"
)

func TestFakeWriterSet(t *testing.T) {
	f := NewFakeWriter()

	if err := f.Set(Ready, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Set(Trigger, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Set(Trigger, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !f.Level(Ready) {
		t.Error("expected ready active")
	}
	if f.Level(Trigger) {
		t.Error("expected trigger inactive")
	}
	if f.Level(Fault) {
		t.Error("untouched fault line should be inactive")
	}
	if len(f.History) != 3 {
		t.Fatalf("expected 3 changes, got %d", len(f.History))
	}
	if got := f.Changes(Trigger); len(got) != 2 || !got[0].Active || got[1].Active {
		t.Errorf("unexpected trigger history: %+v", got)
	}
}

func TestFakeWriterTimestamps(t *testing.T) {
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	f := NewFakeWriter()
	f.Now = func() time.Time { return at }

	f.Set(Heartbeat, true)

	if !f.History[0].At.Equal(at) {
		t.Errorf("expected timestamp %v, got %v", at, f.History[0].At)
	}
}

func TestFakeWriterError(t *testing.T) {
	f := NewFakeWriter()
	f.WriteError = errors.New("simulated error")

	err := f.Set(Fault, true)
	if err == nil {
		t.Fatal("expected error to be returned")
	}
	if f.Level(Fault) {
		t.Error("failed write should not change level")
	}
}

func TestFakeWriterPin(t *testing.T) {
	f := NewFakeWriter()
	p := f.Pin(Fault)

	if p.Line() != Fault {
		t.Errorf("expected fault line, got %s", p.Line())
	}
	if err := p.Set(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Level(Fault) {
		t.Error("pin should drive the bound line")
	}
}

func TestTriggerPolarity(t *testing.T) {
	tests := []struct {
		name     string
		inverted bool
		active   bool
		want     int
	}{
		{"normal idle", false, false, 0},
		{"normal asserted", false, true, 1},
		{"inverted idle", true, false, 1},
		{"inverted asserted", true, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFakeWriter()
			f.TriggerInverted = tt.inverted
			f.Set(Trigger, tt.active)
			if got := f.Raw(Trigger); got != tt.want {
				t.Errorf("raw: got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPolarityOnlyAffectsTrigger(t *testing.T) {
	f := NewFakeWriter()
	f.TriggerInverted = true
	f.Set(Ready, true)

	if got := f.Raw(Ready); got != 1 {
		t.Errorf("ready raw: got %d, want 1", got)
	}
}

func TestFakeWriterCloseAndReset(t *testing.T) {
	f := NewFakeWriter()
	f.Set(Ready, true)

	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if f.Closed || f.Level(Ready) || len(f.History) != 0 {
		t.Error("reset should clear state")
	}
}

func TestLineString(t *testing.T) {
	want := map[Line]string{Trigger: "trigger", Ready: "ready", Fault: "fault", Heartbeat: "heartbeat", Line(9): "unknown"}
	for line, s := range want {
		if line.String() != s {
			t.Errorf("Line(%d).String(): got %q, want %q", line, line.String(), s)
		}
	}
}
