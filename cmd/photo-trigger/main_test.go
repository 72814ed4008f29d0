package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/cobra"

	"github.com/sweeney/photo-trigger/internal/adc"
	"github.com/sweeney/photo-trigger/internal/config"
	"github.com/sweeney/photo-trigger/internal/gpio"
	"github.com/sweeney/photo-trigger/internal/logic"
	"github.com/sweeney/photo-trigger/internal/mqtt"
	"github.com/sweeney/photo-trigger/internal/status"
)

var testStart = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

// --- runLoop tests ---

// recorder collects the order of component steps across fakes.
type recorder struct {
	steps []string
}

type fakeHeartbeat struct{ rec *recorder }

func (f *fakeHeartbeat) Advance() error {
	f.rec.steps = append(f.rec.steps, "heartbeat")
	return nil
}

// fakeDetector cancels the loop after a fixed number of polls.
type fakeDetector struct {
	rec    *recorder
	polls  int
	limit  int
	cancel context.CancelFunc
	err    error
}

func (f *fakeDetector) Poll(ctx context.Context) error {
	f.rec.steps = append(f.rec.steps, "detector")
	f.polls++
	if f.polls >= f.limit {
		f.cancel()
	}
	return f.err
}

type fakeBattery struct {
	rec    *recorder
	result *status.WindowResult
}

func (f *fakeBattery) Accumulate() (*status.WindowResult, error) {
	f.rec.steps = append(f.rec.steps, "battery")
	return f.result, nil
}

func TestRunLoopOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	clock := logic.NewFakeClock(testStart)
	log, _ := test.NewNullLogger()

	err := runLoop(ctx, &fakeHeartbeat{rec}, &fakeDetector{rec: rec, limit: 3, cancel: cancel}, &fakeBattery{rec: rec}, clock, time.Millisecond, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := strings.Repeat("heartbeat,detector,battery,", 3)
	if got := strings.Join(rec.steps, ",") + ","; got != want {
		t.Errorf("step order:\n got %s\nwant %s", got, want)
	}
	if len(clock.Sleeps) != 3 {
		t.Errorf("expected 3 pacing sleeps, got %d", len(clock.Sleeps))
	}
}

func TestRunLoopWithoutBattery(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	log, _ := test.NewNullLogger()

	err := runLoop(ctx, &fakeHeartbeat{rec}, &fakeDetector{rec: rec, limit: 2, cancel: cancel}, nil, logic.NewFakeClock(testStart), 0, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := strings.Join(rec.steps, ","); got != "heartbeat,detector,heartbeat,detector" {
		t.Errorf("unexpected steps: %s", got)
	}
}

func TestRunLoopStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recorder{}
	log, _ := test.NewNullLogger()

	if err := runLoop(ctx, &fakeHeartbeat{rec}, &fakeDetector{rec: rec, limit: 1, cancel: cancel}, nil, logic.NewFakeClock(testStart), 0, log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.steps) != 0 {
		t.Errorf("expected no steps, got %v", rec.steps)
	}
}

func TestRunLoopContinuesOnDetectorError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	log, hook := test.NewNullLogger()
	det := &fakeDetector{rec: rec, limit: 3, cancel: cancel, err: errors.New("i2c timeout")}

	if err := runLoop(ctx, &fakeHeartbeat{rec}, det, nil, logic.NewFakeClock(testStart), 0, log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if det.polls != 3 {
		t.Errorf("expected 3 polls, got %d", det.polls)
	}
	warnings := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "barrier detector" {
			warnings++
		}
	}
	// The third poll ends with the context cancelled and is not reported.
	if warnings != 2 {
		t.Errorf("expected 2 warnings, got %d", warnings)
	}
}

func TestRunLoopLogsBatteryChange(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &recorder{}
	log, hook := test.NewNullLogger()
	bat := &fakeBattery{rec: rec, result: &status.WindowResult{Average: 480, Level: status.LevelLow, Changed: true}}

	runLoop(ctx, &fakeHeartbeat{rec}, &fakeDetector{rec: rec, limit: 1, cancel: cancel}, bat, logic.NewFakeClock(testStart), 0, log)

	e := hook.LastEntry()
	if e == nil {
		t.Fatal("expected a log entry")
	}
	if e.Level != logrus.WarnLevel || e.Message != "battery level changed" {
		t.Errorf("unexpected entry: %s %q", e.Level, e.Message)
	}
	if e.Data["heartbeat"] != "5Hz/50%" {
		t.Errorf("heartbeat field: got %v", e.Data["heartbeat"])
	}
}

// --- end-to-end tests ---

// cancelSampler cancels the run once the photo channel has been read limit times.
type cancelSampler struct {
	*adc.FakeSampler
	limit  int
	cancel context.CancelFunc
}

func (s *cancelSampler) Read(ch adc.Channel) (int, error) {
	v, err := s.FakeSampler.Read(ch)
	if ch == adc.Photo && s.Reads[adc.Photo] >= s.limit {
		s.cancel()
	}
	return v, err
}

type harness struct {
	cfg     *config.Config
	sampler *adc.FakeSampler
	outputs *gpio.FakeWriter
	clock   *logic.FakeClock
	log     *logrus.Logger
	hook    *test.Hook
}

func newHarness(photo, battery []int) *harness {
	h := &harness{
		cfg:     config.Default(),
		sampler: adc.NewFakeSampler(photo, battery),
		outputs: gpio.NewFakeWriter(),
		clock:   logic.NewFakeClock(testStart),
	}
	h.outputs.Now = h.clock.Now
	h.log, h.hook = test.NewNullLogger()
	h.log.SetLevel(logrus.DebugLevel)
	return h
}

// runUntil runs the controller until the photo channel has been read limit times.
func (h *harness) runUntil(t *testing.T, limit int) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := &cancelSampler{FakeSampler: h.sampler, limit: limit, cancel: cancel}
	return run(ctx, h.cfg, s, h.outputs, h.clock, h.log)
}

func (h *harness) hasEntry(level logrus.Level, msg string) bool {
	for _, e := range h.hook.AllEntries() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			return true
		}
	}
	return false
}

func TestRunCalibrationSuccess(t *testing.T) {
	h := newHarness(append(adc.Repeat(600, 26), 600), adc.Repeat(600, 1))

	if err := h.runUntil(t, 27); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !h.outputs.Level(gpio.Ready) {
		t.Error("expected ready indicator on")
	}
	if h.outputs.Level(gpio.Fault) {
		t.Error("expected fault indicator off")
	}
	if !h.hasEntry(logrus.InfoLevel, "will trigger at or below 450") {
		t.Error("expected threshold to be logged")
	}
	if len(h.outputs.Changes(gpio.Heartbeat)) == 0 {
		t.Error("heartbeat should start after calibration")
	}
	if h.sampler.Reads[adc.Battery] != 1 {
		t.Errorf("expected 1 battery read, got %d", h.sampler.Reads[adc.Battery])
	}
}

func TestRunCalibrationFailureHalts(t *testing.T) {
	h := newHarness(adc.Repeat(400, 100), adc.Repeat(600, 100))

	// A cancelled context stands in for the external reset.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := run(ctx, h.cfg, h.sampler, h.outputs, h.clock, h.log)

	if !errors.Is(err, logic.ErrCalibrationFailed) {
		t.Fatalf("expected ErrCalibrationFailed, got %v", err)
	}
	if h.sampler.Reads[adc.Photo] != 26 {
		t.Errorf("expected no reads after the 26 calibration samples, got %d", h.sampler.Reads[adc.Photo])
	}
	if h.sampler.Reads[adc.Battery] != 0 {
		t.Error("battery must not be sampled after a failed calibration")
	}
	if !h.outputs.Level(gpio.Fault) {
		t.Error("expected fault indicator on")
	}
	if len(h.outputs.Changes(gpio.Ready)) != 0 {
		t.Error("ready indicator must stay off")
	}
	if len(h.outputs.Changes(gpio.Heartbeat)) != 0 {
		t.Error("heartbeat must not start")
	}
	if !h.hasEntry(logrus.ErrorLevel, "reset needed") {
		t.Error("expected calibration failure to be logged")
	}
}

func TestRunHaltBlocksUntilReset(t *testing.T) {
	h := newHarness(adc.Repeat(400, 26), nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- run(ctx, h.cfg, h.sampler, h.outputs, h.clock, h.log) }()

	select {
	case err := <-done:
		t.Fatalf("run returned before reset: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, logic.ErrCalibrationFailed) {
			t.Errorf("expected ErrCalibrationFailed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("run did not return after reset")
	}
}

func TestRunShortCrossing(t *testing.T) {
	photo := append(adc.Repeat(600, 26), 600, 440, 460, 600)
	h := newHarness(photo, adc.Repeat(600, 10))

	if err := h.runUntil(t, len(photo)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trigger := h.outputs.Changes(gpio.Trigger)
	// Initial release at startup, then one pulse.
	if len(trigger) != 3 {
		t.Fatalf("expected 3 trigger writes, got %+v", trigger)
	}
	if trigger[0].Active || !trigger[1].Active || trigger[2].Active {
		t.Errorf("unexpected trigger sequence: %+v", trigger)
	}
	if held := trigger[2].At.Sub(trigger[1].At); held != 150*time.Millisecond {
		t.Errorf("hold: got %v, want 150ms", held)
	}
	if len(h.outputs.Changes(gpio.Fault)) != 0 {
		t.Error("fault indicator must not be touched")
	}
	if !h.hasEntry(logrus.InfoLevel, "stopped") {
		t.Error("expected stop summary")
	}
}

func TestRunStuckBeamFreezesHeartbeat(t *testing.T) {
	photo := adc.Repeat(600, 26)
	photo = append(photo, adc.Repeat(600, 2000)...)
	photo = append(photo, adc.Repeat(440, 1300)...)
	photo = append(photo, adc.Repeat(460, 2000)...)
	h := newHarness(photo, adc.Repeat(600, 1))

	if err := h.runUntil(t, len(photo)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	trigger := h.outputs.Changes(gpio.Trigger)
	fault := h.outputs.Changes(gpio.Fault)
	if len(trigger) != 3 {
		t.Fatalf("expected startup release plus one pulse, got %+v", trigger)
	}
	if len(fault) != 2 || !fault[0].Active || fault[1].Active {
		t.Fatalf("expected fault set then cleared, got %+v", fault)
	}
	if !h.outputs.Level(gpio.Ready) {
		t.Error("ready indicator stays on through a stuck beam")
	}

	blockedFrom, blockedTo := trigger[1].At, fault[1].At
	var before, during, after int
	for _, c := range h.outputs.Changes(gpio.Heartbeat) {
		// The heartbeat may toggle in the same iteration that fires the pulse.
		switch {
		case !c.At.After(blockedFrom):
			before++
		case c.At.After(blockedTo):
			after++
		default:
			during++
		}
	}
	if before < 2 {
		t.Errorf("heartbeat should blink before the crossing, got %d changes", before)
	}
	if during != 0 {
		t.Errorf("heartbeat must be frozen while the beam is stuck, got %d changes", during)
	}
	if after == 0 {
		t.Error("heartbeat should resume after the beam clears")
	}

	if !h.hasEntry(logrus.WarnLevel, "photosensor stuck") {
		t.Error("expected stuck-beam warning")
	}
	if !h.hasEntry(logrus.InfoLevel, "fault cleared") {
		t.Error("expected fault-cleared line")
	}
}

func TestRunStopsDuringStuckBeam(t *testing.T) {
	// The beam never clears: the last reading repeats.
	photo := append(adc.Repeat(600, 27), 440)
	h := newHarness(photo, adc.Repeat(600, 1))

	limit := 27 + 1500
	done := make(chan error, 1)
	go func() { done <- h.runUntil(t, limit) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("run did not return after cancellation while the beam was stuck")
	}

	if got := h.sampler.Reads[adc.Photo]; got != limit {
		t.Errorf("sampling should stop at cancellation: got %d reads, want %d", got, limit)
	}
	if h.outputs.Level(gpio.Trigger) {
		t.Error("trigger must be released")
	}
	if !h.outputs.Level(gpio.Fault) {
		t.Error("stuck beam should have latched the fault indicator")
	}
	if h.hasEntry(logrus.WarnLevel, "barrier detector") {
		t.Error("shutdown must not be reported as a detector error")
	}
	if !h.hasEntry(logrus.InfoLevel, "stopped") {
		t.Error("expected stop summary")
	}
}

func TestLogMirrorState(t *testing.T) {
	log, hook := test.NewNullLogger()
	log.SetLevel(logrus.DebugLevel)
	p := mqtt.NewFakePublisher()

	logMirrorState(log, p)
	if e := hook.LastEntry(); e == nil || e.Level != logrus.WarnLevel {
		t.Errorf("expected warning while disconnected, got %+v", e)
	}

	p.Connected = true
	logMirrorState(log, p)
	if e := hook.LastEntry(); e == nil || e.Level != logrus.DebugLevel {
		t.Errorf("expected debug line while connected, got %+v", e)
	}
}

func TestRunAutolearnDisabled(t *testing.T) {
	h := newHarness([]int{600}, []int{600})
	h.cfg.Autolearn = false

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, h.cfg, h.sampler, h.outputs, h.clock, h.log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if h.sampler.Reads[adc.Photo] != 0 {
		t.Errorf("no calibration reads expected, got %d", h.sampler.Reads[adc.Photo])
	}
	if !h.outputs.Level(gpio.Ready) {
		t.Error("expected ready indicator on")
	}
	if !h.hasEntry(logrus.InfoLevel, "will trigger at or below 500") {
		t.Error("expected fixed threshold to be logged")
	}
}

func TestRunBatteryCheckDisabled(t *testing.T) {
	h := newHarness(adc.Repeat(600, 100), adc.Repeat(300, 100))
	h.cfg.BatteryCheck = false

	if err := h.runUntil(t, 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.sampler.Reads[adc.Battery] != 0 {
		t.Errorf("battery must not be sampled, got %d reads", h.sampler.Reads[adc.Battery])
	}
}

func TestRunBatteryLowChangesPattern(t *testing.T) {
	h := newHarness(adc.Repeat(600, 100), adc.Repeat(300, 100))

	if err := h.runUntil(t, 26+30); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !h.hasEntry(logrus.WarnLevel, "battery level changed") {
		t.Error("expected battery warning")
	}
}

func TestRunCalibrationReadError(t *testing.T) {
	h := newHarness([]int{600}, nil)
	h.sampler.ReadError = errors.New("i2c nack")

	err := run(context.Background(), h.cfg, h.sampler, h.outputs, h.clock, h.log)
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, logic.ErrCalibrationFailed) {
		t.Error("read error must not be reported as calibration failure")
	}
}

// --- command tests ---

func TestCalibrateOnce(t *testing.T) {
	tests := []struct {
		name    string
		reading int
		wantErr bool
		want    string
	}{
		{"ok", 600, false, "threshold: 450"},
		{"failed", 400, true, "calibration failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			cmd := &cobra.Command{}
			cmd.SetOut(&buf)

			err := calibrateOnce(cmd, config.Default(), adc.NewFakeSampler(adc.Repeat(tt.reading, 26), nil), gpio.NewFakeWriter(), logic.NewFakeClock(testStart))
			if (err != nil) != tt.wantErr {
				t.Fatalf("error: got %v, wantErr %v", err, tt.wantErr)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("output %q does not contain %q", buf.String(), tt.want)
			}
		})
	}
}

func TestCalibrateOnceReadError(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	sampler := adc.NewFakeSampler([]int{600}, nil)
	sampler.ReadError = errors.New("i2c nack")

	if err := calibrateOnce(cmd, config.Default(), sampler, gpio.NewFakeWriter(), logic.NewFakeClock(testStart)); err == nil {
		t.Fatal("expected error")
	}
	if strings.Contains(buf.String(), "baseline") {
		t.Errorf("no baseline should be printed without samples: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "i2c nack") {
		t.Errorf("read error should be printed: %q", buf.String())
	}
}

func TestPrintReadings(t *testing.T) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)

	if err := printReadings(cmd, config.Default(), adc.NewFakeSampler([]int{480}, []int{495})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "photo:   480") || !strings.Contains(out, "interrupted") {
		t.Errorf("unexpected photo line: %q", out)
	}
	if !strings.Contains(out, "battery: 495 (WARNING)") {
		t.Errorf("unexpected battery line: %q", out)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	oldPath, oldLevel, oldBroker := configPath, logLevel, broker
	t.Cleanup(func() { configPath, logLevel, broker = oldPath, oldLevel, oldBroker })

	configPath = filepath.Join(t.TempDir(), "photo-trigger.yaml")
	if err := os.WriteFile(configPath, []byte("log:\n  level: warn\n"), 0644); err != nil {
		t.Fatal(err)
	}
	logLevel = "debug"
	broker = "tcp://localhost:1883"

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level: got %q, want debug", cfg.Log.Level)
	}
	if cfg.MQTT.Broker != "tcp://localhost:1883" {
		t.Errorf("broker: got %q", cfg.MQTT.Broker)
	}
}

func TestLoadConfigRejectsBadOverride(t *testing.T) {
	oldPath, oldLevel := configPath, logLevel
	t.Cleanup(func() { configPath, logLevel = oldPath, oldLevel })

	configPath = filepath.Join(t.TempDir(), "missing.yaml")
	logLevel = "shouty"

	if _, err := loadConfig(); err == nil {
		t.Error("expected invalid log level to be rejected")
	}
}
