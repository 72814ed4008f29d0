// Package config holds every recognised controller option. A Config is built
// once at startup and threaded through component constructors.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/photo-trigger/internal/adc"
	"github.com/sweeney/photo-trigger/internal/gpio"
	"github.com/sweeney/photo-trigger/internal/logic"
	"github.com/sweeney/photo-trigger/internal/status"
)

// Config represents the controller configuration.
type Config struct {
	// Autolearn derives the threshold from ambient light at startup.
	// When false FixedThreshold is used.
	Autolearn      bool `yaml:"autolearn"`
	FixedThreshold int  `yaml:"fixed_threshold"`

	// TriggerInverted makes the trigger output active-low.
	TriggerInverted bool `yaml:"trigger_inverted"`

	// BatteryCheck enables the battery classifier. When false the heartbeat
	// keeps its startup pattern.
	BatteryCheck bool `yaml:"battery_check"`

	Calibration CalibrationConfig `yaml:"calibration"`
	Detector    DetectorConfig    `yaml:"detector"`
	Battery     BatteryConfig     `yaml:"battery"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`

	// LoopInterval paces the control loop; 0 spins.
	LoopInterval time.Duration `yaml:"loop_interval"`

	Pins PinsConfig `yaml:"pins"`
	ADC  ADCConfig  `yaml:"adc"`
	Log  LogConfig  `yaml:"log"`
	MQTT MQTTConfig `yaml:"mqtt"`
}

// CalibrationConfig contains the autolearn parameters.
type CalibrationConfig struct {
	MinLimit    int           `yaml:"min_limit"`
	Offset      int           `yaml:"offset"`
	SampleCount int           `yaml:"sample_count"` // readings taken = sample_count + 1
	SampleDelay time.Duration `yaml:"sample_delay"`
}

// DetectorConfig contains the barrier detector timing.
type DetectorConfig struct {
	Hold           time.Duration `yaml:"hold"`
	ErrorThreshold time.Duration `yaml:"error_threshold"`
	ReleasePoll    time.Duration `yaml:"release_poll"`
}

// BatteryConfig contains the battery classifier constants.
type BatteryConfig struct {
	WarningThreshold int `yaml:"warning_threshold"`
	LowThreshold     int `yaml:"low_threshold"`
	Window           int `yaml:"window"`
}

// HeartbeatConfig is the startup blink pattern.
type HeartbeatConfig struct {
	FrequencyHz float64 `yaml:"frequency_hz"`
	DutyCycle   int     `yaml:"duty_cycle"`
}

// PinsConfig maps the four outputs onto GPIO line offsets.
type PinsConfig struct {
	Chip      string `yaml:"chip"`
	Trigger   int    `yaml:"trigger"`
	Ready     int    `yaml:"ready"`
	Fault     int    `yaml:"fault"`
	Heartbeat int    `yaml:"heartbeat"`
}

// ADCConfig selects the analog converter.
type ADCConfig struct {
	Bus            string `yaml:"bus"`
	Address        uint16 `yaml:"address"`
	PhotoInput     int    `yaml:"photo_input"`
	BatteryInput   int    `yaml:"battery_input"`
	FullScaleMilli int    `yaml:"full_scale_mv"`
	Bits           int    `yaml:"bits"`
}

// LogConfig sets diagnostic verbosity.
type LogConfig struct {
	Level string `yaml:"level"`
}

// MQTTConfig configures the optional diagnostic mirror. An empty broker disables it.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic"`
	ClientID string `yaml:"client_id"`
	Level    string `yaml:"level"`
}

// Default returns the configuration of the reference build.
func Default() *Config {
	return &Config{
		Autolearn:       true,
		FixedThreshold:  500,
		TriggerInverted: false,
		BatteryCheck:    true,
		Calibration: CalibrationConfig{
			MinLimit:    500,
			Offset:      150,
			SampleCount: 25,
			SampleDelay: 80 * time.Millisecond,
		},
		Detector: DetectorConfig{
			Hold:           150 * time.Millisecond,
			ErrorThreshold: 1000 * time.Millisecond,
			ReleasePoll:    time.Millisecond,
		},
		Battery: BatteryConfig{
			WarningThreshold: 500,
			LowThreshold:     490,
			Window:           25,
		},
		Heartbeat: HeartbeatConfig{
			FrequencyHz: 0.5,
			DutyCycle:   50,
		},
		LoopInterval: time.Millisecond,
		Pins: PinsConfig{
			Chip:      gpio.DefaultChip,
			Trigger:   gpio.DefaultPinTrigger,
			Ready:     gpio.DefaultPinReady,
			Fault:     gpio.DefaultPinFault,
			Heartbeat: gpio.DefaultPinHeartbeat,
		},
		ADC: ADCConfig{
			Address:        0x48,
			PhotoInput:     0,
			BatteryInput:   1,
			FullScaleMilli: 4096,
			Bits:           adc.DefaultBits,
		},
		Log: LogConfig{Level: "info"},
		MQTT: MQTTConfig{
			Topic:    "photo-trigger/log",
			ClientID: "photo-trigger",
			Level:    "info",
		},
	}
}

// Load reads configuration from a YAML file on top of the defaults.
// A missing file yields the defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "read config file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config file")
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return errors.Wrap(err, "write config file")
	}
	return nil
}

// ensureDefaults fills fields a partial file left at their zero value.
// Booleans and values where zero is meaningful are left alone.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Calibration.SampleDelay == 0 {
		c.Calibration.SampleDelay = def.Calibration.SampleDelay
	}
	if c.Detector.Hold == 0 {
		c.Detector.Hold = def.Detector.Hold
	}
	if c.Detector.ErrorThreshold == 0 {
		c.Detector.ErrorThreshold = def.Detector.ErrorThreshold
	}
	if c.Battery.Window == 0 {
		c.Battery.Window = def.Battery.Window
	}
	if c.Heartbeat.FrequencyHz == 0 {
		c.Heartbeat.FrequencyHz = def.Heartbeat.FrequencyHz
	}

	if c.Pins.Chip == "" {
		c.Pins.Chip = def.Pins.Chip
	}
	if c.ADC.Address == 0 {
		c.ADC.Address = def.ADC.Address
	}
	if c.ADC.FullScaleMilli == 0 {
		c.ADC.FullScaleMilli = def.ADC.FullScaleMilli
	}
	if c.ADC.Bits == 0 {
		c.ADC.Bits = def.ADC.Bits
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = def.MQTT.Topic
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Level == "" {
		c.MQTT.Level = def.MQTT.Level
	}
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	switch {
	case c.Battery.WarningThreshold <= c.Battery.LowThreshold:
		return errors.Errorf("battery warning_threshold (%d) must exceed low_threshold (%d)", c.Battery.WarningThreshold, c.Battery.LowThreshold)
	case c.Battery.Window <= 0:
		return errors.Errorf("battery window must be positive, got %d", c.Battery.Window)
	case c.Calibration.SampleCount < 0:
		return errors.Errorf("calibration sample_count must not be negative, got %d", c.Calibration.SampleCount)
	case c.Calibration.SampleDelay < 0:
		return errors.Errorf("calibration sample_delay must not be negative, got %v", c.Calibration.SampleDelay)
	case c.Detector.Hold <= 0:
		return errors.Errorf("detector hold must be positive, got %v", c.Detector.Hold)
	case c.Detector.ErrorThreshold <= 0:
		return errors.Errorf("detector error_threshold must be positive, got %v", c.Detector.ErrorThreshold)
	case c.Detector.ReleasePoll < 0 || c.LoopInterval < 0:
		return errors.New("release_poll and loop_interval must not be negative")
	case c.Heartbeat.FrequencyHz <= 0:
		return errors.Errorf("heartbeat frequency_hz must be positive, got %v", c.Heartbeat.FrequencyHz)
	case c.Heartbeat.DutyCycle < 0 || c.Heartbeat.DutyCycle > 100:
		return errors.Errorf("heartbeat duty_cycle must be 0..100, got %d", c.Heartbeat.DutyCycle)
	case c.ADC.Bits < 1 || c.ADC.Bits > 15:
		return errors.Errorf("adc bits must be 1..15, got %d", c.ADC.Bits)
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "log level")
	}
	if c.MQTT.Broker != "" {
		if _, err := logrus.ParseLevel(c.MQTT.Level); err != nil {
			return errors.Wrap(err, "mqtt level")
		}
	}
	return nil
}

// CalibrationParams returns the calibrator settings.
func (c *Config) CalibrationParams() logic.CalibrationParams {
	return logic.CalibrationParams{
		SampleCount: c.Calibration.SampleCount,
		SampleDelay: c.Calibration.SampleDelay,
		MinLimit:    c.Calibration.MinLimit,
		Offset:      c.Calibration.Offset,
	}
}

// DetectorConfig returns the detector settings.
func (c *Config) DetectorConfig() logic.DetectorConfig {
	return logic.DetectorConfig{
		Hold:           c.Detector.Hold,
		ErrorThreshold: c.Detector.ErrorThreshold,
		ReleasePoll:    c.Detector.ReleasePoll,
	}
}

// BatteryConfig returns the classifier settings.
func (c *Config) BatteryConfig() status.BatteryConfig {
	return status.BatteryConfig{
		Window:           c.Battery.Window,
		LowThreshold:     c.Battery.LowThreshold,
		WarningThreshold: c.Battery.WarningThreshold,
	}
}

// GPIOConfig returns the output line settings.
func (c *Config) GPIOConfig() gpio.Config {
	return gpio.Config{
		Chip: c.Pins.Chip,
		Offsets: map[gpio.Line]int{
			gpio.Trigger:   c.Pins.Trigger,
			gpio.Ready:     c.Pins.Ready,
			gpio.Fault:     c.Pins.Fault,
			gpio.Heartbeat: c.Pins.Heartbeat,
		},
		TriggerInverted: c.TriggerInverted,
	}
}

// SamplerConfig returns the ADC settings.
func (c *Config) SamplerConfig() adc.Config {
	return adc.Config{
		Bus:            c.ADC.Bus,
		Address:        c.ADC.Address,
		PhotoInput:     c.ADC.PhotoInput,
		BatteryInput:   c.ADC.BatteryInput,
		FullScaleMilli: c.ADC.FullScaleMilli,
		Bits:           c.ADC.Bits,
	}
}
