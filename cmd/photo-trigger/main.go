// Command photo-trigger watches a light barrier and pulses a trigger output
// when an object interrupts the beam.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sweeney/photo-trigger/internal/adc"
	"github.com/sweeney/photo-trigger/internal/config"
	"github.com/sweeney/photo-trigger/internal/gpio"
	"github.com/sweeney/photo-trigger/internal/logic"
	"github.com/sweeney/photo-trigger/internal/mqtt"
	"github.com/sweeney/photo-trigger/internal/status"
)

const version = "1.0.0"

var (
	configPath = "/etc/photo-trigger.yaml"
	logLevel   = ""
	broker     = ""
)

func main() {
	if err := NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewCommand builds the root command and its sub-commands.
func NewCommand() *cobra.Command {
	var cfg *config.Config

	cmd := &cobra.Command{
		Use:          "photo-trigger",
		Short:        "Light-barrier trigger controller",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := loadConfig()
			if err != nil {
				return err
			}
			cfg = c
			return setupLogger(cfg.Log.Level)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runDaemon(ctx, cfg)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "config file path")
	cmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", logLevel, "log level (trace, debug, info, warn, error), overrides the config file")
	cmd.Flags().StringVar(&broker, "broker", broker, "MQTT broker for the diagnostic mirror, overrides the config file")

	cmd.AddCommand(
		newCalibrateCommand(func() *config.Config { return cfg }),
		newReadingsCommand(func() *config.Config { return cfg }),
	)

	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if broker != "" {
		cfg.MQTT.Broker = broker
	}
	return cfg, cfg.Validate()
}

func setupLogger(level string) error {
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(l)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.StampMilli,
		})
	}
	return nil
}

// openHardware opens the ADC and requests the output lines.
func openHardware(cfg *config.Config) (adc.Sampler, gpio.Writer, error) {
	sampler, err := adc.NewRealSampler(cfg.SamplerConfig())
	if err != nil {
		return nil, nil, fmt.Errorf("init adc: %w", err)
	}
	outputs, err := gpio.NewRealWriter(cfg.GPIOConfig())
	if err != nil {
		sampler.Close()
		return nil, nil, fmt.Errorf("init gpio: %w", err)
	}
	return sampler, outputs, nil
}

func runDaemon(ctx context.Context, cfg *config.Config) error {
	if cfg.MQTT.Broker != "" {
		level, _ := logrus.ParseLevel(cfg.MQTT.Level)
		publisher := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Topic)
		defer func() {
			logMirrorState(logrus.StandardLogger(), publisher)
			publisher.Close()
		}()
		logrus.AddHook(mqtt.NewHook(publisher, level))
		logrus.Infof("mirroring diagnostics to %s topic %s", cfg.MQTT.Broker, cfg.MQTT.Topic)
	}

	sampler, outputs, err := openHardware(cfg)
	if err != nil {
		return err
	}
	defer sampler.Close()
	defer outputs.Close()

	return run(ctx, cfg, sampler, outputs, logic.SystemClock{}, logrus.StandardLogger())
}

// run calibrates, then drives the control loop until ctx is done.
// A failed calibration halts: the fault indicator stays on and nothing else
// happens until ctx is done, after which the calibration error is returned.
func run(ctx context.Context, cfg *config.Config, sampler adc.Sampler, outputs gpio.Writer, clock logic.Clock, log logrus.FieldLogger) error {
	log.Infof("photo-trigger started v%s", version)

	if err := outputs.Set(gpio.Trigger, false); err != nil {
		return fmt.Errorf("release trigger: %w", err)
	}

	photo := adc.NewChannelReader(sampler, adc.Photo)
	ready := gpio.NewPin(outputs, gpio.Ready)
	fault := gpio.NewPin(outputs, gpio.Fault)

	cal, err := startup(cfg, photo, ready, fault, clock, log)
	if errors.Is(err, logic.ErrCalibrationFailed) {
		log.WithError(err).Error("autolearn error, reset needed")
		<-ctx.Done()
		return err
	}
	if err != nil {
		return err
	}

	hb := status.NewHeartbeat(gpio.NewPin(outputs, gpio.Heartbeat), clock)
	if err := hb.Begin(cfg.Heartbeat.FrequencyHz, cfg.Heartbeat.DutyCycle); err != nil {
		return err
	}

	det, err := logic.NewDetector(cfg.DetectorConfig(), cal, photo, gpio.NewPin(outputs, gpio.Trigger), fault, clock, logEvent(log))
	if err != nil {
		return err
	}

	var bat batteryStep
	if cfg.BatteryCheck {
		bat = status.NewClassifier(cfg.BatteryConfig(), adc.NewChannelReader(sampler, adc.Battery), hb)
	}

	err = runLoop(ctx, hb, det, bat, clock, cfg.LoopInterval, log)

	counts := det.Counts()
	log.WithFields(logrus.Fields{"pulses": counts.Pulses, "faults": counts.Faults}).Info("stopped")
	return err
}

// startup produces the trigger threshold, by calibration or from the fixed value.
func startup(cfg *config.Config, photo logic.Reader, ready, fault logic.Indicator, clock logic.Clock, log logrus.FieldLogger) (logic.CalibrationResult, error) {
	if !cfg.Autolearn {
		log.Infof("autolearn disabled, will trigger at or below %d", cfg.FixedThreshold)
		return logic.FixedThreshold(cfg.FixedThreshold, ready)
	}

	p := cfg.CalibrationParams()
	log.WithFields(logrus.Fields{
		"samples": p.SampleCount + 1,
		"delay":   p.SampleDelay,
	}).Info("autolearn start")

	cal, err := logic.Calibrate(photo, clock, p, ready, fault)
	if err != nil {
		return cal, err
	}
	log.WithField("baseline", cal.BaselineAverage).Infof("autolearn finished, will trigger at or below %d", cal.TriggerThreshold)
	return cal, nil
}

type heartbeatStep interface {
	Advance() error
}

type detectorStep interface {
	Poll(ctx context.Context) error
}

type batteryStep interface {
	Accumulate() (*status.WindowResult, error)
}

// runLoop advances the heartbeat, the detector and the battery classifier in
// that order, once per iteration, until ctx is done. bat may be nil.
func runLoop(ctx context.Context, hb heartbeatStep, det detectorStep, bat batteryStep, clock logic.Clock, interval time.Duration, log logrus.FieldLogger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		if err := hb.Advance(); err != nil {
			log.WithError(err).Warn("heartbeat")
		}

		// A crossing interrupted by shutdown is not a detector fault.
		if err := det.Poll(ctx); err != nil && ctx.Err() == nil {
			log.WithError(err).Warn("barrier detector")
		}

		if bat != nil {
			res, err := bat.Accumulate()
			if err != nil {
				log.WithError(err).Warn("battery check")
			} else if res != nil {
				logBattery(log, res)
			}
		}

		if interval > 0 {
			clock.Sleep(interval)
		}
	}
}

// logMirrorState reports whether buffered diagnostic lines reached the broker.
func logMirrorState(log logrus.FieldLogger, mirror mqtt.ConnectionStatus) {
	if mirror.IsConnected() {
		log.Debug("diagnostic mirror connected at shutdown")
		return
	}
	log.Warn("diagnostic mirror not connected at shutdown, buffered lines are lost")
}

func logEvent(log logrus.FieldLogger) logic.EventHandler {
	return func(e logic.Event) {
		entry := log.WithFields(logrus.Fields{"reading": e.Reading, "threshold": e.Threshold})
		switch e.Type {
		case logic.EventBeamStuck:
			entry.Warn("photosensor stuck at trigger, check beam alignment")
		case logic.EventFaultCleared:
			entry.Info("beam restored, fault cleared")
		default:
			entry.Debugf("barrier %s", e.Type)
		}
	}
}

func logBattery(log logrus.FieldLogger, res *status.WindowResult) {
	p := res.Level.Pattern()
	entry := log.WithFields(logrus.Fields{
		"average":   res.Average,
		"level":     res.Level,
		"heartbeat": fmt.Sprintf("%gHz/%d%%", p.FrequencyHz, p.DutyCycle),
	})
	if !res.Changed {
		entry.Debug("battery window")
		return
	}
	if res.Level == status.LevelNormal {
		entry.Info("battery level changed")
		return
	}
	entry.Warn("battery level changed")
}
