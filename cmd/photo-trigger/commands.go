package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/sweeney/photo-trigger/internal/adc"
	"github.com/sweeney/photo-trigger/internal/config"
	"github.com/sweeney/photo-trigger/internal/gpio"
	"github.com/sweeney/photo-trigger/internal/logic"
	"github.com/sweeney/photo-trigger/internal/status"
)

func newCalibrateCommand(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "calibrate",
		Short: "Run the autolearn procedure once and print the threshold",
		Long: `Run the autolearn procedure once and print the resulting threshold.

Unlike the daemon, a failed calibration exits with an error instead of halting.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			sampler, outputs, err := openHardware(c)
			if err != nil {
				return err
			}
			defer sampler.Close()
			defer outputs.Close()

			return calibrateOnce(cmd, c, sampler, outputs, logic.SystemClock{})
		},
	}
}

func calibrateOnce(cmd *cobra.Command, c *config.Config, sampler adc.Sampler, outputs gpio.Writer, clock logic.Clock) error {
	res, err := logic.Calibrate(adc.NewChannelReader(sampler, adc.Photo), clock, c.CalibrationParams(),
		gpio.NewPin(outputs, gpio.Ready), gpio.NewPin(outputs, gpio.Fault))

	out := cmd.OutOrStdout()
	// A zero result means sampling itself failed.
	if res.Valid || errors.Is(err, logic.ErrCalibrationFailed) {
		fmt.Fprintf(out, "baseline:  %d (minimum %d)\n", res.BaselineAverage, c.Calibration.MinLimit)
	}
	if err != nil {
		fmt.Fprintln(out, color.RedString("calibration failed: %v", err))
		return err
	}
	fmt.Fprintf(out, "threshold: %d\n", res.TriggerThreshold)
	fmt.Fprintln(out, color.GreenString("calibration ok"))
	return nil
}

func newReadingsCommand(cfg func() *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "readings",
		Short: "Print the current photosensor and battery readings and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := cfg()
			sampler, err := adc.NewRealSampler(c.SamplerConfig())
			if err != nil {
				return fmt.Errorf("init adc: %w", err)
			}
			defer sampler.Close()

			return printReadings(cmd, c, sampler)
		},
	}
}

func printReadings(cmd *cobra.Command, c *config.Config, sampler adc.Sampler) error {
	photo, err := sampler.Read(adc.Photo)
	if err != nil {
		return err
	}
	battery, err := sampler.Read(adc.Battery)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	beam := color.GreenString("clear")
	if logic.Interrupted(photo, c.FixedThreshold) {
		beam = color.YellowString("interrupted")
	}
	fmt.Fprintf(out, "photo:   %d (%s at fixed threshold %d)\n", photo, beam, c.FixedThreshold)

	level := status.Classify(battery, c.Battery.LowThreshold, c.Battery.WarningThreshold)
	fmt.Fprintf(out, "battery: %d (%s)\n", battery, level)
	return nil
}
