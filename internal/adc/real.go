//go:build linux

package adc

import (
	"fmt"

	"github.com/pkg/errors"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// Config selects the converter and its channels.
type Config struct {
	Bus            string // I2C bus name, empty for the first available
	Address        uint16
	PhotoInput     int // single-ended input 0..3
	BatteryInput   int
	FullScaleMilli int // full-scale voltage in millivolts
	Bits           int // output resolution
}

var singleEnded = [4]ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1, ads1x15.Channel2, ads1x15.Channel3}

// RealSampler reads an ADS1115 on an I2C bus.
type RealSampler struct {
	bus  i2c.BusCloser
	pins map[Channel]ads1x15.PinADC
	bits int
}

// NewRealSampler opens the bus and prepares one pin per channel.
func NewRealSampler(cfg Config) (*RealSampler, error) {
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "init periph host")
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, errors.Wrapf(err, "open i2c bus %q", cfg.Bus)
	}

	dev, err := ads1x15.NewADS1115(bus, &ads1x15.Opts{I2cAddress: cfg.Address})
	if err != nil {
		bus.Close()
		return nil, errors.Wrapf(err, "open ads1115 at %#x", cfg.Address)
	}

	s := &RealSampler{bus: bus, pins: make(map[Channel]ads1x15.PinADC), bits: cfg.Bits}
	inputs := map[Channel]int{Photo: cfg.PhotoInput, Battery: cfg.BatteryInput}
	for ch, in := range inputs {
		if in < 0 || in >= len(singleEnded) {
			s.Close()
			return nil, fmt.Errorf("%s input %d out of range 0..3", ch, in)
		}
		pin, err := dev.PinForChannel(singleEnded[in], physic.ElectricPotential(cfg.FullScaleMilli)*physic.MilliVolt, 860*physic.Hertz, ads1x15.SaveEnergy)
		if err != nil {
			s.Close()
			return nil, errors.Wrapf(err, "configure %s input %d", ch, in)
		}
		s.pins[ch] = pin
	}

	return s, nil
}

// Read takes one conversion of ch, scaled to the configured resolution.
func (s *RealSampler) Read(ch Channel) (int, error) {
	pin, ok := s.pins[ch]
	if !ok {
		return 0, fmt.Errorf("%s channel not configured", ch)
	}
	sample, err := pin.Read()
	if err != nil {
		return 0, errors.Wrapf(err, "read %s channel", ch)
	}
	return scale(sample.Raw, s.bits), nil
}

// Close halts the pins and releases the bus.
func (s *RealSampler) Close() error {
	var errs []error
	for ch, pin := range s.pins {
		if err := pin.Halt(); err != nil {
			errs = append(errs, errors.Wrapf(err, "halt %s pin", ch))
		}
	}
	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close bus"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
