//go:build !linux

package adc

import "errors"

// Config selects the converter and its channels.
type Config struct {
	Bus            string
	Address        uint16
	PhotoInput     int
	BatteryInput   int
	FullScaleMilli int
	Bits           int
}

// RealSampler is not available on non-Linux platforms.
type RealSampler struct{}

// NewRealSampler returns an error on non-Linux platforms.
func NewRealSampler(cfg Config) (*RealSampler, error) {
	return nil, errors.New("adc: not supported on this platform (requires Linux)")
}

// Read is not implemented on non-Linux platforms.
func (s *RealSampler) Read(ch Channel) (int, error) {
	return 0, errors.New("adc: not supported")
}

// Close is not implemented on non-Linux platforms.
func (s *RealSampler) Close() error {
	return nil
}
