// Package adc samples the controller's analog inputs with hardware abstraction.
// The real implementation reads an ADS1x15 converter over I2C.
// The fake implementation allows testing without hardware.
package adc

// Channel identifies an analog input.
type Channel int

const (
	Photo Channel = iota
	Battery
)

func (c Channel) String() string {
	switch c {
	case Photo:
		return "photo"
	case Battery:
		return "battery"
	}
	return "unknown"
}

// Sampler produces instantaneous integer readings.
type Sampler interface {
	// Read returns one sample of ch in the range 0..MaxValue(bits).
	Read(ch Channel) (int, error)

	// Close releases ADC resources.
	Close() error
}

// DefaultBits is the resolution readings are scaled to (0..1023).
const DefaultBits = 10

// MaxValue returns the largest reading at the given resolution.
func MaxValue(bits int) int {
	return 1<<bits - 1
}

// ChannelReader binds a single channel of a Sampler.
type ChannelReader struct {
	s  Sampler
	ch Channel
}

// NewChannelReader returns a reader for ch.
func NewChannelReader(s Sampler, ch Channel) ChannelReader {
	return ChannelReader{s: s, ch: ch}
}

// Read samples the bound channel.
func (r ChannelReader) Read() (int, error) {
	return r.s.Read(r.ch)
}

// scale converts a signed 16-bit converter result to bits of resolution.
// Negative results (below ground in single-ended mode) read as zero.
func scale(raw int32, bits int) int {
	if raw <= 0 {
		return 0
	}
	v := int(raw) >> (15 - bits)
	if max := MaxValue(bits); v > max {
		return max
	}
	return v
}
