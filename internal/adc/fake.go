package adc

import "errors"

// FakeSampler is a test double that returns scripted readings per channel.
type FakeSampler struct {
	// Samples contains scripted values for each channel.
	// Each call to Read() consumes the next value of that channel.
	Samples map[Channel][]int

	// index tracks current position per channel
	index map[Channel]int

	// Reads counts Read calls per channel.
	Reads map[Channel]int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeSampler creates a FakeSampler with the given photo and battery samples.
func NewFakeSampler(photo, battery []int) *FakeSampler {
	return &FakeSampler{
		Samples: map[Channel][]int{Photo: photo, Battery: battery},
		index:   make(map[Channel]int),
		Reads:   make(map[Channel]int),
	}
}

// Read returns the next scripted value of ch.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeSampler) Read(ch Channel) (int, error) {
	f.Reads[ch]++

	if f.ReadError != nil {
		return 0, f.ReadError
	}

	samples := f.Samples[ch]
	if len(samples) == 0 {
		return 0, errors.New("no samples configured for " + ch.String())
	}

	i := f.index[ch]
	v := samples[i]
	if i < len(samples)-1 {
		f.index[ch] = i + 1
	}
	return v, nil
}

// Append queues further values for ch after the current script.
func (f *FakeSampler) Append(ch Channel, values ...int) {
	f.Samples[ch] = append(f.Samples[ch], values...)
}

// Reader returns a ChannelReader bound to ch on this sampler.
func (f *FakeSampler) Reader(ch Channel) ChannelReader {
	return NewChannelReader(f, ch)
}

// Close marks the sampler as closed.
func (f *FakeSampler) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds every channel to the beginning of its samples.
func (f *FakeSampler) Reset() {
	f.index = make(map[Channel]int)
	f.Reads = make(map[Channel]int)
	f.Closed = false
}

// Repeat returns n copies of v.
func Repeat(v, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}
