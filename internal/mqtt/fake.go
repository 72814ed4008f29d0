package mqtt

// FakePublisher records published lines for test assertions.
type FakePublisher struct {
	// Lines contains every published line.
	Lines [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the line.
func (f *FakePublisher) Publish(line []byte) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Lines = append(f.Lines, line)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded lines.
func (f *FakePublisher) Reset() {
	f.Lines = nil
	f.PublishError = nil
	f.Closed = false
	f.Connected = false
}
