package mqtt

// ringBuffer is a fixed-capacity FIFO of lines held while disconnected.
// Not safe for concurrent use; the caller must synchronize.
type ringBuffer struct {
	lines   [][]byte
	head    int // next write position
	count   int
	dropped int // lines overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{lines: make([][]byte, capacity)}
}

// push appends line, overwriting the oldest when full.
func (r *ringBuffer) push(line []byte) {
	capacity := len(r.lines)
	r.lines[r.head] = line
	r.head = (r.head + 1) % capacity
	if r.count == capacity {
		r.dropped++
		return
	}
	r.count++
}

// drain returns buffered lines oldest first, the number dropped, and empties the buffer.
func (r *ringBuffer) drain() ([][]byte, int) {
	if r.count == 0 {
		return nil, 0
	}

	capacity := len(r.lines)
	out := make([][]byte, r.count)
	start := (r.head - r.count + capacity) % capacity
	for i := range out {
		out[i] = r.lines[(start+i)%capacity]
	}

	dropped := r.dropped
	r.count = 0
	r.head = 0
	r.dropped = 0
	return out, dropped
}

func (r *ringBuffer) len() int {
	return r.count
}
