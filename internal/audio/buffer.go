package audio

import (
	"errors"
	"sync"
)

// ErrBufferClosed is returned by Write after the buffer has been closed.
var ErrBufferClosed = errors.New("ring buffer closed")

// RingBuffer is a thread-safe byte ring buffer used to feed the output
// device's pull callback. Writes block while the buffer is full; reads
// never block and return whatever is available.
type RingBuffer struct {
	mu      sync.Mutex
	notFull *sync.Cond
	buf     []byte
	size    int
	read    int
	write   int
	count   int
	closed  bool
}

// NewRingBuffer creates a new ring buffer with the specified capacity
func NewRingBuffer(size int) *RingBuffer {
	rb := &RingBuffer{
		buf:  make([]byte, size),
		size: size,
	}
	rb.notFull = sync.NewCond(&rb.mu)
	return rb
}

// Write copies data into the buffer, blocking while it is full.
// Returns the number of bytes written and ErrBufferClosed if the buffer
// is closed before all data could be written.
func (rb *RingBuffer) Write(data []byte) (int, error) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	written := 0
	for written < len(data) {
		if rb.closed {
			return written, ErrBufferClosed
		}
		if rb.count == rb.size {
			rb.notFull.Wait()
			continue
		}

		n := len(data) - written
		if free := rb.size - rb.count; n > free {
			n = free
		}
		for i := 0; i < n; i++ {
			rb.buf[rb.write] = data[written+i]
			rb.write = (rb.write + 1) % rb.size
		}
		rb.count += n
		written += n
	}

	return written, nil
}

// Read copies up to len(data) bytes out of the buffer without blocking.
// Returns the number of bytes read.
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(data)
	if n > rb.count {
		n = rb.count
	}
	for i := 0; i < n; i++ {
		data[i] = rb.buf[rb.read]
		rb.read = (rb.read + 1) % rb.size
	}
	rb.count -= n

	if n > 0 {
		rb.notFull.Broadcast()
	}
	return n
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Space returns the number of bytes available to write
func (rb *RingBuffer) Space() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.size - rb.count
}

// Clear discards all buffered data
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.write = 0
	rb.count = 0
	rb.notFull.Broadcast()
}

// IsEmpty returns true if the buffer is empty
func (rb *RingBuffer) IsEmpty() bool {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count == 0
}

// Close marks the buffer closed and wakes any blocked writers.
// Close is idempotent; data already buffered remains readable.
func (rb *RingBuffer) Close() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.closed = true
	rb.notFull.Broadcast()
}
