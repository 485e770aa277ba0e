package session

import (
	"sync"
	"time"
)

// Latch is a one-shot signal. It can be set at most once and observed any
// number of times, from any goroutine.
type Latch struct {
	once sync.Once
	ch   chan struct{}
}

// NewLatch creates an unset latch.
func NewLatch() *Latch {
	return &Latch{ch: make(chan struct{})}
}

// Set trips the latch. Subsequent calls are no-ops.
func (l *Latch) Set() {
	l.once.Do(func() {
		close(l.ch)
	})
}

// IsSet reports whether the latch has been tripped.
func (l *Latch) IsSet() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the latch is tripped.
func (l *Latch) Done() <-chan struct{} {
	return l.ch
}

// Wait blocks until the latch is tripped or timeout elapses, reporting
// whether it was tripped.
func (l *Latch) Wait(timeout time.Duration) bool {
	select {
	case <-l.ch:
		return true
	case <-time.After(timeout):
		return false
	}
}
