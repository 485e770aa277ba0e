package text

import (
	"errors"
	"sync"
)

// ErrSourceStopped is returned by Push when the consumer has gone away.
var ErrSourceStopped = errors.New("text source stopped")

// Source yields ordered text fragments over a channel. The channel is
// closed when the source is exhausted.
type Source interface {
	Fragments() <-chan string
}

// SliceSource serves a fixed list of fragments.
type SliceSource struct {
	ch chan string
}

// NewSliceSource creates a source over the given fragments. Empty
// fragments are skipped.
func NewSliceSource(fragments []string) *SliceSource {
	ch := make(chan string, len(fragments))
	for _, f := range fragments {
		if f == "" {
			continue
		}
		ch <- f
	}
	close(ch)
	return &SliceSource{ch: ch}
}

func (s *SliceSource) Fragments() <-chan string {
	return s.ch
}

// StreamSource bridges a live producer (such as a streaming text
// generator) to a fragment consumer. The producer calls Push and Finish;
// the consumer calls Stop when it will read no more, which unblocks and
// fails any pending or future Push.
type StreamSource struct {
	ch   chan string
	done chan struct{}
	once sync.Once
}

// NewStreamSource creates a stream source with the given channel capacity.
func NewStreamSource(capacity int) *StreamSource {
	return &StreamSource{
		ch:   make(chan string, capacity),
		done: make(chan struct{}),
	}
}

func (s *StreamSource) Fragments() <-chan string {
	return s.ch
}

// Push queues a fragment for the consumer, blocking while the channel is
// full. Returns ErrSourceStopped once the consumer has stopped.
func (s *StreamSource) Push(fragment string) error {
	if fragment == "" {
		return nil
	}
	select {
	case <-s.done:
		return ErrSourceStopped
	default:
	}
	select {
	case s.ch <- fragment:
		return nil
	case <-s.done:
		return ErrSourceStopped
	}
}

// Finish marks the producer side complete. Must be called exactly once by
// the producer after its last Push.
func (s *StreamSource) Finish() {
	close(s.ch)
}

// Stop marks the consumer side gone. Idempotent; safe to call whether or
// not the producer has finished.
func (s *StreamSource) Stop() {
	s.once.Do(func() {
		close(s.done)
	})
}
