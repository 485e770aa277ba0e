package synth

import "sync"

// MockEncoder is an in-memory Encoder for tests. Each submitted fragment
// is echoed back to the callback as one scripted audio frame; Finish
// reports completion (or the scripted failure). All callbacks fire
// synchronously on the caller's goroutine.
type MockEncoder struct {
	mu        sync.Mutex
	cb        ResultCallback
	submitted []string
	closed    bool
	finished  bool

	// FrameSize controls the size of the fake frame emitted per fragment.
	FrameSize int
	// SubmitErr, when set, is returned by every Submit.
	SubmitErr error
	// FailWith, when non-empty, makes Finish report OnError instead of
	// OnComplete.
	FailWith string
}

// NewMockEncoder creates a mock encoder bound to cb and fires OnOpen.
func NewMockEncoder(cb ResultCallback) *MockEncoder {
	m := &MockEncoder{cb: cb, FrameSize: 256}
	cb.OnOpen()
	return m
}

func (m *MockEncoder) Submit(fragment string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrEncoderClosed
	}
	if m.SubmitErr != nil {
		err := m.SubmitErr
		m.mu.Unlock()
		return err
	}
	m.submitted = append(m.submitted, fragment)
	cb := m.cb
	size := m.FrameSize
	m.mu.Unlock()

	cb.OnData(make([]byte, size))
	return nil
}

func (m *MockEncoder) Finish() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrEncoderClosed
	}
	m.finished = true
	cb := m.cb
	failWith := m.FailWith
	m.mu.Unlock()

	if failWith != "" {
		cb.OnError(failWith)
	} else {
		cb.OnComplete()
	}
	return nil
}

func (m *MockEncoder) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	cb := m.cb
	m.mu.Unlock()

	cb.OnClose()
	return nil
}

// Submitted returns the fragments submitted so far.
func (m *MockEncoder) Submitted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.submitted))
	copy(out, m.submitted)
	return out
}

// Finished reports whether Finish was called.
func (m *MockEncoder) Finished() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finished
}

// Closed reports whether Close was called.
func (m *MockEncoder) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
