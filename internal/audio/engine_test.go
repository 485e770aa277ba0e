package audio

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakePipeline passes written bytes straight through to the read side,
// imitating a decoder process with a 1:1 transfer function.
type fakePipeline struct {
	mu          sync.Mutex
	cond        *sync.Cond
	pending     bytes.Buffer
	inputClosed bool
	exited      bool
	killed      bool
}

func newFakePipeline() *fakePipeline {
	p := &fakePipeline{}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *fakePipeline) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inputClosed || p.exited {
		return io.ErrClosedPipe
	}
	p.pending.Write(data)
	p.cond.Broadcast()
	return nil
}

func (p *fakePipeline) Read(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.pending.Len() == 0 && !p.inputClosed && !p.exited {
		p.cond.Wait()
	}
	if p.pending.Len() == 0 {
		return 0, io.EOF
	}
	return p.pending.Read(data)
}

func (p *fakePipeline) CloseInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputClosed = true
	p.cond.Broadcast()
	return nil
}

func (p *fakePipeline) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inputClosed = true
	p.exited = true
	p.cond.Broadcast()
	return nil
}

func (p *fakePipeline) Kill() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exited = true
	p.killed = true
	p.pending.Reset()
	p.cond.Broadcast()
	return nil
}

func (p *fakePipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exited
}

type fakeDevice struct {
	mu       sync.Mutex
	written  bytes.Buffer
	started  bool
	closed   bool
	startErr error
}

func (d *fakeDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.startErr != nil {
		return d.startErr
	}
	d.started = true
	return nil
}

func (d *fakeDevice) Write(p []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return io.ErrClosedPipe
	}
	d.written.Write(p)
	return nil
}

func (d *fakeDevice) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.started && !d.closed
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *fakeDevice) bytesWritten() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.written.Len()
}

func newTestEngine(t *testing.T) (*PlaybackEngine, *fakePipeline, *fakeDevice) {
	t.Helper()

	pipeline := newFakePipeline()
	device := &fakeDevice{}

	e := NewEngine(EngineConfig{
		StopJoin:     500 * time.Millisecond,
		PipelineExit: 500 * time.Millisecond,
	}, zerolog.Nop(), nil)
	e.newPipeline = func() (DecodePipeline, error) { return pipeline, nil }
	e.newDevice = func() (OutputDevice, error) { return device, nil }
	return e, pipeline, device
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestEngine_StartIdempotent(t *testing.T) {
	e, _, _ := newTestEngine(t)
	defer e.ForceStop()

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Errorf("Second Start should be a no-op, got error: %v", err)
	}

	status := e.BufferStatus()
	if status.State != "started" {
		t.Errorf("Expected state started, got %s", status.State)
	}
}

func TestEngine_WriteDrainsToDevice(t *testing.T) {
	e, _, device := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	frame := make([]byte, 1024)
	for i := range frame {
		frame[i] = byte(i)
	}
	e.Write(frame)

	if !waitFor(t, time.Second, func() bool { return device.bytesWritten() == len(frame) }) {
		t.Fatalf("Expected %d bytes at device, got %d", len(frame), device.bytesWritten())
	}
	if !e.IsPlaying() {
		t.Error("Expected IsPlaying true while drain loop is alive")
	}

	status := e.BufferStatus()
	if status.State != "playing" {
		t.Errorf("Expected state playing, got %s", status.State)
	}
	if !status.DrainLoopAlive {
		t.Error("Expected drain loop to be alive")
	}
	if status.BufferedBytes != 0 {
		t.Errorf("Expected 0 buffered bytes after drain, got %d", status.BufferedBytes)
	}

	e.Stop()
}

func TestEngine_StopFlushesAndIsIdempotent(t *testing.T) {
	e, pipeline, device := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.Write([]byte{1, 2, 3, 4})

	e.Stop()
	e.Stop()

	if pipeline.Running() {
		t.Error("Expected pipeline to be shut down after Stop")
	}
	if device.Active() {
		t.Error("Expected device to be closed after Stop")
	}

	status := e.BufferStatus()
	if !status.Stopped {
		t.Error("Expected Stopped true after Stop")
	}
	if status.BufferedBytes != 0 {
		t.Errorf("Expected 0 buffered bytes after Stop, got %d", status.BufferedBytes)
	}
	if e.IsPlaying() {
		t.Error("Expected IsPlaying false after Stop")
	}
}

func TestEngine_ForceStopKillsPipeline(t *testing.T) {
	e, pipeline, device := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.Write([]byte{1, 2, 3, 4})

	e.ForceStop()

	pipeline.mu.Lock()
	killed := pipeline.killed
	pipeline.mu.Unlock()
	if !killed {
		t.Error("Expected ForceStop to kill the pipeline")
	}
	if device.Active() {
		t.Error("Expected device to be closed after ForceStop")
	}
	if e.IsPlaying() {
		t.Error("Expected IsPlaying false after ForceStop")
	}
}

func TestEngine_ForceStopBeforeStart(t *testing.T) {
	e, _, _ := newTestEngine(t)

	// Must not panic on an engine that never acquired resources.
	e.ForceStop()
	e.ForceStop()

	if State(e.state.Load()) != StateStopped {
		t.Errorf("Expected stopped state, got %s", State(e.state.Load()))
	}
}

func TestEngine_WriteAfterStopIgnored(t *testing.T) {
	e, _, device := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.Stop()

	e.Write([]byte{1, 2, 3, 4})

	time.Sleep(20 * time.Millisecond)
	if device.bytesWritten() != 0 {
		t.Errorf("Expected no device output after Stop, got %d bytes", device.bytesWritten())
	}
	if e.BufferStatus().BufferedBytes != 0 {
		t.Errorf("Expected 0 buffered bytes, got %d", e.BufferStatus().BufferedBytes)
	}
}

func TestEngine_StartAfterStopIsNoOp(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	e.Stop()

	if err := e.Start(); err != nil {
		t.Errorf("Start on a stopped engine should be a no-op, got error: %v", err)
	}
	if State(e.state.Load()) != StateStopped {
		t.Errorf("Expected engine to stay stopped, got %s", State(e.state.Load()))
	}
}

func TestEngine_BufferedBytesNeverNegative(t *testing.T) {
	e, pipeline, _ := newTestEngine(t)

	if err := e.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Feed PCM to the read side directly so the drain loop removes more
	// bytes than Write ever accounted for.
	pipeline.mu.Lock()
	pipeline.pending.Write(make([]byte, 2048))
	pipeline.cond.Broadcast()
	pipeline.mu.Unlock()

	e.Write([]byte{1, 2})

	if !waitFor(t, time.Second, func() bool { return e.BufferStatus().BufferedBytes == 0 }) {
		t.Errorf("Expected buffered bytes clamped to 0, got %d", e.BufferStatus().BufferedBytes)
	}

	e.Stop()
}

func TestEngine_IsPlayingBeforeStart(t *testing.T) {
	e, _, _ := newTestEngine(t)

	if e.IsPlaying() {
		t.Error("Expected IsPlaying false before Start")
	}

	status := e.BufferStatus()
	if status.State != "not_started" {
		t.Errorf("Expected state not_started, got %s", status.State)
	}
}
