package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ARIS2333/LLM-TTS/internal/observability"
)

// State describes the engine lifecycle.
type State int32

const (
	StateNotStarted State = iota
	StateStarted
	StatePlaying
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateStarted:
		return "started"
	case StatePlaying:
		return "playing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// BufferStatus is a point-in-time snapshot of engine internals, safe to
// serialize into status responses.
type BufferStatus struct {
	State          string `json:"state"`
	IsPlaying      bool   `json:"is_playing"`
	BufferedBytes  int64  `json:"buffered_bytes"`
	PipelineAlive  bool   `json:"pipeline_alive"`
	DrainLoopAlive bool   `json:"drain_loop_alive"`
	DeviceActive   bool   `json:"device_active"`
	Stopped        bool   `json:"stopped"`
}

// Engine accepts compressed audio frames and plays them back through an
// external decoder and an output device.
type Engine interface {
	// Start acquires the output device and spawns the decoder.
	// Idempotent; a no-op on an engine that already ran.
	Start() error
	// Write feeds one compressed frame to the decoder. Silently ignored
	// once the engine is stopped.
	Write(frame []byte)
	// Stop shuts the engine down gracefully, letting buffered audio flush.
	Stop()
	// ForceStop kills the decoder immediately, discarding buffered audio.
	ForceStop()
	// IsPlaying reports whether any part of the playback chain is still
	// producing or holding audio.
	IsPlaying() bool
	// BufferStatus returns a snapshot of engine internals.
	BufferStatus() BufferStatus
}

// EngineConfig carries the knobs for a PlaybackEngine.
type EngineConfig struct {
	DecoderPath      string
	SampleRate       int
	ChunkSize        int
	DeviceBufferSize int
	StopJoin         time.Duration
	PipelineExit     time.Duration
}

func (c *EngineConfig) setDefaults() {
	if c.DecoderPath == "" {
		c.DecoderPath = "ffmpeg"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 22050
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = 512
	}
	if c.DeviceBufferSize == 0 {
		c.DeviceBufferSize = 16384
	}
	if c.StopJoin == 0 {
		c.StopJoin = time.Second
	}
	if c.PipelineExit == 0 {
		c.PipelineExit = time.Second
	}
}

// PlaybackEngine wires a decode pipeline to an output device. Compressed
// frames go into the pipeline; a lazily-started drain loop moves decoded PCM
// from the pipeline to the device in small chunks so interruption latency
// stays low.
type PlaybackEngine struct {
	cfg     EngineConfig
	log     zerolog.Logger
	metrics *observability.Metrics

	newPipeline func() (DecodePipeline, error)
	newDevice   func() (OutputDevice, error)

	// mu serializes Start, Stop and ForceStop. Write and the status
	// queries deliberately do not take it so they cannot stall behind a
	// slow teardown.
	mu sync.Mutex

	resMu     sync.Mutex
	pipeline  DecodePipeline
	device    OutputDevice
	drainDone chan struct{}

	bufMu    sync.Mutex
	buffered int64

	state      atomic.Int32
	cancelOnce sync.Once
	cancelCh   chan struct{}
}

// NewEngine creates a playback engine. metrics may be nil.
func NewEngine(cfg EngineConfig, log zerolog.Logger, metrics *observability.Metrics) *PlaybackEngine {
	cfg.setDefaults()
	e := &PlaybackEngine{
		cfg:      cfg,
		log:      log,
		metrics:  metrics,
		cancelCh: make(chan struct{}),
	}
	e.newPipeline = func() (DecodePipeline, error) {
		return NewProcessPipeline(cfg.DecoderPath, cfg.SampleRate)
	}
	e.newDevice = func() (OutputDevice, error) {
		return NewMalgoDevice(cfg.SampleRate, cfg.DeviceBufferSize), nil
	}
	return e
}

func (e *PlaybackEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Load()) != StateNotStarted {
		return nil
	}

	device, err := e.newDevice()
	if err != nil {
		return fmt.Errorf("failed to create output device: %w", err)
	}
	if err := device.Start(); err != nil {
		_ = device.Close()
		return fmt.Errorf("failed to start output device: %w", err)
	}

	pipeline, err := e.newPipeline()
	if err != nil {
		_ = device.Close()
		return fmt.Errorf("failed to start decode pipeline: %w", err)
	}

	e.resMu.Lock()
	e.pipeline = pipeline
	e.device = device
	e.resMu.Unlock()

	e.state.Store(int32(StateStarted))
	e.log.Debug().Msg("playback engine started")
	return nil
}

func (e *PlaybackEngine) Write(frame []byte) {
	if len(frame) == 0 || e.canceled() || State(e.state.Load()) == StateStopped {
		return
	}

	e.resMu.Lock()
	pipeline := e.pipeline
	device := e.device
	if pipeline == nil {
		e.resMu.Unlock()
		return
	}
	if e.drainDone == nil {
		e.drainDone = make(chan struct{})
		e.state.CompareAndSwap(int32(StateStarted), int32(StatePlaying))
		go e.drainLoop(pipeline, device, e.drainDone)
	}
	e.resMu.Unlock()

	if err := pipeline.Write(frame); err != nil {
		e.log.Debug().Err(err).Msg("dropping frame, decode pipeline rejected write")
		return
	}

	e.bufMu.Lock()
	e.buffered += int64(len(frame))
	e.bufMu.Unlock()
}

// drainLoop moves decoded PCM from the pipeline to the device until the
// stream ends, a cancel is signaled, or either side fails.
func (e *PlaybackEngine) drainLoop(pipeline DecodePipeline, device OutputDevice, done chan struct{}) {
	defer close(done)

	chunk := make([]byte, e.cfg.ChunkSize)
	for {
		if e.canceled() {
			return
		}

		n, err := pipeline.Read(chunk)
		if n > 0 {
			if e.canceled() {
				return
			}
			if werr := device.Write(chunk[:n]); werr != nil {
				e.log.Debug().Err(werr).Msg("drain loop exiting, device write failed")
				return
			}

			e.bufMu.Lock()
			e.buffered -= int64(n)
			if e.buffered < 0 {
				e.buffered = 0
			}
			e.bufMu.Unlock()

			if e.metrics != nil {
				e.metrics.RecordAudioBytes("pcm_out", int64(n))
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !e.canceled() {
				e.log.Debug().Err(err).Msg("drain loop exiting, pipeline read failed")
			}
			return
		}
		if n == 0 {
			return
		}
	}
}

func (e *PlaybackEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Swap(int32(StateStopped))) == StateStopped {
		return
	}
	e.signalCancel()

	pipeline, device, drainDone := e.takeResources()

	if drainDone != nil {
		select {
		case <-drainDone:
		case <-time.After(e.cfg.StopJoin):
			e.log.Warn().Msg("drain loop did not exit within stop timeout")
		}
	}

	if pipeline != nil {
		if err := pipeline.Shutdown(e.cfg.PipelineExit); err != nil {
			e.log.Debug().Err(err).Msg("decode pipeline shutdown error")
		}
	}
	if device != nil {
		_ = device.Close()
	}

	e.resetBuffered()
	e.log.Debug().Msg("playback engine stopped")
}

func (e *PlaybackEngine) ForceStop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if State(e.state.Swap(int32(StateStopped))) == StateStopped {
		return
	}
	e.signalCancel()

	pipeline, device, drainDone := e.takeResources()

	if pipeline != nil {
		_ = pipeline.Kill()
	}
	if device != nil {
		_ = device.Close()
	}

	if drainDone != nil {
		select {
		case <-drainDone:
		case <-time.After(e.cfg.StopJoin):
			e.log.Warn().Msg("drain loop did not exit within force-stop timeout")
		}
	}

	e.resetBuffered()
	e.log.Debug().Msg("playback engine force-stopped")
}

func (e *PlaybackEngine) IsPlaying() bool {
	if State(e.state.Load()) == StateStopped {
		return false
	}

	e.resMu.Lock()
	pipeline := e.pipeline
	device := e.device
	drainDone := e.drainDone
	e.resMu.Unlock()

	if drainDone != nil {
		select {
		case <-drainDone:
		default:
			return true
		}
	}
	if pipeline != nil && pipeline.Running() && e.bufferedBytes() > 0 {
		return true
	}
	if device != nil && device.Active() && e.bufferedBytes() > 0 {
		return true
	}
	return false
}

func (e *PlaybackEngine) BufferStatus() BufferStatus {
	state := State(e.state.Load())

	e.resMu.Lock()
	pipeline := e.pipeline
	device := e.device
	drainDone := e.drainDone
	e.resMu.Unlock()

	drainAlive := false
	if drainDone != nil {
		select {
		case <-drainDone:
		default:
			drainAlive = true
		}
	}

	return BufferStatus{
		State:          state.String(),
		IsPlaying:      e.IsPlaying(),
		BufferedBytes:  e.bufferedBytes(),
		PipelineAlive:  pipeline != nil && pipeline.Running(),
		DrainLoopAlive: drainAlive,
		DeviceActive:   device != nil && device.Active(),
		Stopped:        state == StateStopped,
	}
}

func (e *PlaybackEngine) takeResources() (DecodePipeline, OutputDevice, chan struct{}) {
	e.resMu.Lock()
	defer e.resMu.Unlock()

	pipeline, device, drainDone := e.pipeline, e.device, e.drainDone
	e.pipeline = nil
	e.device = nil
	return pipeline, device, drainDone
}

func (e *PlaybackEngine) signalCancel() {
	e.cancelOnce.Do(func() {
		close(e.cancelCh)
	})
}

func (e *PlaybackEngine) canceled() bool {
	select {
	case <-e.cancelCh:
		return true
	default:
		return false
	}
}

func (e *PlaybackEngine) bufferedBytes() int64 {
	e.bufMu.Lock()
	defer e.bufMu.Unlock()
	return e.buffered
}

func (e *PlaybackEngine) resetBuffered() {
	e.bufMu.Lock()
	e.buffered = 0
	e.bufMu.Unlock()
}
