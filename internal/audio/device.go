package audio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
)

// OutputDevice is a fixed-format PCM sink. Implementations must tolerate
// Close being called while a Write is blocked.
type OutputDevice interface {
	// Start acquires the underlying device and begins pulling samples.
	Start() error
	// Write queues PCM bytes for playback, blocking while the device
	// buffer is full.
	Write(p []byte) error
	// Active reports whether the device is started and not yet closed.
	Active() bool
	// Close releases the device. Idempotent.
	Close() error
}

// MalgoDevice plays 16-bit little-endian mono PCM through the system's
// default output device. Decoded audio is staged in a ring buffer that the
// device callback drains; Write blocks when the buffer is full, which
// paces the producer to real time.
type MalgoDevice struct {
	sampleRate int
	buf        *RingBuffer

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	started bool
	closed  bool
}

// NewMalgoDevice creates an output device for the given sample rate with a
// staging buffer of bufferSize bytes.
func NewMalgoDevice(sampleRate, bufferSize int) *MalgoDevice {
	return &MalgoDevice{
		sampleRate: sampleRate,
		buf:        NewRingBuffer(bufferSize),
	}
}

func (d *MalgoDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return fmt.Errorf("output device already closed")
	}
	if d.started {
		return nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	deviceConfig.SampleRate = uint32(d.sampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			n := d.buf.Read(pOutput)
			// Pad with silence when the decoder falls behind.
			for i := n; i < len(pOutput); i++ {
				pOutput[i] = 0
			}
		},
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to start playback device: %w", err)
	}

	d.ctx = ctx
	d.device = device
	d.started = true
	return nil
}

func (d *MalgoDevice) Write(p []byte) error {
	d.mu.Lock()
	if d.closed || !d.started {
		d.mu.Unlock()
		return fmt.Errorf("output device not active")
	}
	d.mu.Unlock()

	if _, err := d.buf.Write(p); err != nil {
		return fmt.Errorf("device buffer write failed: %w", err)
	}
	return nil
}

func (d *MalgoDevice) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed || !d.started || d.device == nil {
		return false
	}
	return d.device.IsStarted() || d.buf.Available() > 0
}

func (d *MalgoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	// Unblock any writer stuck on a full buffer before tearing down.
	d.buf.Close()

	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		_ = d.ctx.Uninit()
		d.ctx.Free()
		d.ctx = nil
	}
	return nil
}
