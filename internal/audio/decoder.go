package audio

import (
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// DecodePipeline is the abstract decode capability: it accepts a stream of
// compressed audio bytes and produces a stream of raw PCM bytes. It supports
// being closed-for-input (flush path) and killed (abort path). Any concrete
// decoder satisfying this contract is substitutable.
type DecodePipeline interface {
	// Write feeds compressed bytes to the decoder input.
	Write(p []byte) error
	// Read reads decoded PCM bytes from the decoder output.
	Read(p []byte) (int, error)
	// CloseInput closes the decoder input so it can flush remaining output.
	CloseInput() error
	// Shutdown closes the input and waits up to timeout for the process to
	// exit, escalating to terminate and then kill.
	Shutdown(timeout time.Duration) error
	// Kill terminates the process immediately without flushing.
	Kill() error
	// Running reports whether the decoder process is still alive.
	Running() bool
}

// processPipeline runs an external decoder process (ffmpeg by default) in
// full-duplex streaming mode: compressed audio on stdin, raw s16le mono PCM
// on stdout.
type processPipeline struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser

	mu          sync.Mutex
	stdinClosed bool

	waitDone chan struct{}
	waitErr  error
}

// NewProcessPipeline spawns the external decoder. binary is resolved via
// PATH; sampleRate selects the PCM output rate (mono, 16-bit little-endian).
func NewProcessPipeline(binary string, sampleRate int) (DecodePipeline, error) {
	cmd := exec.Command(binary,
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder stdin pipe: %w", err)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start decoder %q: %w", binary, err)
	}

	p := &processPipeline{
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		waitDone: make(chan struct{}),
	}

	go func() {
		p.waitErr = cmd.Wait()
		close(p.waitDone)
	}()

	return p, nil
}

func (p *processPipeline) Write(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdinClosed {
		return fmt.Errorf("decoder input already closed")
	}
	if _, err := p.stdin.Write(data); err != nil {
		return fmt.Errorf("decoder write failed: %w", err)
	}
	return nil
}

func (p *processPipeline) Read(data []byte) (int, error) {
	return p.stdout.Read(data)
}

func (p *processPipeline) CloseInput() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stdinClosed {
		return nil
	}
	p.stdinClosed = true
	return p.stdin.Close()
}

func (p *processPipeline) Shutdown(timeout time.Duration) error {
	_ = p.CloseInput()

	select {
	case <-p.waitDone:
		return nil
	case <-time.After(timeout):
	}

	// Process did not exit after input closed; escalate.
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Signal(syscall.SIGTERM)
	}

	select {
	case <-p.waitDone:
		return nil
	case <-time.After(timeout / 2):
	}

	return p.Kill()
}

func (p *processPipeline) Kill() error {
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}

	select {
	case <-p.waitDone:
	case <-time.After(500 * time.Millisecond):
	}
	return nil
}

func (p *processPipeline) Running() bool {
	select {
	case <-p.waitDone:
		return false
	default:
		return true
	}
}
