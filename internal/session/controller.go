package session

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ARIS2333/LLM-TTS/internal/audio"
	"github.com/ARIS2333/LLM-TTS/internal/synth"
	"github.com/ARIS2333/LLM-TTS/internal/text"
)

// ErrNoActiveSession is returned by CancelCurrent when nothing is playing.
var ErrNoActiveSession = errors.New("no active session")

// EngineFactory constructs a fresh playback engine for one session.
type EngineFactory func() (audio.Engine, error)

// Config carries the controller's wait bounds.
type Config struct {
	// SynthesisWait bounds the wait for the encoder's terminal event
	// after the last fragment is submitted.
	SynthesisWait time.Duration
	// DrainWait bounds the wait for buffered audio to finish playing.
	DrainWait time.Duration
	// DrainPoll is the interval between playback checks while draining.
	DrainPoll time.Duration
	// StopWait bounds the wait for a replaced session's worker to exit.
	StopWait time.Duration
}

func (c *Config) setDefaults() {
	if c.SynthesisWait == 0 {
		c.SynthesisWait = 8 * time.Second
	}
	if c.DrainWait == 0 {
		c.DrainWait = 5 * time.Second
	}
	if c.DrainPoll == 0 {
		c.DrainPoll = 100 * time.Millisecond
	}
	if c.StopWait == 0 {
		c.StopWait = time.Second
	}
}

// Status is a point-in-time snapshot of the controller's live session.
type Status struct {
	Active            bool                `json:"active"`
	SessionID         uint64              `json:"session_id,omitempty"`
	CancelRequested   bool                `json:"cancel_requested"`
	HasEngine         bool                `json:"has_engine"`
	HasEncoder        bool                `json:"has_encoder"`
	SynthesisComplete bool                `json:"synthesis_complete"`
	TextExhausted     bool                `json:"text_exhausted"`
	EngineBuffer      *audio.BufferStatus `json:"engine_buffer,omitempty"`
}

// Controller owns the single live playback session. Beginning a new
// session cancels and fully stops the previous one before the new one is
// announced.
type Controller struct {
	engines  EngineFactory
	encoders synth.Factory
	cfg      Config
	log      zerolog.Logger

	mu      sync.Mutex
	current *Session
	lastID  uint64
}

// NewController creates a session controller.
func NewController(engines EngineFactory, encoders synth.Factory, cfg Config, log zerolog.Logger) *Controller {
	cfg.setDefaults()
	return &Controller{
		engines:  engines,
		encoders: encoders,
		cfg:      cfg,
		log:      log,
	}
}

// Begin starts a session over a fixed list of text fragments and returns
// its id.
func (c *Controller) Begin(fragments []string) (uint64, error) {
	return c.BeginSource(text.NewSliceSource(fragments))
}

// BeginSource starts a session over an arbitrary fragment source,
// replacing any live session. The previous session is stopped before the
// new id is assigned, so ids order sessions by actual succession.
func (c *Controller) BeginSource(source text.Source) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev := c.current; prev != nil {
		c.log.Info().Uint64("session_id", prev.id).Msg("interrupting live session")
		prev.Stop()
		select {
		case <-prev.workerDone:
		case <-time.After(c.cfg.StopWait):
			c.log.Warn().Uint64("session_id", prev.id).Msg("previous worker did not exit in time")
		}
		c.current = nil
	}

	c.lastID++
	s := newSession(c.lastID, source)
	c.current = s
	go c.runSession(s)

	s.log.Info().Msg("session started")
	return s.id, nil
}

// CancelCurrent requests cancellation of the live session. The worker
// observes the request and tears down on its own; this call does not
// block on it.
func (c *Controller) CancelCurrent() (uint64, error) {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil || !s.active() {
		return 0, ErrNoActiveSession
	}

	c.log.Info().Uint64("session_id", s.id).Msg("cancel requested")
	s.Stop()
	return s.id, nil
}

// Status reports the state of the live session, or an inactive snapshot
// when there is none.
func (c *Controller) Status() Status {
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()

	if s == nil {
		return Status{}
	}

	st := Status{
		Active:            s.active(),
		SessionID:         s.id,
		CancelRequested:   s.cancel.IsSet(),
		SynthesisComplete: s.synthesisDone.IsSet(),
		TextExhausted:     s.textExhausted.IsSet(),
	}

	s.mu.Lock()
	engine := s.engine
	st.HasEngine = engine != nil
	st.HasEncoder = s.encoder != nil
	s.mu.Unlock()

	if engine != nil {
		buf := engine.BufferStatus()
		st.EngineBuffer = &buf
	}
	return st
}

// runSession is the orchestration worker: it owns the session lifecycle
// from resource acquisition to teardown and exits on completion, failure,
// or cancellation. workerDone closes before the controller slot is
// released so a replacing Begin, which holds the controller lock while it
// waits, never contends with release.
func (c *Controller) runSession(s *Session) {
	defer c.release(s)
	defer close(s.workerDone)
	c.sessionWorker(s)
}

func (c *Controller) sessionWorker(s *Session) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Msg("session worker panic")
			s.meter.RecordError("panic", "session")
			s.stop(true)
		}
	}()

	s.meter.RecordSessionStart()
	defer func() {
		s.meter.RecordSessionEnd(s.cancel.IsSet())
	}()

	if stopper, ok := s.source.(interface{ Stop() }); ok {
		defer stopper.Stop()
	}

	if s.cancel.IsSet() {
		s.stop(true)
		return
	}

	engine, err := c.engines()
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create playback engine")
		s.meter.RecordError("engine_create", "audio")
		s.stop(true)
		return
	}
	if err := engine.Start(); err != nil {
		s.log.Error().Err(err).Msg("failed to start playback engine")
		s.meter.RecordError("engine_start", "audio")
		engine.ForceStop()
		s.stop(true)
		return
	}
	if !s.adoptEngine(engine) {
		return
	}

	encoder, err := c.encoders(&sessionCallback{session: s})
	if err != nil {
		s.log.Error().Err(err).Msg("failed to create encoder")
		s.meter.RecordError("encoder_create", "synth")
		s.stop(true)
		return
	}
	if !s.adoptEncoder(encoder) {
		return
	}

	s.meter.RecordSynthesisStart()
	c.submitFragments(s, encoder)
	s.textExhausted.Set()

	if !s.cancel.IsSet() {
		if err := encoder.Finish(); err != nil {
			s.log.Warn().Err(err).Msg("failed to finish synthesis input")
		} else if !c.waitLatch(s, s.synthesisDone, c.cfg.SynthesisWait) {
			s.log.Warn().Msg("timeout waiting for synthesis to complete")
		}
	}
	s.meter.RecordSynthesisEnd(!s.cancel.IsSet())

	c.waitForDrain(s, engine)

	s.stop(s.cancel.IsSet())
}

// submitFragments feeds the session's text fragments to the encoder in
// order, checking for cancellation before each one.
func (c *Controller) submitFragments(s *Session, encoder synth.Encoder) {
	fragments := s.source.Fragments()
	count := 0
	for {
		select {
		case <-s.cancel.Done():
			s.log.Debug().Int("submitted", count).Msg("fragment submission canceled")
			return
		case fragment, ok := <-fragments:
			if !ok {
				s.log.Debug().Int("submitted", count).Msg("text source exhausted")
				return
			}
			if err := encoder.Submit(fragment); err != nil {
				if !s.cancel.IsSet() {
					s.log.Warn().Err(err).Msg("fragment submission failed")
					s.meter.RecordError("submit", "synth")
				}
				return
			}
			count++
		}
	}
}

// waitLatch blocks until the latch trips, the session is canceled, or the
// timeout elapses. Returns true only if the latch tripped.
func (c *Controller) waitLatch(s *Session, l *Latch, timeout time.Duration) bool {
	select {
	case <-l.Done():
		return true
	case <-s.cancel.Done():
		return false
	case <-time.After(timeout):
		return false
	}
}

// waitForDrain polls the engine until buffered audio finishes playing,
// the session is canceled, or the bounded wait elapses.
func (c *Controller) waitForDrain(s *Session, engine audio.Engine) {
	deadline := time.Now().Add(c.cfg.DrainWait)
	for time.Now().Before(deadline) {
		if s.cancel.IsSet() {
			return
		}
		if !engine.IsPlaying() {
			return
		}
		select {
		case <-s.cancel.Done():
			return
		case <-time.After(c.cfg.DrainPoll):
		}
	}
	s.log.Warn().Msg("timeout waiting for playback to drain")
}

// release clears the controller's slot if s is still the live session.
func (c *Controller) release(s *Session) {
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()
}
