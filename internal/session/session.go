package session

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/ARIS2333/LLM-TTS/internal/audio"
	"github.com/ARIS2333/LLM-TTS/internal/observability"
	"github.com/ARIS2333/LLM-TTS/internal/synth"
	"github.com/ARIS2333/LLM-TTS/internal/text"
)

// Session is one utterance: a text source, an encoder synthesizing it, and
// a playback engine rendering the result. At most one session is live at a
// time; the controller owns creation and replacement.
type Session struct {
	id     uint64
	source text.Source
	log    zerolog.Logger
	meter  *observability.Metrics

	cancel        *Latch
	synthesisDone *Latch
	textExhausted *Latch
	workerDone    chan struct{}

	mu      sync.Mutex
	engine  audio.Engine
	encoder synth.Encoder
	stopped bool
}

func newSession(id uint64, source text.Source) *Session {
	return &Session{
		id:            id,
		source:        source,
		log:           observability.WithSession(id),
		meter:         observability.NewSessionMetrics(id),
		cancel:        NewLatch(),
		synthesisDone: NewLatch(),
		textExhausted: NewLatch(),
		workerDone:    make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uint64 {
	return s.id
}

// Stop requests cancellation and synchronously force-stops playback. Safe
// to call from any goroutine, any number of times.
func (s *Session) Stop() {
	s.cancel.Set()
	s.stop(true)
}

// stop tears down the engine and encoder exactly once. force selects
// between immediate teardown and a graceful flush.
func (s *Session) stop(force bool) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	engine, encoder := s.engine, s.encoder
	s.engine, s.encoder = nil, nil
	s.mu.Unlock()

	if engine != nil {
		if force {
			engine.ForceStop()
		} else {
			engine.Stop()
		}
	}
	if encoder != nil {
		if err := encoder.Close(); err != nil {
			s.log.Debug().Err(err).Msg("encoder close error")
		}
	}

	s.log.Info().Bool("forced", force).Msg("session stopped")
}

// adoptEngine installs the engine unless the session was already stopped,
// in which case the engine is torn down and false is returned.
func (s *Session) adoptEngine(engine audio.Engine) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		engine.ForceStop()
		return false
	}
	s.engine = engine
	s.mu.Unlock()
	return true
}

// adoptEncoder installs the encoder unless the session was already stopped.
func (s *Session) adoptEncoder(encoder synth.Encoder) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		_ = encoder.Close()
		return false
	}
	s.encoder = encoder
	s.mu.Unlock()
	return true
}

func (s *Session) currentEngine() audio.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func (s *Session) active() bool {
	select {
	case <-s.workerDone:
		return false
	default:
		return true
	}
}

// sessionCallback adapts encoder events onto its owning session. One
// instance per session; a late event from a replaced session can only ever
// reach the session that created it.
type sessionCallback struct {
	session *Session
}

func (cb *sessionCallback) OnOpen() {
	cb.session.log.Debug().Msg("synthesis connection opened")
}

func (cb *sessionCallback) OnData(frame []byte) {
	s := cb.session
	if s.cancel.IsSet() {
		return
	}
	engine := s.currentEngine()
	if engine == nil {
		return
	}
	engine.Write(frame)
	s.meter.RecordAudioBytes("frames_in", int64(len(frame)))
}

func (cb *sessionCallback) OnComplete() {
	s := cb.session
	s.synthesisDone.Set()
	s.log.Debug().Msg("synthesis complete")
}

func (cb *sessionCallback) OnError(message string) {
	s := cb.session
	s.log.Warn().Str("reason", message).Msg("synthesis failed")
	s.meter.RecordError("synthesis", "synth")
	// Terminal for the synthesis stream; unblock anyone waiting on it.
	s.synthesisDone.Set()
}

func (cb *sessionCallback) OnClose() {
	cb.session.log.Debug().Msg("synthesis connection closed")
}
