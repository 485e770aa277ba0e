package synth

import "errors"

// ErrEncoderClosed is returned by operations on an encoder that has been
// closed.
var ErrEncoderClosed = errors.New("encoder closed")

// ResultCallback receives the encoder's asynchronous events. Audio frames
// and lifecycle events for one synthesis run are delivered serially, in
// arrival order. A callback instance is bound to exactly one playback
// session and must never be shared across sessions.
type ResultCallback interface {
	// OnOpen fires once the connection to the synthesis service is up.
	OnOpen()
	// OnData delivers one compressed audio frame.
	OnData(frame []byte)
	// OnComplete fires when the service reports synthesis finished.
	OnComplete()
	// OnError fires when the service reports a failure. Terminal; no
	// further frames follow.
	OnError(message string)
	// OnClose fires when the connection is torn down.
	OnClose()
}

// Encoder accepts ordered text fragments and asynchronously emits
// compressed audio frames through its bound ResultCallback.
type Encoder interface {
	// Submit sends one text fragment for synthesis.
	Submit(fragment string) error
	// Finish signals that no more fragments will be submitted. The
	// encoder completes any in-flight synthesis and then reports
	// OnComplete.
	Finish() error
	// Close tears the encoder down immediately. Idempotent.
	Close() error
}

// Factory constructs a fresh encoder bound to the given callback.
type Factory func(cb ResultCallback) (Encoder, error)
