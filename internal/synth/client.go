package synth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ARIS2333/LLM-TTS/internal/resilience"
)

// ClientConfig carries connection and voice parameters for the synthesis
// service.
type ClientConfig struct {
	Endpoint   string
	APIKey     string
	Model      string
	Voice      string
	Format     string
	SampleRate int

	// ConnectTimeout bounds the dial and the wait for task-started.
	ConnectTimeout time.Duration

	// Retry and Breaker guard the connection attempt. Both optional.
	Retry   *resilience.RetryConfig
	Breaker *resilience.CircuitBreaker
}

func (c *ClientConfig) setDefaults() {
	if c.Model == "" {
		c.Model = "cosyvoice-v2"
	}
	if c.Voice == "" {
		c.Voice = "longhua_v2"
	}
	if c.Format == "" {
		c.Format = "mp3"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 22050
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
}

// messageHeader is the header block of every frame exchanged with the
// service. Client frames carry action; server frames carry event.
type messageHeader struct {
	Action       string `json:"action,omitempty"`
	TaskID       string `json:"task_id,omitempty"`
	Streaming    string `json:"streaming,omitempty"`
	Event        string `json:"event,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

type synthesisParams struct {
	TextType   string  `json:"text_type"`
	Voice      string  `json:"voice"`
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate"`
	Volume     int     `json:"volume"`
	Rate       float64 `json:"rate"`
	Pitch      float64 `json:"pitch"`
}

type messagePayload struct {
	TaskGroup  string           `json:"task_group,omitempty"`
	Task       string           `json:"task,omitempty"`
	Function   string           `json:"function,omitempty"`
	Model      string           `json:"model,omitempty"`
	Parameters *synthesisParams `json:"parameters,omitempty"`
	Input      *messageInput    `json:"input,omitempty"`
}

type messageInput struct {
	Text string `json:"text,omitempty"`
}

type message struct {
	Header  messageHeader  `json:"header"`
	Payload messagePayload `json:"payload"`
}

// Client streams text fragments to the synthesis service over a duplex
// websocket and forwards audio frames and lifecycle events to its bound
// callback.
type Client struct {
	cfg    ClientConfig
	cb     ResultCallback
	log    zerolog.Logger
	taskID string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	readerDone chan struct{}
}

// NewClient dials the service, starts a synthesis task, and waits for the
// service to acknowledge it before returning.
func NewClient(cfg ClientConfig, cb ResultCallback, log zerolog.Logger) (*Client, error) {
	cfg.setDefaults()

	c := &Client{
		cfg:        cfg,
		cb:         cb,
		log:        log,
		taskID:     uuid.New().String(),
		readerDone: make(chan struct{}),
	}

	dial := func() error {
		dialer := websocket.Dialer{HandshakeTimeout: cfg.ConnectTimeout}
		header := http.Header{}
		if cfg.APIKey != "" {
			header.Set("Authorization", "bearer "+cfg.APIKey)
		}
		conn, resp, err := dialer.Dial(cfg.Endpoint, header)
		if err != nil {
			if resp != nil {
				return fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
			}
			return fmt.Errorf("websocket dial failed: %w", err)
		}
		c.conn = conn
		return nil
	}

	connect := func() error {
		return resilience.Retry(dial, cfg.Retry, resilience.IsRetryableNetworkError)
	}

	var err error
	if cfg.Breaker != nil {
		err = cfg.Breaker.Call(connect)
	} else {
		err = connect()
	}
	if err != nil {
		return nil, err
	}

	if err := c.startTask(); err != nil {
		c.conn.Close()
		return nil, err
	}

	c.cb.OnOpen()
	go c.readLoop()
	return c, nil
}

// startTask sends run-task and blocks until the service acknowledges it.
func (c *Client) startTask() error {
	runTask := message{
		Header: messageHeader{
			Action:    "run-task",
			TaskID:    c.taskID,
			Streaming: "duplex",
		},
		Payload: messagePayload{
			TaskGroup: "audio",
			Task:      "tts",
			Function:  "SpeechSynthesizer",
			Model:     c.cfg.Model,
			Parameters: &synthesisParams{
				TextType:   "PlainText",
				Voice:      c.cfg.Voice,
				Format:     c.cfg.Format,
				SampleRate: c.cfg.SampleRate,
				Volume:     50,
				Rate:       1.0,
				Pitch:      1.0,
			},
			Input: &messageInput{},
		},
	}
	if err := c.conn.WriteJSON(runTask); err != nil {
		return fmt.Errorf("failed to send run-task: %w", err)
	}

	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("waiting for task-started: %w", err)
		}
		if msgType == websocket.BinaryMessage {
			// No audio is expected before task-started; drop it.
			continue
		}

		var evt message
		if err := json.Unmarshal(data, &evt); err != nil {
			c.log.Debug().Err(err).Msg("ignoring unparseable service event")
			continue
		}
		switch evt.Header.Event {
		case "task-started":
			c.log.Debug().Str("task_id", c.taskID).Msg("synthesis task started")
			return nil
		case "task-failed":
			return fmt.Errorf("synthesis task failed: %s", evt.Header.ErrorMessage)
		}
	}
}

// readLoop dispatches incoming frames until a terminal event or the
// connection drops. Callbacks are invoked from this single goroutine, so
// delivery order matches arrival order.
func (c *Client) readLoop() {
	defer close(c.readerDone)
	defer c.cb.OnClose()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.mu.Unlock()
			if !closed {
				c.log.Debug().Err(err).Msg("synthesis connection lost")
				c.cb.OnError(err.Error())
			}
			return
		}

		if msgType == websocket.BinaryMessage {
			c.cb.OnData(data)
			continue
		}

		var evt message
		if err := json.Unmarshal(data, &evt); err != nil {
			c.log.Debug().Err(err).Msg("ignoring unparseable service event")
			continue
		}

		switch evt.Header.Event {
		case "result-generated":
			// Metadata only; audio arrives in binary frames.
		case "task-finished":
			c.cb.OnComplete()
			return
		case "task-failed":
			c.cb.OnError(evt.Header.ErrorMessage)
			return
		}
	}
}

// Submit sends one text fragment for synthesis.
func (c *Client) Submit(fragment string) error {
	msg := message{
		Header: messageHeader{
			Action:    "continue-task",
			TaskID:    c.taskID,
			Streaming: "duplex",
		},
		Payload: messagePayload{
			Input: &messageInput{Text: fragment},
		},
	}
	return c.send(msg)
}

// Finish signals end of input; the service will flush remaining audio and
// report task-finished.
func (c *Client) Finish() error {
	msg := message{
		Header: messageHeader{
			Action:    "finish-task",
			TaskID:    c.taskID,
			Streaming: "duplex",
		},
		Payload: messagePayload{
			Input: &messageInput{},
		},
	}
	return c.send(msg)
}

func (c *Client) send(msg message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrEncoderClosed
	}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Header.Action, err)
	}
	return nil
}

// Close tears down the connection. Safe to call from any goroutine and
// more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	err := conn.Close()

	select {
	case <-c.readerDone:
	case <-time.After(time.Second):
	}
	return err
}
