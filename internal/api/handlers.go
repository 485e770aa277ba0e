package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ARIS2333/LLM-TTS/internal/observability"
	"github.com/ARIS2333/LLM-TTS/internal/session"
	"github.com/ARIS2333/LLM-TTS/internal/text"
)

// ChatStreamer produces streamed text deltas for a prompt.
type ChatStreamer interface {
	StreamChat(ctx context.Context, userText string, onDelta func(string)) error
}

// StartRequest starts playback either of pre-segmented text or of a
// model-generated reply to a prompt.
type StartRequest struct {
	// Text is a prompt for the language model; its streamed reply is
	// spoken as it is generated.
	Text string `json:"text,omitempty"`
	// Segments are spoken directly, in order, bypassing generation.
	Segments []string `json:"segments,omitempty"`
}

type sessionResponse struct {
	Status    string `json:"status"`
	SessionID uint64 `json:"session_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Handler exposes the speech service HTTP API.
type Handler struct {
	ctrl *session.Controller
	chat ChatStreamer
	log  zerolog.Logger
}

// NewHandler creates the API handler. chat may be nil when generation is
// not configured; segment playback still works.
func NewHandler(ctrl *session.Controller, chat ChatStreamer, log zerolog.Logger) *Handler {
	return &Handler{ctrl: ctrl, chat: chat, log: log}
}

// Routes registers the API endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/start", h.handleStart)
	mux.HandleFunc("/stop", h.handleStop)
	mux.HandleFunc("/status", h.handleStatus)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, sessionResponse{Status: "error", Message: "method not allowed"})
		return
	}

	log := observability.WithCorrelationID(r.Header.Get("X-Correlation-ID"))

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, sessionResponse{Status: "error", Message: "invalid request body"})
		return
	}

	switch {
	case len(req.Segments) > 0:
		id, err := h.ctrl.Begin(req.Segments)
		if err != nil {
			log.Error().Err(err).Msg("failed to start segment playback")
			writeJSON(w, http.StatusInternalServerError, sessionResponse{Status: "error", Message: err.Error()})
			return
		}
		log.Info().Uint64("session_id", id).Int("segments", len(req.Segments)).Msg("segment playback started")
		writeJSON(w, http.StatusOK, sessionResponse{Status: "started", SessionID: id})

	case req.Text != "":
		if h.chat == nil {
			writeJSON(w, http.StatusServiceUnavailable, sessionResponse{Status: "error", Message: "text generation not configured"})
			return
		}
		src := text.NewStreamSource(64)
		id, err := h.ctrl.BeginSource(src)
		if err != nil {
			log.Error().Err(err).Msg("failed to start generated playback")
			writeJSON(w, http.StatusInternalServerError, sessionResponse{Status: "error", Message: err.Error()})
			return
		}
		go h.generate(id, req.Text, src)
		log.Info().Uint64("session_id", id).Msg("generated playback started")
		writeJSON(w, http.StatusOK, sessionResponse{Status: "started", SessionID: id})

	default:
		writeJSON(w, http.StatusBadRequest, sessionResponse{Status: "error", Message: "text or segments required"})
	}
}

// generate streams the model reply into the session's text source,
// sentence by sentence. When the session stops consuming, the source
// rejects pushes and the stream context is canceled.
func (h *Handler) generate(sessionID uint64, prompt string, src *text.StreamSource) {
	defer src.Finish()

	log := observability.WithSession(sessionID)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	assembler := text.NewAssembler(func(fragment string) {
		if err := src.Push(fragment); err != nil {
			cancel()
		}
	})

	err := h.chat.StreamChat(ctx, prompt, assembler.Write)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Debug().Msg("generation canceled with session")
		} else {
			log.Error().Err(err).Msg("generation failed")
		}
		observability.RecordGeneration(false)
		return
	}

	assembler.Flush()
	observability.RecordGeneration(true)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, sessionResponse{Status: "error", Message: "method not allowed"})
		return
	}

	id, err := h.ctrl.CancelCurrent()
	if err != nil {
		if errors.Is(err, session.ErrNoActiveSession) {
			writeJSON(w, http.StatusNotFound, sessionResponse{Status: "error", Message: "no active session"})
			return
		}
		h.log.Error().Err(err).Msg("failed to stop session")
		writeJSON(w, http.StatusInternalServerError, sessionResponse{Status: "error", Message: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{Status: "stopped", SessionID: id})
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, sessionResponse{Status: "error", Message: "method not allowed"})
		return
	}

	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
