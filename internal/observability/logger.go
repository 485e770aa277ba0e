package observability

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	globalLogger zerolog.Logger
	initialized  bool
)

// InitLogger configures the process-wide structured logger. Pretty output
// is for local development; otherwise the logger emits JSON lines.
func InitLogger(level string, pretty bool) {
	if initialized {
		return
	}

	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)

	var out io.Writer = os.Stdout
	if pretty {
		out = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	globalLogger = zerolog.New(out).With().
		Timestamp().
		Str("service", "llm-tts").
		Logger()

	log.Logger = globalLogger
	initialized = true
}

// GetLogger returns the global logger, initializing it with defaults when
// InitLogger has not run yet.
func GetLogger() zerolog.Logger {
	if !initialized {
		InitLogger("info", false)
	}
	return globalLogger
}

// WithSession creates a logger carrying the session id field
func WithSession(sessionID uint64) zerolog.Logger {
	return GetLogger().With().Uint64("session_id", sessionID).Logger()
}

// WithCorrelationID creates a logger with a correlation ID, generating one
// when the caller did not supply it
func WithCorrelationID(correlationID string) zerolog.Logger {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	return GetLogger().With().Str("correlation_id", correlationID).Logger()
}

// NewCorrelationID generates a new correlation ID
func NewCorrelationID() string {
	return uuid.New().String()
}
