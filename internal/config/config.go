package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the speech playback service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8001"`

	// DashScope API configuration (speech synthesis + text generation)
	DashScopeAPIKey string `envconfig:"DASHSCOPE_API_KEY" required:"true"`
	TTSEndpoint     string `envconfig:"TTS_ENDPOINT" default:"wss://dashscope.aliyuncs.com/api-ws/v1/inference"`
	TTSModel        string `envconfig:"TTS_MODEL" default:"cosyvoice-v2"`
	TTSVoice        string `envconfig:"TTS_VOICE" default:"longhua_v2"`
	TTSFormat       string `envconfig:"TTS_FORMAT" default:"mp3"` // compressed frame format emitted by the encoder

	// Text generation (streaming chat completions, OpenAI-compatible endpoint)
	LLMEndpoint  string `envconfig:"LLM_ENDPOINT" default:"https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"`
	LLMModel     string `envconfig:"LLM_MODEL" default:"qwen-plus"`
	SystemPrompt string `envconfig:"SYSTEM_PROMPT" default:"You are a friendly small-talk voice assistant. Reply conversationally in plain spoken language, without markdown, lists or any other formatted text."`

	// Audio playback configuration
	DecoderPath      string `envconfig:"DECODER_PATH" default:"ffmpeg"`       // external compressed-to-PCM decoder binary
	SampleRate       int    `envconfig:"SAMPLE_RATE" default:"22050"`         // playback sample rate in Hz (s16le mono)
	DrainChunkSize   int    `envconfig:"DRAIN_CHUNK_SIZE" default:"512"`      // small reads keep cancellation latency low
	DeviceBufferSize int    `envconfig:"DEVICE_BUFFER_SIZE" default:"16384"`  // PCM ring buffer between drain loop and device

	// Session timeouts (every wait in the orchestration worker is bounded)
	SynthesisWaitTimeout int `envconfig:"SYNTHESIS_WAIT_TIMEOUT" default:"8"`   // seconds to wait for the encoder's terminal event
	DrainWaitTimeout     int `envconfig:"DRAIN_WAIT_TIMEOUT" default:"5"`       // seconds to wait for playback to drain
	DrainPollInterval    int `envconfig:"DRAIN_POLL_INTERVAL" default:"100"`    // milliseconds between drain polls
	StopJoinTimeout      int `envconfig:"STOP_JOIN_TIMEOUT" default:"1000"`     // milliseconds to join the drain loop on stop
	PipelineExitTimeout  int `envconfig:"PIPELINE_EXIT_TIMEOUT" default:"1000"` // milliseconds to wait for decoder exit before escalating

	// Resilience configuration (encoder connect path)
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"` // milliseconds
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // seconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.DashScopeAPIKey == "" {
		return nil, fmt.Errorf("DASHSCOPE_API_KEY is required")
	}

	return &cfg, nil
}

// SynthesisWait returns the bounded wait for the encoder's terminal event.
func (c *Config) SynthesisWait() time.Duration {
	return time.Duration(c.SynthesisWaitTimeout) * time.Second
}

// DrainWait returns the bounded wait for playback to finish draining.
func (c *Config) DrainWait() time.Duration {
	return time.Duration(c.DrainWaitTimeout) * time.Second
}

// DrainPoll returns the polling interval used while waiting for drain.
func (c *Config) DrainPoll() time.Duration {
	return time.Duration(c.DrainPollInterval) * time.Millisecond
}

// StopJoin returns the bounded wait for the drain loop to exit on stop.
func (c *Config) StopJoin() time.Duration {
	return time.Duration(c.StopJoinTimeout) * time.Millisecond
}

// PipelineExit returns the bounded wait for the decoder process to exit.
func (c *Config) PipelineExit() time.Duration {
	return time.Duration(c.PipelineExitTimeout) * time.Millisecond
}

// RetryBackoff returns the initial backoff for encoder connect retries.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryInitialBackoff) * time.Millisecond
}

// BreakerReset returns the circuit breaker reset timeout.
func (c *Config) BreakerReset() time.Duration {
	return time.Duration(c.CircuitBreakerResetTimeout) * time.Second
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
