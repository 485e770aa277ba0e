package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ARIS2333/LLM-TTS/internal/api"
	"github.com/ARIS2333/LLM-TTS/internal/audio"
	"github.com/ARIS2333/LLM-TTS/internal/config"
	"github.com/ARIS2333/LLM-TTS/internal/llm"
	"github.com/ARIS2333/LLM-TTS/internal/observability"
	"github.com/ARIS2333/LLM-TTS/internal/resilience"
	"github.com/ARIS2333/LLM-TTS/internal/session"
	"github.com/ARIS2333/LLM-TTS/internal/synth"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("tts_model", cfg.TTSModel).
		Str("llm_model", cfg.LLMModel).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Speech service starting")

	// One circuit breaker guards all synthesis connections
	synthBreaker := resilience.NewCircuitBreaker("synthesis",
		cfg.CircuitBreakerMaxFailures, cfg.BreakerReset())
	retryCfg := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    cfg.RetryBackoff(),
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
	}

	engineFactory := func() (audio.Engine, error) {
		return audio.NewEngine(audio.EngineConfig{
			DecoderPath:      cfg.DecoderPath,
			SampleRate:       cfg.SampleRate,
			ChunkSize:        cfg.DrainChunkSize,
			DeviceBufferSize: cfg.DeviceBufferSize,
			StopJoin:         cfg.StopJoin(),
			PipelineExit:     cfg.PipelineExit(),
		}, logger, nil), nil
	}

	encoderFactory := func(cb synth.ResultCallback) (synth.Encoder, error) {
		return synth.NewClient(synth.ClientConfig{
			Endpoint:   cfg.TTSEndpoint,
			APIKey:     cfg.DashScopeAPIKey,
			Model:      cfg.TTSModel,
			Voice:      cfg.TTSVoice,
			Format:     cfg.TTSFormat,
			SampleRate: cfg.SampleRate,
			Retry:      retryCfg,
			Breaker:    synthBreaker,
		}, cb, logger)
	}

	controller := session.NewController(engineFactory, encoderFactory, session.Config{
		SynthesisWait: cfg.SynthesisWait(),
		DrainWait:     cfg.DrainWait(),
		DrainPoll:     cfg.DrainPoll(),
		StopWait:      cfg.StopJoin(),
	}, logger)

	chatClient := llm.NewClient(llm.Config{
		Endpoint:     cfg.LLMEndpoint,
		APIKey:       cfg.DashScopeAPIKey,
		Model:        cfg.LLMModel,
		SystemPrompt: cfg.SystemPrompt,
	}, logger)

	// Create HTTP server
	mux := http.NewServeMux()

	handler := api.NewHandler(controller, chatClient, logger)
	handler.Routes(mux)

	// Health check endpoint
	mux.HandleFunc("/health", observability.HealthCheckHandler())

	// Readiness probes: the decoder binary must be resolvable and the
	// synthesis circuit must not be open
	decoderCheck := func(ctx context.Context) (bool, error) {
		if _, err := exec.LookPath(cfg.DecoderPath); err != nil {
			return false, fmt.Errorf("decoder binary not found: %w", err)
		}
		return true, nil
	}
	synthesisCheck := func(ctx context.Context) (bool, error) {
		if synthBreaker.GetState() == resilience.StateOpen {
			return false, fmt.Errorf("synthesis circuit breaker is open")
		}
		return true, nil
	}
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"decoder":   decoderCheck,
		"synthesis": synthesisCheck,
	}))

	// Metrics endpoint (Prometheus)
	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")

	// Stop any live playback before the listener closes
	if _, err := controller.CancelCurrent(); err == nil {
		logger.Info().Msg("Live session canceled for shutdown")
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited gracefully")
}
