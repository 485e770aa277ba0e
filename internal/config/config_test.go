package config

import (
	"os"
	"testing"
)

func TestLoad(t *testing.T) {
	// Set required environment variables
	os.Setenv("DASHSCOPE_API_KEY", "test-dashscope-key")
	defer os.Unsetenv("DASHSCOPE_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DashScopeAPIKey != "test-dashscope-key" {
		t.Errorf("Expected DashScopeAPIKey 'test-dashscope-key', got '%s'", cfg.DashScopeAPIKey)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	// Clear environment variables
	os.Unsetenv("DASHSCOPE_API_KEY")

	_, err := Load()
	if err == nil {
		t.Error("Expected error when required keys are missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	os.Setenv("DASHSCOPE_API_KEY", "test-dashscope-key")
	defer os.Unsetenv("DASHSCOPE_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// Check defaults
	if cfg.Port != "8001" {
		t.Errorf("Expected default Port '8001', got '%s'", cfg.Port)
	}

	if cfg.TTSModel != "cosyvoice-v2" {
		t.Errorf("Expected default TTSModel 'cosyvoice-v2', got '%s'", cfg.TTSModel)
	}

	if cfg.TTSVoice != "longhua_v2" {
		t.Errorf("Expected default TTSVoice 'longhua_v2', got '%s'", cfg.TTSVoice)
	}

	if cfg.TTSFormat != "mp3" {
		t.Errorf("Expected default TTSFormat 'mp3', got '%s'", cfg.TTSFormat)
	}

	if cfg.LLMModel != "qwen-plus" {
		t.Errorf("Expected default LLMModel 'qwen-plus', got '%s'", cfg.LLMModel)
	}

	if cfg.DecoderPath != "ffmpeg" {
		t.Errorf("Expected default DecoderPath 'ffmpeg', got '%s'", cfg.DecoderPath)
	}

	if cfg.SampleRate != 22050 {
		t.Errorf("Expected default SampleRate 22050, got %d", cfg.SampleRate)
	}

	if cfg.DrainChunkSize != 512 {
		t.Errorf("Expected default DrainChunkSize 512, got %d", cfg.DrainChunkSize)
	}

	if cfg.DeviceBufferSize != 16384 {
		t.Errorf("Expected default DeviceBufferSize 16384, got %d", cfg.DeviceBufferSize)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("DASHSCOPE_API_KEY", "test-dashscope-key")
	defer os.Unsetenv("DASHSCOPE_API_KEY")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.DashScopeAPIKey != "test-dashscope-key" {
		t.Errorf("Expected DashScopeAPIKey 'test-dashscope-key', got '%s'", cfg.DashScopeAPIKey)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestConfig_TimeoutDefaults(t *testing.T) {
	os.Setenv("DASHSCOPE_API_KEY", "test-dashscope-key")
	defer os.Unsetenv("DASHSCOPE_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.SynthesisWaitTimeout != 8 {
		t.Errorf("Expected default SynthesisWaitTimeout 8, got %d", cfg.SynthesisWaitTimeout)
	}

	if cfg.DrainWaitTimeout != 5 {
		t.Errorf("Expected default DrainWaitTimeout 5, got %d", cfg.DrainWaitTimeout)
	}

	if cfg.DrainPollInterval != 100 {
		t.Errorf("Expected default DrainPollInterval 100, got %d", cfg.DrainPollInterval)
	}

	if cfg.StopJoinTimeout != 1000 {
		t.Errorf("Expected default StopJoinTimeout 1000, got %d", cfg.StopJoinTimeout)
	}

	if got := cfg.SynthesisWait().Seconds(); got != 8 {
		t.Errorf("Expected SynthesisWait() of 8s, got %vs", got)
	}

	if got := cfg.DrainPoll().Milliseconds(); got != 100 {
		t.Errorf("Expected DrainPoll() of 100ms, got %vms", got)
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	os.Setenv("DASHSCOPE_API_KEY", "test-dashscope-key")
	defer os.Unsetenv("DASHSCOPE_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.RetryMaxAttempts != 3 {
		t.Errorf("Expected default RetryMaxAttempts 3, got %d", cfg.RetryMaxAttempts)
	}

	if cfg.RetryInitialBackoff != 100 {
		t.Errorf("Expected default RetryInitialBackoff 100, got %d", cfg.RetryInitialBackoff)
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}

	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}
}

func TestConfig_ObservabilityDefaults(t *testing.T) {
	os.Setenv("DASHSCOPE_API_KEY", "test-dashscope-key")
	// Clear LOG_LEVEL to ensure we get the default
	os.Unsetenv("LOG_LEVEL")
	defer os.Unsetenv("DASHSCOPE_API_KEY")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	// The default should be "info" (lowercase) as defined in config.go
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default LogLevel 'info', got '%s'", cfg.LogLevel)
	}

	if cfg.LogPretty {
		t.Error("Expected default LogPretty false, got true")
	}

	if !cfg.MetricsEnabled {
		t.Error("Expected default MetricsEnabled true, got false")
	}
}
