package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "speech_service_active_sessions",
		Help: "Number of live playback sessions (0 or 1)",
	})

	totalSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_service_sessions_total",
		Help: "Total number of playback sessions started",
	})

	interruptedSessions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "speech_service_sessions_interrupted_total",
		Help: "Sessions canceled before completing playback",
	})

	sessionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speech_service_session_duration_seconds",
		Help:    "Duration of playback sessions in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	// Synthesis metrics
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_service_synthesis_requests_total",
		Help: "Total number of speech synthesis runs",
	}, []string{"status"})

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "speech_service_synthesis_latency_seconds",
		Help:    "Time from first fragment submitted to terminal encoder event",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Text generation metrics
	generationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_service_generation_requests_total",
		Help: "Total number of streaming text generation runs",
	}, []string{"status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_service_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "speech_service_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_service_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "speech_service_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "frames_in" or "pcm_out"
)

// Metrics tracks metrics for a single playback session
type Metrics struct {
	sessionID          uint64
	startTime          time.Time
	synthesisStartTime time.Time
	mu                 sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID uint64) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordSessionStart records the start of a playback session
func (m *Metrics) RecordSessionStart() {
	activeSessions.Inc()
	totalSessions.Inc()
}

// RecordSessionEnd records the end of a playback session
func (m *Metrics) RecordSessionEnd(interrupted bool) {
	activeSessions.Dec()
	sessionDuration.Observe(time.Since(m.startTime).Seconds())
	if interrupted {
		interruptedSessions.Inc()
	}
}

// RecordSynthesisStart records the start of a synthesis run
func (m *Metrics) RecordSynthesisStart() {
	m.mu.Lock()
	m.synthesisStartTime = time.Now()
	m.mu.Unlock()
}

// RecordSynthesisEnd records the end of a synthesis run
func (m *Metrics) RecordSynthesisEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.synthesisStartTime.IsZero() {
		synthesisLatency.Observe(time.Since(m.synthesisStartTime).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	synthesisRequests.WithLabelValues(status).Inc()
}

// RecordGeneration records a completed text generation run
func RecordGeneration(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	generationRequests.WithLabelValues(status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes processed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(bytes))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
