// Package metrics exposes Prometheus instrumentation for the bridge.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Synthesis outcomes.
const (
	StatusSuccess     = "success"
	StatusDisabled    = "disabled"
	StatusUpstream    = "upstream_error"
	StatusTransport   = "transport_error"
	StatusEmptyAudio  = "empty_audio"
	StatusFilesystem  = "filesystem_error"
	StatusInvalidBody = "invalid_request"
)

// Auto-speech decisions.
const (
	DecisionSkipped    = "skipped_probability"
	DecisionIneligible = "ineligible_chain"
	DecisionEmpty      = "empty_text"
	DecisionTooLong    = "too_long"
	DecisionSpoken     = "spoken"
	DecisionFailed     = "failed"
)

// Speech command outcomes.
const (
	CommandDenied = "denied"
	CommandUsage  = "usage"
	CommandFailed = "failed"
	CommandSpoken = "spoken"
)

var (
	synthesisRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_bridge_synthesis_total",
		Help: "Total number of synthesis attempts by outcome",
	}, []string{"status"})

	synthesisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tts_bridge_synthesis_latency_seconds",
		Help:    "Synthesis round-trip latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	autoSpeechDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_bridge_auto_speech_decisions_total",
		Help: "Auto-speech-on-reply decisions by outcome",
	}, []string{"outcome"})

	commandRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_bridge_command_total",
		Help: "Explicit speech commands by outcome",
	}, []string{"outcome"})

	purgedFiles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tts_bridge_cleanup_deleted_files_total",
		Help: "Scratch files deleted by the cleanup scheduler",
	})

	purgeFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tts_bridge_cleanup_failures_total",
		Help: "Cleanup failures by scope (file or pass)",
	}, []string{"scope"})
)

// RecordSynthesis records one synthesis attempt.
func RecordSynthesis(status string, elapsed time.Duration) {
	synthesisRequests.WithLabelValues(status).Inc()

	if status != StatusDisabled {
		synthesisLatency.Observe(elapsed.Seconds())
	}
}

// RecordAutoSpeech records the outcome of one reply hook invocation.
func RecordAutoSpeech(outcome string) {
	autoSpeechDecisions.WithLabelValues(outcome).Inc()
}

// RecordCommand records the outcome of one speech command.
func RecordCommand(outcome string) {
	commandRequests.WithLabelValues(outcome).Inc()
}

// RecordPurge records one cleanup pass.
func RecordPurge(deleted, failed int) {
	purgedFiles.Add(float64(deleted))

	if failed > 0 {
		purgeFailures.WithLabelValues("file").Add(float64(failed))
	}
}

// RecordPurgeError records a pass that could not run at all.
func RecordPurgeError() {
	purgeFailures.WithLabelValues("pass").Inc()
}
