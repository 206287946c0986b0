// Package metrics exposes Prometheus collectors for the triage pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Messages processed, by status: success, failed, skipped
	MessagesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartmail_messages_processed_total",
			Help: "Total number of messages processed by the triage pipeline",
		},
		[]string{"status"},
	)

	// Gate decisions: refined, gated
	GateDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartmail_gate_decisions_total",
			Help: "Rule-score gate outcomes",
		},
		[]string{"decision"},
	)

	// Verdict outcomes: ok, llm_failure, unparsable, cached
	VerdictOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "smartmail_verdict_outcomes_total",
			Help: "Importance refinement outcomes",
		},
		[]string{"outcome"},
	)

	// External call latency (seconds), by call: completion, embedding
	ExternalCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "smartmail_external_call_duration_seconds",
			Help:    "Latency of model round-trips",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
		[]string{"call", "status"},
	)

	// Combined score distribution
	CombinedScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "smartmail_combined_score",
			Help:    "Distribution of combined importance scores",
			Buckets: prometheus.LinearBuckets(0, 10, 11),
		},
	)
)

// IncrementMessage increments the processed-message counter.
func IncrementMessage(status string) {
	MessagesProcessed.WithLabelValues(status).Inc()
}

// IncrementGate records a gate decision.
func IncrementGate(refined bool) {
	if refined {
		GateDecisions.WithLabelValues("refined").Inc()
		return
	}
	GateDecisions.WithLabelValues("gated").Inc()
}

// IncrementVerdict records a refinement outcome.
func IncrementVerdict(outcome string) {
	VerdictOutcomes.WithLabelValues(outcome).Inc()
}

// RecordExternalCall records one model round-trip.
func RecordExternalCall(call string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ExternalCallDuration.WithLabelValues(call, status).Observe(duration.Seconds())
}

// ObserveCombinedScore records a final score.
func ObserveCombinedScore(score float64) {
	CombinedScore.Observe(score)
}
