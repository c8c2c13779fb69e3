// Package metrics exposes Prometheus collectors for the engagement monitor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SamplesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attention_samples_ingested_total",
			Help: "Total number of sensor samples ingested, by engagement level",
		},
		[]string{"level"},
	)

	PromptsActivated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attention_prompts_activated_total",
			Help: "Total number of prompts activated",
		},
		[]string{"type", "source"},
	)

	PromptsRefused = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attention_prompts_refused_total",
			Help: "Activation requests refused because a prompt was already active",
		},
		[]string{"source"},
	)

	PromptsCleared = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attention_prompts_cleared_total",
			Help: "Total number of prompts cleared, by how they were cleared",
		},
		[]string{"type", "action"},
	)

	DwellAtTrigger = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attention_trigger_dwell_seconds",
			Help:    "Continuous needs-help duration when an automatic prompt fired",
			Buckets: []float64{5, 6, 8, 10, 15, 20, 30, 60, 120},
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "attention_active_sessions",
			Help: "Number of sessions that have not ended",
		},
	)

	EventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attention_events_dropped_total",
			Help: "Presentation events dropped because the event channel was full",
		},
	)

	StreamSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "attention_stream_subscribers",
			Help: "Number of connected SSE and websocket subscribers",
		},
	)

	StreamLagged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attention_stream_lagged_total",
			Help: "Subscribers disconnected because they fell behind the event stream",
		},
	)

	SamplesRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attention_samples_rate_limited_total",
			Help: "Sample submissions rejected by the per-observer rate limiter",
		},
	)

	SessionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attention_session_duration_seconds",
			Help:    "Duration of ended sessions",
			Buckets: prometheus.ExponentialBuckets(60, 2, 8),
		},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
