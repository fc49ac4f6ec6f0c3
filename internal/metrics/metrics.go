// Package metrics defines the Prometheus collectors for Practica and the
// Recorder interface through which the provider gateway reports calls.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Provider call outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeTransient   = "transient_error"
	OutcomePermanent   = "permanent_error"
	OutcomeUnavailable = "unavailable"
)

var (
	// ProviderCallsTotal counts individual provider attempts by outcome.
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "practica",
			Subsystem: "gateway",
			Name:      "provider_calls_total",
			Help:      "Total provider call attempts",
		},
		[]string{"provider", "tier", "outcome"},
	)

	// ProviderLatency observes per-attempt provider latency.
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "practica",
			Subsystem: "gateway",
			Name:      "provider_latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "tier"},
	)

	// EventsTotal counts processed inbound dialogue events.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "practica",
			Subsystem: "dialogue",
			Name:      "events_total",
			Help:      "Total processed inbound events",
		},
		[]string{"outcome"},
	)

	// EventLatency observes end-to-end event processing latency.
	EventLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "practica",
			Subsystem: "dialogue",
			Name:      "event_latency_seconds",
			Help:      "Inbound event processing latency in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 1, 3, 10, 30},
		},
	)

	// SessionsClosedTotal counts session close operations by lifecycle reason.
	SessionsClosedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "practica",
			Subsystem: "session",
			Name:      "closes_total",
			Help:      "Total session close operations by reason",
		},
		[]string{"reason"},
	)

	// RetentionPrunedTotal counts rows removed by the retention pruner.
	RetentionPrunedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "practica",
			Subsystem: "retention",
			Name:      "pruned_total",
			Help:      "Total rows removed by retention pruning",
		},
		[]string{"kind"},
	)
)

// Recorder receives exactly one event per provider attempt. The gateway
// depends on this interface so tests can observe emission counts.
type Recorder interface {
	ProviderCall(provider, tier, outcome string, latency time.Duration)
}

// PromRecorder is the production Recorder backed by the collectors above.
type PromRecorder struct{}

func (PromRecorder) ProviderCall(provider, tier, outcome string, latency time.Duration) {
	ProviderCallsTotal.WithLabelValues(provider, tier, outcome).Inc()
	ProviderLatency.WithLabelValues(provider, tier).Observe(latency.Seconds())
}

// Handler returns the HTTP handler exposing the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
