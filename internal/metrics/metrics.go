// Package metrics exposes Prometheus instrumentation for connections and turns.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rbright/voicebridge/internal/session"
)

const namespace = "voicebridge"

// Metrics contains all Prometheus metrics for the bridge.
type Metrics struct {
	registry *prometheus.Registry

	Connections       prometheus.Gauge
	Actions           *prometheus.CounterVec
	MalformedMessages prometheus.Counter

	Turns           *prometheus.CounterVec
	AutoStops       prometheus.Counter
	RecordedSeconds prometheus.Histogram

	TranscribeDuration *prometheus.HistogramVec
	RefineDuration     *prometheus.HistogramVec
}

// New creates the metric set on a dedicated registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Current number of connected push-to-talk clients",
		}),
		Actions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Inbound client actions by kind",
		}, []string{"action"}),
		MalformedMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_messages_total",
			Help:      "Inbound messages dropped because they were malformed or unknown",
		}),

		Turns: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Finished turns by outcome",
		}, []string{"outcome"}),
		AutoStops: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auto_stops_total",
			Help:      "Recordings stopped by the max record duration timer",
		}),
		RecordedSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recorded_audio_seconds",
			Help:      "Captured audio length per turn",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 8), // 0.5s to ~1 minute
		}),

		TranscribeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcribe_duration_seconds",
			Help:      "Speech-to-text request latency",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"result"}),
		RefineDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refine_duration_seconds",
			Help:      "LLM refinement request latency",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"result"}),
	}
}

// Handler serves this metric set in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the backing registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// TurnFinished implements session.Observer.
func (m *Metrics) TurnFinished(outcome session.Outcome) {
	m.Turns.WithLabelValues(string(outcome)).Inc()
}

// AutoStopped implements session.Observer.
func (m *Metrics) AutoStopped() {
	m.AutoStops.Inc()
}

// Recorded implements session.Observer.
func (m *Metrics) Recorded(d time.Duration) {
	m.RecordedSeconds.Observe(d.Seconds())
}

// ObserveTranscription records one transcription call.
func (m *Metrics) ObserveTranscription(d time.Duration, err error) {
	m.TranscribeDuration.WithLabelValues(result(err)).Observe(d.Seconds())
}

// ObserveRefinement records one refinement call.
func (m *Metrics) ObserveRefinement(d time.Duration, err error) {
	m.RefineDuration.WithLabelValues(result(err)).Observe(d.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
