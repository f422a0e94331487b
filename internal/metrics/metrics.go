package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "narrator"

// Metrics holds the application collectors.
type Metrics struct {
	registry *prometheus.Registry

	// Counters
	syntheses      *prometheus.CounterVec
	normalizations *prometheus.CounterVec
	generations    *prometheus.CounterVec

	// Histograms
	synthesisDuration *prometheus.HistogramVec
	synthesisPolls    prometheus.Histogram
	pagesPerDocument  prometheus.Histogram

	// Gauges
	activeGenerations prometheus.Gauge
}

// New registers all collectors on a fresh registry, so several instances can
// coexist in tests.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		syntheses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "syntheses_total",
				Help:      "Long-audio synthesis runs by outcome.",
			},
			[]string{"outcome"}, // succeeded, auth_failed, init_failed, processing_failed, timed_out, retrieval_failed, cancelled
		),

		normalizations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "normalizations_total",
				Help:      "LLM page normalisation calls by provider and status.",
			},
			[]string{"provider", "status"},
		),

		generations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generations_total",
				Help:      "Finished generations by final status.",
			},
			[]string{"status"},
		),

		synthesisDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "synthesis_duration_seconds",
				Help:      "Wall time of a synthesis run from authentication to download.",
				Buckets:   []float64{30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
			},
			[]string{"outcome"},
		),

		synthesisPolls: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "synthesis_polls",
				Help:      "Status checks issued per synthesis run.",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),

		pagesPerDocument: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "document_pages",
				Help:      "Pages extracted per document.",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
		),

		activeGenerations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_generations",
				Help:      "Generations currently being processed.",
			},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.syntheses,
		m.normalizations,
		m.generations,
		m.synthesisDuration,
		m.synthesisPolls,
		m.pagesPerDocument,
		m.activeGenerations,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSynthesis(outcome string, elapsed time.Duration, polls int) {
	m.syntheses.WithLabelValues(outcome).Inc()
	m.synthesisDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if polls > 0 {
		m.synthesisPolls.Observe(float64(polls))
	}
}

func (m *Metrics) RecordNormalization(provider string, err error) {
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.normalizations.WithLabelValues(provider, status).Inc()
}

func (m *Metrics) RecordPages(n int) {
	m.pagesPerDocument.Observe(float64(n))
}

// GenerationStarted returns a func to call once the generation finishes.
func (m *Metrics) GenerationStarted() func(status string) {
	m.activeGenerations.Inc()
	return func(status string) {
		m.activeGenerations.Dec()
		m.generations.WithLabelValues(status).Inc()
	}
}
