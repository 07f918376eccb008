package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/document-autopilot/internal/core/domain"
)

// PipelineMetrics is the worker-side registry. It implements the observer
// interfaces the usecase layer exposes, so the pipeline stays free of any
// Prometheus imports.
type PipelineMetrics struct {
	registry *prometheus.Registry
	service  string

	documentsTotal    *prometheus.CounterVec
	stageDuration     *prometheus.HistogramVec
	stageRetries      *prometheus.CounterVec
	deadLetterTotal   *prometheus.CounterVec
	discoveredTotal   prometheus.Counter
	categoriesCreated prometheus.Counter
	dispatchTotal     *prometheus.CounterVec
	inFlight          prometheus.Gauge
	queueLag          prometheus.Histogram
}

func NewPipelineMetrics(service string) *PipelineMetrics {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"service": service}

	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "autopilot",
			Subsystem:   "pipeline",
			Name:        "documents_total",
			Help:        "Total documents that reached a terminal state, by outcome.",
			ConstLabels: constLabels,
		},
		[]string{"outcome"},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace:   "autopilot",
			Subsystem:   "pipeline",
			Name:        "stage_duration_seconds",
			Help:        "Stage execution duration in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		},
		[]string{"stage"},
	)
	stageRetries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "autopilot",
			Subsystem:   "pipeline",
			Name:        "stage_retries_total",
			Help:        "Total failed stage attempts that were retried.",
			ConstLabels: constLabels,
		},
		[]string{"stage"},
	)
	deadLetterTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "autopilot",
			Subsystem:   "pipeline",
			Name:        "dead_letter_total",
			Help:        "Total documents dead-lettered, by failing stage.",
			ConstLabels: constLabels,
		},
		[]string{"stage"},
	)
	discoveredTotal := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "autopilot",
			Subsystem:   "monitor",
			Name:        "documents_discovered_total",
			Help:        "Total new document identities discovered.",
			ConstLabels: constLabels,
		},
	)
	categoriesCreated := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace:   "autopilot",
			Subsystem:   "pipeline",
			Name:        "categories_created_total",
			Help:        "Total dynamically created categories.",
			ConstLabels: constLabels,
		},
	)
	dispatchTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace:   "autopilot",
			Subsystem:   "workflow",
			Name:        "dispatch_total",
			Help:        "Total workflow dispatches by action kind and outcome.",
			ConstLabels: constLabels,
		},
		[]string{"kind", "outcome"},
	)
	inFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace:   "autopilot",
			Subsystem:   "pipeline",
			Name:        "documents_in_flight",
			Help:        "Number of documents currently being processed.",
			ConstLabels: constLabels,
		},
	)
	queueLag := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace:   "autopilot",
			Subsystem:   "pipeline",
			Name:        "queue_lag_seconds",
			Help:        "Delay between discovery and processing start.",
			Buckets:     []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
			ConstLabels: constLabels,
		},
	)

	registry.MustRegister(
		documentsTotal,
		stageDuration,
		stageRetries,
		deadLetterTotal,
		discoveredTotal,
		categoriesCreated,
		dispatchTotal,
		inFlight,
		queueLag,
	)

	return &PipelineMetrics{
		registry:          registry,
		service:           service,
		documentsTotal:    documentsTotal,
		stageDuration:     stageDuration,
		stageRetries:      stageRetries,
		deadLetterTotal:   deadLetterTotal,
		discoveredTotal:   discoveredTotal,
		categoriesCreated: categoriesCreated,
		dispatchTotal:     dispatchTotal,
		inFlight:          inFlight,
		queueLag:          queueLag,
	}
}

func (m *PipelineMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *PipelineMetrics) StartDocument() {
	m.inFlight.Inc()
}

func (m *PipelineMetrics) FinishDocument() {
	m.inFlight.Dec()
}

func (m *PipelineMetrics) StageDone(stage domain.Stage, duration time.Duration, err error) {
	m.stageDuration.WithLabelValues(string(stage)).Observe(duration.Seconds())
	if stage == domain.StageDispatching && err == nil {
		m.documentsTotal.WithLabelValues("completed").Inc()
	}
}

func (m *PipelineMetrics) StageRetried(stage domain.Stage) {
	m.stageRetries.WithLabelValues(string(stage)).Inc()
}

func (m *PipelineMetrics) DeadLettered(stage domain.Stage) {
	m.documentsTotal.WithLabelValues("dead_lettered").Inc()
	m.deadLetterTotal.WithLabelValues(string(stage)).Inc()
}

func (m *PipelineMetrics) Discovered(count int) {
	m.discoveredTotal.Add(float64(count))
}

func (m *PipelineMetrics) CategoryCreated() {
	m.categoriesCreated.Inc()
}

func (m *PipelineMetrics) Dispatched(kind domain.ActionKind, outcome domain.DispatchOutcome) {
	m.dispatchTotal.WithLabelValues(string(kind), string(outcome)).Inc()
}

func (m *PipelineMetrics) ObserveQueueLag(lag time.Duration) {
	if lag < 0 {
		return
	}
	m.queueLag.Observe(lag.Seconds())
}
