package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Module provides pipeline metrics.
var Module = fx.Module("telemetry",
	fx.Provide(NewMetrics),
)

// Metrics exposes Prometheus observability primitives for the batch pipeline.
type Metrics struct {
	registry *prometheus.Registry

	recordsTotal  *prometheus.CounterVec
	quarantined   *prometheus.CounterVec
	duplicates    *prometheus.CounterVec
	dimsCreated   *prometheus.CounterVec
	factsLoaded   *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

// NewMetrics registers and returns Prometheus metrics for the pipeline.
func NewMetrics() *Metrics {
	recordsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starmart_records_total",
		Help: "Counts raw records by kind and outcome.",
	}, []string{"kind", "outcome"})

	quarantined := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starmart_quarantined_total",
		Help: "Counts quarantined records by rejection reason.",
	}, []string{"reason"})

	duplicates := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starmart_duplicates_total",
		Help: "Counts superseded in-batch duplicates by fact kind.",
	}, []string{"kind"})

	dimsCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starmart_dimension_rows_created_total",
		Help: "Counts dimension rows created on first sight.",
	}, []string{"dimension"})

	factsLoaded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "starmart_facts_loaded_total",
		Help: "Counts fact rows by table and load outcome.",
	}, []string{"fact", "outcome"})

	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "starmart_batch_duration_seconds",
		Help:    "Wall-clock duration of a full batch run.",
		Buckets: prometheus.DefBuckets,
	})

	registry := prometheus.NewRegistry()
	registry.MustRegister(recordsTotal, quarantined, duplicates, dimsCreated, factsLoaded, batchDuration)

	return &Metrics{
		registry:      registry,
		recordsTotal:  recordsTotal,
		quarantined:   quarantined,
		duplicates:    duplicates,
		dimsCreated:   dimsCreated,
		factsLoaded:   factsLoaded,
		batchDuration: batchDuration,
	}
}

// Registry exposes the underlying registry for scraping or push.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordProcessed(kind, outcome string) {
	m.recordsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) RecordQuarantined(reason string) {
	m.quarantined.WithLabelValues(reason).Inc()
}

func (m *Metrics) RecordDuplicate(kind string) {
	m.duplicates.WithLabelValues(kind).Inc()
}

func (m *Metrics) DimensionCreated(dimension string) {
	m.dimsCreated.WithLabelValues(dimension).Inc()
}

func (m *Metrics) FactLoaded(fact, outcome string) {
	m.factsLoaded.WithLabelValues(fact, outcome).Inc()
}

func (m *Metrics) ObserveBatchDuration(seconds float64) {
	m.batchDuration.Observe(seconds)
}
