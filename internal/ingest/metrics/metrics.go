// Package metrics provides observability for the ingest module.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers ingestion runs end to end: run outcomes, record-level
// reconciliation results, and fetch latency per source.
type Metrics struct {
	// Run outcomes by source and result ("completed", "skipped", "failed")
	RunsTotal *prometheus.CounterVec

	// Record outcomes by source and action ("created", "updated", "failed", "skipped")
	RecordsTotal *prometheus.CounterVec

	// Full run latency by source, fetch through reconcile
	RunDuration *prometheus.HistogramVec

	// Feed download latency by source
	FetchDuration *prometheus.HistogramVec
}

// New creates a Metrics instance with all ingest module metrics registered.
func New() *Metrics {
	return &Metrics{
		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "amlwatch_ingest_runs_total",
			Help: "Total ingestion runs by source and result",
		}, []string{"source", "result"}),

		RecordsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "amlwatch_ingest_records_total",
			Help: "Total reconciled records by source and action",
		}, []string{"source", "action"}),

		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amlwatch_ingest_run_duration_seconds",
			Help:    "Duration of full ingestion runs by source",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"source"}),

		FetchDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amlwatch_ingest_fetch_duration_seconds",
			Help:    "Duration of feed downloads by source",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"source"}),
	}
}

// ObserveRun records the outcome and duration of one ingestion run.
func (m *Metrics) ObserveRun(source, result string, d time.Duration) {
	if m != nil {
		m.RunsTotal.WithLabelValues(source, result).Inc()
		m.RunDuration.WithLabelValues(source).Observe(d.Seconds())
	}
}

// AddRecords records record-level reconciliation outcomes in bulk.
func (m *Metrics) AddRecords(source, action string, n int) {
	if m != nil && n > 0 {
		m.RecordsTotal.WithLabelValues(source, action).Add(float64(n))
	}
}

// ObserveFetch records a feed download duration.
func (m *Metrics) ObserveFetch(source string, d time.Duration) {
	if m != nil {
		m.FetchDuration.WithLabelValues(source).Observe(d.Seconds())
	}
}
