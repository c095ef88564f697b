package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry            *prometheus.Registry
	RequestsTotal       *prometheus.CounterVec
	RequestDuration     *prometheus.HistogramVec
	PositionsTotal      *prometheus.CounterVec
	RecordsTotal        prometheus.Counter
	DetailFailuresTotal prometheus.Counter
	AbortsTotal         prometheus.Counter
	ErrorsTotal         *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_requests_total",
			Help: "Total HTTP requests issued, by crawl stage.",
		},
		[]string{"stage"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crawler_request_duration_seconds",
			Help:    "HTTP request latency, by crawl stage.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)
	positions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_result_positions_total",
			Help: "Results-list positions walked, by outcome.",
		},
		[]string{"outcome"},
	)
	records := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_records_total",
			Help: "Hotel records extracted from detail pages.",
		},
	)
	detailFailures := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_detail_failures_total",
			Help: "Detail pages skipped after a fetch or extraction error.",
		},
	)
	aborts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "crawler_aborts_total",
			Help: "Crawl runs aborted by the miss threshold.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_errors_total",
			Help: "Request errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, positions, records, detailFailures, aborts, errorsTotal)

	return &Metrics{
		Registry:            registry,
		RequestsTotal:       requests,
		RequestDuration:     requestDuration,
		PositionsTotal:      positions,
		RecordsTotal:        records,
		DetailFailuresTotal: detailFailures,
		AbortsTotal:         aborts,
		ErrorsTotal:         errorsTotal,
	}
}

// ObserveRequest counts a request and records its latency.
func (m *Metrics) ObserveRequest(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(stage).Inc()
	m.RequestDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// IncPosition counts one walked position.
func (m *Metrics) IncPosition(outcome string) {
	if m == nil {
		return
	}
	m.PositionsTotal.WithLabelValues(outcome).Inc()
}

// IncRecords counts one extracted record.
func (m *Metrics) IncRecords() {
	if m == nil {
		return
	}
	m.RecordsTotal.Inc()
}

// IncDetailFailures counts one skipped detail page.
func (m *Metrics) IncDetailFailures() {
	if m == nil {
		return
	}
	m.DetailFailuresTotal.Inc()
}

// IncAborts counts one aborted run.
func (m *Metrics) IncAborts() {
	if m == nil {
		return
	}
	m.AbortsTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
