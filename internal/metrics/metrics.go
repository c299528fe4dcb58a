// Package metrics exposes pipeline and HTTP counters to Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JonMunkholm/parque/internal/core"
)

// Registry holds every collector of the process on its own registry, so
// tests can build as many as they like.
type Registry struct {
	reg *prometheus.Registry

	// Pipeline
	RowsProcessed *prometheus.CounterVec
	ETLErrors     *prometheus.CounterVec
	JobDuration   *prometheus.HistogramVec
	JobsActive    prometheus.Gauge

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewRegistry creates the collectors. withRuntime adds the Go runtime and
// process collectors.
func NewRegistry(withRuntime bool) *Registry {
	reg := prometheus.NewRegistry()
	if withRuntime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	f := promauto.With(reg)

	return &Registry{
		reg: reg,
		RowsProcessed: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parque_rows_processed_total",
				Help: "Inventory rows processed by final record state",
			},
			[]string{"estado"},
		),
		ETLErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parque_etl_errors_total",
				Help: "Error ledger writes by type and severity, duplicates included",
			},
			[]string{"tipo", "severidad"},
		),
		JobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parque_job_duration_seconds",
				Help:    "Wall time of ETL jobs by terminal state",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"estado"},
		),
		JobsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "parque_jobs_active",
				Help: "ETL jobs currently running",
			},
		),
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "parque_http_requests_total",
				Help: "HTTP requests by route, method and status code",
			},
			[]string{"route", "method", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "parque_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// Pipeline adapts the registry to core.Metrics.
func (r *Registry) Pipeline() core.Metrics {
	return pipeline{r}
}

type pipeline struct{ r *Registry }

func (p pipeline) JobStarted() {
	p.r.JobsActive.Inc()
}

func (p pipeline) JobFinished(state core.JobState, d time.Duration) {
	p.r.JobsActive.Dec()
	p.r.JobDuration.WithLabelValues(string(state)).Observe(d.Seconds())
}

func (p pipeline) RowProcessed(state core.RecordState) {
	p.r.RowsProcessed.WithLabelValues(string(state)).Inc()
}

func (p pipeline) ErrorRecorded(t core.ErrorType, s core.Severity) {
	p.r.ETLErrors.WithLabelValues(string(t), string(s)).Inc()
}

// ObserveRequest records one HTTP request.
func (r *Registry) ObserveRequest(route, method string, status int, d time.Duration) {
	r.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	r.HTTPRequestDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
