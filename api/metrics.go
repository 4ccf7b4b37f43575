package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the engine counters served on /metrics. Each instance owns its
// registry so that tests can build as many handlers as they like.
type Metrics struct {
	registry *prometheus.Registry

	Scans        *prometheus.CounterVec
	ScanDuration prometheus.Histogram
	Reports      *prometheus.CounterVec
	Finalized    prometheus.Counter
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Scans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staff_scans_total",
			Help: "QR scans by outcome (checked_in, checked_out, rejected) and reason.",
		}, []string{"result", "reason"}),
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "staff_scan_duration_seconds",
			Help:    "Time spent handling a scan, including store retries.",
			Buckets: prometheus.DefBuckets,
		}),
		Reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staff_reports_total",
			Help: "Payroll and muster computations by report and outcome.",
		}, []string{"report", "outcome"}),
		Finalized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "staff_payroll_finalized_total",
			Help: "Payroll months finalized, manually or by the scheduler.",
		}),
	}
	reg.MustRegister(
		m.Scans, m.ScanDuration, m.Reports, m.Finalized,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) report(name string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Reports.WithLabelValues(name, outcome).Inc()
}
