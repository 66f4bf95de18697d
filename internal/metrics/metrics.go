// Package metrics holds the sync engine's prometheus collectors.
//
// All methods are safe on a nil *Metrics so components can run without
// instrumentation in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

const namespace = "supplier_sync"

// Metric names as exposed on /metrics.
const (
	MetricPagesFetched  = namespace + "_pages_fetched_total"
	MetricRetries       = namespace + "_rate_limit_retries_total"
	MetricRowsWritten   = namespace + "_rows_written_total"
	MetricAccountRuns   = namespace + "_account_runs_total"
	MetricPassDuration  = namespace + "_pass_duration_seconds"
	MetricSkippedTicks  = namespace + "_skipped_ticks_total"
	MetricSkippedRecord = namespace + "_skipped_records_total"
)

type Metrics struct {
	registry *prometheus.Registry

	pagesFetched   *prometheus.CounterVec
	retries        *prometheus.CounterVec
	rowsWritten    *prometheus.CounterVec
	accountRuns    *prometheus.CounterVec
	passDuration   *prometheus.HistogramVec
	skippedTicks   prometheus.Counter
	skippedRecords *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pagesFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pages_fetched_total",
			Help:      "Portal pages fetched, by family.",
		}, []string{"family"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_retries_total",
			Help:      "Calls retried after HTTP 429, by family.",
		}, []string{"family"}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows affected by upserts, by pass and table.",
		}, []string{"pass", "table"}),
		accountRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_runs_total",
			Help:      "Account sync runs, by final state.",
		}, []string{"state"}),
		passDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pass_duration_seconds",
			Help:      "Duration of one fetch pass for one account.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"pass"}),
		skippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_ticks_total",
			Help:      "Scheduler ticks skipped because a run was still in progress.",
		}),
		skippedRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_records_total",
			Help:      "Portal items dropped by the normalizer, by family.",
		}, []string{"family"}),
	}
	m.registry.MustRegister(
		m.pagesFetched, m.retries, m.rowsWritten, m.accountRuns,
		m.passDuration, m.skippedTicks, m.skippedRecords,
	)
	return m
}

func (m *Metrics) PageFetched(family string) {
	if m == nil {
		return
	}
	m.pagesFetched.WithLabelValues(family).Inc()
}

func (m *Metrics) Retried(family string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(family).Inc()
}

func (m *Metrics) RowsWritten(pass, table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsWritten.WithLabelValues(pass, table).Add(float64(n))
}

func (m *Metrics) AccountRun(state string) {
	if m == nil {
		return
	}
	m.accountRuns.WithLabelValues(state).Inc()
}

func (m *Metrics) ObservePass(pass string, d time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.WithLabelValues(pass).Observe(d.Seconds())
}

func (m *Metrics) TickSkipped() {
	if m == nil {
		return
	}
	m.skippedTicks.Inc()
}

func (m *Metrics) RecordsSkipped(family string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.skippedRecords.WithLabelValues(family).Add(float64(n))
}

// Handler serves the private registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gather collects all metrics from the registry (for testing).
func (m *Metrics) Gather() ([]*dto.MetricFamily, error) {
	return m.registry.Gather()
}

// Value returns the counter value, or histogram sample count, of the series
// matching labels. Missing series read as 0.
func (m *Metrics) Value(name string, labels map[string]string) float64 {
	families, err := m.Gather()
	if err != nil {
		return 0
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, s := range f.GetMetric() {
			if !matches(s, labels) {
				continue
			}
			if h := s.GetHistogram(); h != nil {
				return float64(h.GetSampleCount())
			}
			return s.GetCounter().GetValue()
		}
	}
	return 0
}

func matches(s *dto.Metric, labels map[string]string) bool {
	if len(s.GetLabel()) != len(labels) {
		return false
	}
	for _, lp := range s.GetLabel() {
		if labels[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}
