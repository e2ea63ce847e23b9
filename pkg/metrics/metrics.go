package metrics

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Record outcomes
const (
	OutcomeDecoded = "decoded"
	OutcomeRaw     = "raw"    // no schema for the table or build
	OutcomeFailed  = "failed" // schema found, payload did not decode
)

// Metrics holds the Prometheus metrics of decode runs
type Metrics struct {
	registry *prometheus.Registry

	runsTotal      *prometheus.CounterVec
	entriesTotal   *prometheus.CounterVec
	recordsTotal   *prometheus.CounterVec
	driftTotal     *prometheus.CounterVec
	digestsTotal   *prometheus.CounterVec
	decodeDuration *prometheus.HistogramVec
}

// NewMetrics creates the metrics and registers them with reg. A nil reg
// creates a private registry.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbcache_runs_total",
				Help: "Total number of decode runs",
			},
			[]string{"source", "status"},
		),

		entriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbcache_entries_total",
				Help: "Total number of framed entries by validity status",
			},
			[]string{"status"},
		),

		recordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbcache_records_total",
				Help: "Total number of records by table and decode outcome",
			},
			[]string{"table", "outcome"},
		),

		driftTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbcache_drift_total",
				Help: "Total number of drift checks by result",
			},
			[]string{"kind"},
		),

		digestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dbcache_digests_total",
				Help: "Total number of entries compared against the digest store",
			},
			[]string{"change"},
		),

		decodeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dbcache_decode_duration_seconds",
				Help:    "Decode run duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
	}
}

// Registry returns the registry the metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRun records a finished decode run
func (m *Metrics) RecordRun(source string, success bool, duration time.Duration) {
	status := statusSuccess
	if !success {
		status = statusError
	}
	m.runsTotal.WithLabelValues(source, status).Inc()
	m.decodeDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordEntry records a framed entry
func (m *Metrics) RecordEntry(status string) {
	m.entriesTotal.WithLabelValues(status).Inc()
}

// RecordRecord records a record's decode outcome
func (m *Metrics) RecordRecord(table, outcome string) {
	m.recordsTotal.WithLabelValues(table, outcome).Inc()
}

// RecordDrift records a drift check result
func (m *Metrics) RecordDrift(kind string) {
	m.driftTotal.WithLabelValues(kind).Inc()
}

// RecordDigest records a digest comparison
func (m *Metrics) RecordDigest(change string) {
	m.digestsTotal.WithLabelValues(change).Inc()
}

// WriteFile writes the gathered metrics in the text exposition format
func (m *Metrics) WriteFile(path string) error {
	families, err := m.registry.Gather()
	if err != nil {
		return errors.Wrap(err, "gathering metrics")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(f, mf); err != nil {
			f.Close()
			return errors.Wrapf(err, "writing %s", mf.GetName())
		}
	}
	return f.Close()
}
