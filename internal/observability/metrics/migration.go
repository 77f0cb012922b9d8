// Package metrics provides Prometheus metrics for migration runs
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "usagipass_migration"

// Run status values
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusAborted = "aborted"
)

// MigrationMetrics contains Prometheus metrics for migration runs
type MigrationMetrics struct {
	registry *prometheus.Registry

	unitsTotal       *prometheus.CounterVec
	filesTotal       *prometheus.CounterVec
	runsTotal        *prometheus.CounterVec
	runDuration      *prometheus.GaugeVec
	lastSuccessGauge *prometheus.GaugeVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewMigrationMetrics creates and registers migration metrics
func NewMigrationMetrics(registry *prometheus.Registry) (*MigrationMetrics, error) {
	m := &MigrationMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *MigrationMetrics) initMetrics() {
	m.unitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "units_total",
			Help:      "Number of migration units by outcome",
		},
		[]string{"command", "section", "outcome"}, // outcome: inserted, updated, existing, skipped, failed
	)

	m.filesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Number of image files handled by copy-img",
		},
		[]string{"result"}, // result: processed, copied, skipped_missing, skipped_existing
	)

	m.runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Number of command runs by status",
		},
		[]string{"command", "status"},
	)

	m.runDuration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last command run",
		},
		[]string{"command"},
	)

	m.lastSuccessGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that finished without failures",
		},
		[]string{"command"},
	)

	m.collectors = []prometheus.Collector{
		m.unitsTotal,
		m.filesTotal,
		m.runsTotal,
		m.runDuration,
		m.lastSuccessGauge,
	}
}

// Describe implements the Collector interface
func (m *MigrationMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *MigrationMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordUnits adds n units with the given outcome
func (m *MigrationMetrics) RecordUnits(command, section, outcome string, n int) {
	if n <= 0 {
		return
	}
	m.unitsTotal.WithLabelValues(command, section, outcome).Add(float64(n))
}

// RecordFiles adds n files with the given result
func (m *MigrationMetrics) RecordFiles(result string, n int) {
	if n <= 0 {
		return
	}
	m.filesTotal.WithLabelValues(result).Add(float64(n))
}

// RecordRun records the end of a command run. The last-success gauge only
// moves on StatusSuccess.
func (m *MigrationMetrics) RecordRun(command, status string, duration time.Duration, finished time.Time) {
	m.runsTotal.WithLabelValues(command, status).Inc()
	m.runDuration.WithLabelValues(command).Set(duration.Seconds())
	if status == StatusSuccess {
		m.lastSuccessGauge.WithLabelValues(command).Set(float64(finished.Unix()))
	}
}

// WriteTextfile writes every metric of the registry to path in the text
// exposition format, for pickup by the node exporter textfile collector.
func (m *MigrationMetrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
