package observability

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/couchcryptid/occupancy-etl/internal/config"
)

const namespace = "occupancy_etl"

// Metrics holds the Prometheus counters and histograms of one batch run.
type Metrics struct {
	registry *prometheus.Registry

	FilesAdmitted prometheus.Counter
	FilesSkipped  *prometheus.CounterVec // labels: reason={before_cutoff,malformed}
	RowsDropped   *prometheus.CounterVec // labels: reason={missing_occupancy,out_of_range,duplicate}
	RowsPersisted prometheus.Gauge
	RowsMerged    prometheus.Counter
	MirrorErrors  prometheus.Counter
	AuditIssues   *prometheus.CounterVec // labels: category
	IssueReports  *prometheus.CounterVec // labels: outcome={submitted,dry_run,failed,skipped}
	ForecastRows  prometheus.Counter
	RunDuration   *prometheus.HistogramVec // labels: step
}

// NewMetrics creates all run metrics on a dedicated registry. Each command
// is a short-lived batch, so metrics are pushed rather than scraped.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := newMetrics(reg)
	reg.MustRegister(
		m.FilesAdmitted,
		m.FilesSkipped,
		m.RowsDropped,
		m.RowsPersisted,
		m.RowsMerged,
		m.MirrorErrors,
		m.AuditIssues,
		m.IssueReports,
		m.ForecastRows,
		m.RunDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics on an unshared registry without any
// registration, so tests can create as many as they need.
func NewMetricsForTesting() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(reg *prometheus.Registry) *Metrics {
	return &Metrics{
		registry: reg,
		FilesAdmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_files_admitted_total",
			Help:      "Raw snapshot files read at or after the incremental cutoff.",
		}),
		FilesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_files_skipped_total",
			Help:      "Raw snapshot files not ingested, by reason.",
		}, []string{"reason"}),
		RowsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "Observations removed before merge, by reason.",
		}, []string{"reason"}),
		RowsPersisted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_rows",
			Help:      "Rows in the persisted dataset after the run.",
		}),
		RowsMerged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_merged_total",
			Help:      "Validated new rows merged into the dataset.",
		}),
		MirrorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mirror_errors_total",
			Help:      "Failed writes to the time-series mirror.",
		}),
		AuditIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_issues_total",
			Help:      "Audit findings by category.",
		}, []string{"category"}),
		IssueReports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issue_reports_total",
			Help:      "Issue report submissions by outcome.",
		}, []string{"outcome"}),
		ForecastRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forecast_rows_total",
			Help:      "Forecast rows written.",
		}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a command run by step.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"step"}),
	}
}

// Push sends the registered metrics to a Prometheus Pushgateway under job.
func (m *Metrics) Push(ctx context.Context, url, job string) error {
	if err := push.New(url, job).Gatherer(m.registry).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

// PushIfEnabled pushes the run metrics when a Pushgateway is configured. A
// failed push is logged and never fails the run.
func (m *Metrics) PushIfEnabled(cfg *config.Config, logger *slog.Logger) {
	if !cfg.PushEnabled() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cfg.PushTimeout)
	defer cancel()
	if err := m.Push(ctx, cfg.PushgatewayURL, cfg.PushJob); err != nil {
		logger.Warn("metrics push failed", "error", err, "url", cfg.PushgatewayURL)
	}
}
