// Package metrics exposes Prometheus instrumentation for the daily-view
// pipeline and its HTTP surface. Init must run before any observation;
// helpers are nil-guarded so code paths exercised in tests without Init stay
// harmless.
package metrics

import (
	"database/sql"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "fluxboard_"

	ResultSuccess = "success"
	ResultError   = "error"
)

var (
	registerOnce sync.Once
	dbStatsOnce  sync.Once

	dailyViewTotal   *prometheus.CounterVec
	dailyViewLatency *prometheus.HistogramVec

	ingestTotal   *prometheus.CounterVec
	ingestLatency *prometheus.HistogramVec

	reportExportTotal   *prometheus.CounterVec
	reportExportLatency *prometheus.HistogramVec

	skippedPeriodsTotal *prometheus.CounterVec

	settingsMigrationsTotal prometheus.Counter
)

// Init registers all metrics. Connection-pool gauges are separate because
// the storage provider owns the pool; see RegisterDBStats.
func Init() {
	registerOnce.Do(func() {
		dailyViewTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "daily_view_total",
				Help: "Total daily view computations by result",
			},
			[]string{"result"},
		)
		dailyViewLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "daily_view_latency_seconds",
				Help:    "Daily view computation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		ingestTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_total",
				Help: "Total telemetry day ingests by result",
			},
			[]string{"result"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Telemetry day ingest latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		reportExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "report_export_total",
				Help: "Total daily report exports by format and result",
			},
			[]string{"format", "result"},
		)
		reportExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "report_export_latency_seconds",
				Help:    "Daily report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		skippedPeriodsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "skipped_periods_total",
				Help: "Total telemetry periods excluded from aggregation by pipeline stage",
			},
			[]string{"stage"},
		)

		settingsMigrationsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "settings_migrations_total",
				Help: "Total site settings migrated to the current version",
			},
		)

		prometheus.MustRegister(
			dailyViewTotal,
			dailyViewLatency,
			ingestTotal,
			ingestLatency,
			reportExportTotal,
			reportExportLatency,
			skippedPeriodsTotal,
			settingsMigrationsTotal,
		)
	})
}

// RegisterDBStats registers connection-pool gauges over db. Safe to call
// more than once; only the first pool is registered.
func RegisterDBStats(db *sql.DB) {
	if db == nil {
		return
	}
	dbStatsOnce.Do(func() {
		registerDBGauges(db)
	})
}

func registerDBGauges(db *sql.DB) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_open_connections",
			Help: "Open database connections",
		},
		func() float64 { return float64(db.Stats().OpenConnections) },
	))
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_in_use_connections",
			Help: "Database connections currently in use",
		},
		func() float64 { return float64(db.Stats().InUse) },
	))
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "db_idle_connections",
			Help: "Idle database connections",
		},
		func() float64 { return float64(db.Stats().Idle) },
	))
}

// ObserveDailyView records one daily view computation.
func ObserveDailyView(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if dailyViewTotal != nil {
		dailyViewTotal.WithLabelValues(result).Inc()
	}
	if dailyViewLatency != nil {
		dailyViewLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveIngest records one telemetry day write.
func ObserveIngest(result string, duration time.Duration) {
	if result == "" {
		result = ResultSuccess
	}
	if ingestTotal != nil {
		ingestTotal.WithLabelValues(result).Inc()
	}
	if ingestLatency != nil {
		ingestLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// ObserveReportExport records one report export.
func ObserveReportExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = ResultSuccess
	}
	if reportExportTotal != nil {
		reportExportTotal.WithLabelValues(format, result).Inc()
	}
	if reportExportLatency != nil {
		reportExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// AddSkippedPeriods counts periods a daily view had to exclude.
func AddSkippedPeriods(stage string, count int) {
	if count <= 0 {
		return
	}
	if stage == "" {
		stage = "unknown"
	}
	if skippedPeriodsTotal != nil {
		skippedPeriodsTotal.WithLabelValues(stage).Add(float64(count))
	}
}

// IncSettingsMigration counts a site settings document moved forward to the
// current version.
func IncSettingsMigration() {
	if settingsMigrationsTotal != nil {
		settingsMigrationsTotal.Inc()
	}
}
