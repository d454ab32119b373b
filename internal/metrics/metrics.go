// Package metrics provides Prometheus metrics for monitoring the report scheduler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeRan     = "ran"
	OutcomeSkipped = "skipped"
	OutcomeError   = "error"
)

const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
)

const (
	EmailSent       = "sent"
	EmailFailed     = "failed"
	EmailPreview    = "preview"
	EmailSuppressed = "suppressed"
	EmailConsole    = "console"
)

var (
	ReportRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportd_report_runs_total",
			Help: "Total number of report executions by outcome",
		},
		[]string{"report", "outcome"},
	)
	ReportRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportd_report_run_duration_seconds",
			Help:    "Report data retrieval duration in seconds",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"report"},
	)
	ReportRows = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reportd_report_rows",
			Help: "Number of rows returned by the last run of a report",
		},
		[]string{"report"},
	)
	ReportsRegistered = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "reportd_reports_registered",
			Help: "Number of reports currently scheduled",
		},
	)
	ConfigReloads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportd_config_reloads_total",
			Help: "Total number of report definition loads by result",
		},
		[]string{"result"},
	)
	StatePersists = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportd_state_persist_total",
			Help: "Total number of runtime state saves by result",
		},
		[]string{"result"},
	)
	Emails = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportd_emails_total",
			Help: "Total number of report deliveries by result",
		},
		[]string{"result"},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportd_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordReportRun counts a run that fetched data. Failed retrievals are
// counted with OutcomeError.
func RecordReportRun(report string, failed bool, duration time.Duration, rows int) {
	outcome := OutcomeRan
	if failed {
		outcome = OutcomeError
	}
	ReportRuns.WithLabelValues(report, outcome).Inc()
	ReportRunDuration.WithLabelValues(report).Observe(duration.Seconds())
	ReportRows.WithLabelValues(report).Set(float64(rows))
}

func RecordReportSkipped(report string) {
	ReportRuns.WithLabelValues(report, OutcomeSkipped).Inc()
}

// ForgetReport drops the per-report series of a report that is no longer defined.
func ForgetReport(report string) {
	for _, outcome := range []string{OutcomeRan, OutcomeSkipped, OutcomeError} {
		ReportRuns.DeleteLabelValues(report, outcome)
	}
	ReportRunDuration.DeleteLabelValues(report)
	ReportRows.DeleteLabelValues(report)
}

func UpdateReportsRegistered(count int) {
	ReportsRegistered.Set(float64(count))
}

func RecordConfigReload(ok bool) {
	ConfigReloads.WithLabelValues(result(ok)).Inc()
}

func RecordStatePersist(ok bool) {
	StatePersists.WithLabelValues(result(ok)).Inc()
}

func RecordEmail(outcome string) {
	Emails.WithLabelValues(outcome).Inc()
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func result(ok bool) string {
	if ok {
		return ResultSuccess
	}
	return ResultFailed
}
