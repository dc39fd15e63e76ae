package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wuwareport_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wuwareport_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "path"})
)

// Gatekeeping metrics
var (
	SubmissionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wuwareport_submissions_accepted_total",
		Help: "Total number of submissions accepted and persisted",
	})

	SubmissionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wuwareport_submissions_rejected_total",
		Help: "Total number of rejected submissions by cause",
	}, []string{"cause"})

	FilesRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wuwareport_files_rejected_total",
		Help: "Total number of uploaded files that failed validation",
	})

	RiskHeuristicsMatched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wuwareport_risk_heuristics_matched_total",
		Help: "Total number of content heuristic matches",
	})
)

// Session metrics
var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wuwareport_sessions_created_total",
		Help: "Total number of sessions created",
	})

	SessionsBlacklisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wuwareport_sessions_blacklisted_total",
		Help: "Total number of sessions blacklisted",
	})

	SessionsSwept = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wuwareport_sessions_swept_total",
		Help: "Total number of expired sessions removed by the sweeper",
	})

	SessionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wuwareport_sessions_live",
		Help: "Number of live sessions",
	})
)

// Store metrics (gauges updated periodically by the collector)
var (
	ReportsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "wuwareport_reports_total",
		Help: "Total number of reports currently loaded",
	})

	ReportsByStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "wuwareport_reports_by_status",
		Help: "Number of reports per status",
	}, []string{"status"})

	IntegrityFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wuwareport_integrity_failures_total",
		Help: "Total number of reports failing their integrity check on read",
	})

	PersistenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wuwareport_persistence_failures_total",
		Help: "Total number of failed durable writes",
	})

	AuditEntriesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wuwareport_audit_entries_written_total",
		Help: "Total number of audit entries appended",
	})
)
