package prometheus

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Counter metrics
var (
	// Login counters
	LoginCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coop_login_total",
			Help: "Total number of login attempts",
		},
	)

	// Workflow transitions by action and outcome
	WorkflowTransitionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coop_workflow_transitions_total",
			Help: "Total number of application workflow transitions",
		},
		[]string{"action", "outcome"}, // action: approve, reject, request_info, start_review
	)

	// Registration number collisions that forced an approval retry
	RegistrationRetryCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "coop_registration_number_retries_total",
			Help: "Total number of approval retries caused by a registration number collision",
		},
	)

	// Directory operation counter
	DirectoryOperationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coop_directory_operations_total",
			Help: "Total number of user and role directory operations",
		},
		[]string{"operation"}, // operation: create_user, update_user, deactivate_user, assign_role, remove_role
	)

	// Notification outcomes per channel
	NotificationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coop_notifications_total",
			Help: "Total number of notifications by channel and outcome",
		},
		[]string{"channel", "outcome"}, // channel: in_app, email, event; outcome: delivered, dropped
	)

	// Error counters
	ErrorCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coop_errors_total",
			Help: "Total number of errors by type",
		},
		[]string{"type"},
	)
)

// Histogram metrics
var (
	// Database operation duration
	DBOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coop_db_operation_duration_seconds",
			Help:    "Duration of database operations in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Gauge metrics
var (
	// Applications awaiting a decision per tenant
	PendingApplicationsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coop_pending_applications",
			Help: "Number of applications in an actionable status per tenant",
		},
		[]string{"tenant_id"},
	)

	// System info
	InfoGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "coop_info",
			Help: "Information about the cooperative registry service",
		},
		[]string{"version"},
	)
)

func init() {
	prometheus.MustRegister(LoginCounter)
	prometheus.MustRegister(WorkflowTransitionCounter)
	prometheus.MustRegister(RegistrationRetryCounter)
	prometheus.MustRegister(DirectoryOperationCounter)
	prometheus.MustRegister(NotificationCounter)
	prometheus.MustRegister(ErrorCounter)

	prometheus.MustRegister(DBOperationDuration)

	prometheus.MustRegister(PendingApplicationsGauge)
	prometheus.MustRegister(InfoGauge)

	InfoGauge.With(prometheus.Labels{"version": "1.0.0"}).Set(1)
}

// GetPrometheusHandler returns an HTTP handler for the Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation measures a database operation. Use as
// defer TrackDBOperation("query")(time.Now()).
func TrackDBOperation(operation string) func(time.Time) {
	return func(start time.Time) {
		DBOperationDuration.With(prometheus.Labels{
			"operation": operation,
		}).Observe(time.Since(start).Seconds())
	}
}

// RecordWorkflowTransition records the outcome of a workflow action
func RecordWorkflowTransition(action, outcome string) {
	WorkflowTransitionCounter.With(prometheus.Labels{"action": action, "outcome": outcome}).Inc()
}

// RecordRegistrationRetry records one approval retry
func RecordRegistrationRetry() {
	RegistrationRetryCounter.Inc()
}

// RecordDirectoryOperation records a directory operation
func RecordDirectoryOperation(operation string) {
	DirectoryOperationCounter.With(prometheus.Labels{"operation": operation}).Inc()
}

// RecordNotification records a notification outcome on one channel
func RecordNotification(channel, outcome string) {
	NotificationCounter.With(prometheus.Labels{"channel": channel, "outcome": outcome}).Inc()
}

// RecordError records an error by type
func RecordError(errorType string) {
	ErrorCounter.With(prometheus.Labels{"type": errorType}).Inc()
}

// UpdatePendingApplications sets the pending gauge of one tenant
func UpdatePendingApplications(tenantID uint, count int64) {
	PendingApplicationsGauge.With(prometheus.Labels{
		"tenant_id": strconv.FormatUint(uint64(tenantID), 10),
	}).Set(float64(count))
}

// ResetPendingApplications clears every tenant's pending gauge
func ResetPendingApplications() {
	PendingApplicationsGauge.Reset()
}
