package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "caretaker"

	metricLabelBackend = "backend"
	metricLabelOutcome = "outcome"
	metricLabelStatus  = "status"
	metricLabelHandler = "handler"
	metricLabelKey     = "key"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Metrics is the structure that holds all prometheus metrics
var (
	// StoreCounter counts store calls per backend and outcome
	StoreCounter = newCounterVec(
		"store_count",
		"Number of store calls per backend and outcome",
		metricLabelBackend, metricLabelKey, metricLabelOutcome,
	)
	// StoreDuration observes the duration of store calls
	StoreDuration = newSummaryVec(
		"store_duration_seconds",
		"Duration in seconds of store calls including the identity check",
		metricLabelBackend, metricLabelOutcome,
	)
	// FetchCounter counts version downloads
	FetchCounter = newCounterVec(
		"fetch_count",
		"Number of version downloads per backend",
		metricLabelBackend, metricLabelStatus,
	)
	// ListCounter counts version listings
	ListCounter = newCounterVec(
		"list_count",
		"Number of version listings per backend",
		metricLabelBackend, metricLabelStatus,
	)
	// RunBackupCounter counts complete backup runs
	RunBackupCounter = newCounterVec(
		"run_backup_count",
		"Number of backup runs",
		metricLabelStatus,
	)
	// RunBackupDuration observes the duration of backup runs
	RunBackupDuration = newSummaryVec(
		"run_backup_duration_seconds",
		"Duration in seconds of backup runs",
		metricLabelStatus,
	)
	// ServiceRequestCounter count the number of requests for each handler
	ServiceRequestCounter = newCounterVec(
		"service_request_count",
		"Count of requests for each handler",
		metricLabelHandler, metricLabelStatus,
	)
)

// Status maps an error to a status label value.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

func newSummaryVec(name, help string, labels ...string) *prometheus.SummaryVec {
	vec := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}

func newCounterVec(name, help string, labels ...string) *prometheus.CounterVec {
	vec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	prometheus.MustRegister(vec)
	return vec
}
