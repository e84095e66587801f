package metrics

import (
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "testdeck"
)

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of errors",
	}, []string{
		"error",
	})

	suiteRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_runs_total",
		Help:      "Count of suite runs started",
	}, []string{
		"project_id",
		"suite_id",
	})

	executionsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "executions_created_total",
		Help:      "Count of execution records materialized",
	}, []string{
		"project_id",
	})

	suiteRunStatus = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_run_status_total",
		Help:      "Count of suite runs entering each terminal status",
	}, []string{
		"project_id",
		"status",
	})

	suiteRunPassRate = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_run_pass_rate",
		Help:      "Pass rate of the most recent recompute per suite",
	}, []string{
		"suite_id",
	})

	suiteRunDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "suite_run_duration_seconds",
		Help:      "Duration of completed suite runs",
	}, []string{
		"suite_id",
	})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "notifications_total",
		Help:      "Count of failure notifications delivered",
	}, []string{
		"project_id",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

func RecordError(error string) {
	errorsTotal.WithLabelValues(error).Inc()
}

// RecordErrorDetails concats the error message to the label
// and also tries to clean the label to be a valid Prometheus label
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	RecordError(label + "." + errToLabel(err))
}

func RecordSuiteRunStarted(projectID, suiteID string, executions int) {
	suiteRunsTotal.WithLabelValues(projectID, suiteID).Inc()
	executionsCreatedTotal.WithLabelValues(projectID).Add(float64(executions))
}

func RecordSuiteRunStatus(projectID, suiteID string, status string, passRate float64, duration time.Duration) {
	suiteRunStatus.WithLabelValues(projectID, status).Inc()
	suiteRunPassRate.WithLabelValues(suiteID).Set(passRate)
	if duration > 0 {
		suiteRunDuration.WithLabelValues(suiteID).Set(duration.Seconds())
	}
}

func RecordNotification(projectID string) {
	notificationsTotal.WithLabelValues(projectID).Inc()
}
