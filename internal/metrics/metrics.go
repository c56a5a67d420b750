package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for formsync
type Metrics struct {
	// Reconciliation counters
	SubmissionsTotal      *prometheus.CounterVec
	RunsAbortedTotal      *prometheus.CounterVec
	RecipientsSyncedTotal *prometheus.CounterVec
	WelcomeMailsTotal     prometheus.Counter

	// Mailer API counters
	RemoteCallsTotal  *prometheus.CounterVec
	RemoteErrorsTotal *prometheus.CounterVec

	// HTTP API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	// Cache counters
	SnapshotHitsTotal   prometheus.Counter
	SnapshotMissesTotal prometheus.Counter

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		SubmissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formsync_submissions_total",
				Help: "Total number of form submissions received",
			},
			[]string{"form"},
		),
		RunsAbortedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formsync_runs_aborted_total",
				Help: "Total number of reconciliation runs aborted before any remote mutation",
			},
			[]string{"reason"},
		),
		RecipientsSyncedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formsync_recipients_synced_total",
				Help: "Total number of recipients created or updated on the mailer",
			},
			[]string{"form"},
		),
		WelcomeMailsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "formsync_welcome_mails_total",
				Help: "Total number of welcome mail dispatches triggered",
			},
		),
		RemoteCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formsync_remote_calls_total",
				Help: "Total number of mailer API calls issued",
			},
			[]string{"method"},
		),
		RemoteErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formsync_remote_errors_total",
				Help: "Total number of failed mailer API calls",
			},
			[]string{"method"},
		),
		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formsync_api_requests_total",
				Help: "Total number of HTTP API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formsync_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		SnapshotHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "formsync_snapshot_hits_total",
				Help: "Total number of site snapshot cache hits",
			},
		),
		SnapshotMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "formsync_snapshot_misses_total",
				Help: "Total number of site snapshot cache misses",
			},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.SubmissionsTotal,
		m.RunsAbortedTotal,
		m.RecipientsSyncedTotal,
		m.WelcomeMailsTotal,
		m.RemoteCallsTotal,
		m.RemoteErrorsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.SnapshotHitsTotal,
		m.SnapshotMissesTotal,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncSubmissions increments the submission counter
func IncSubmissions(formID string) {
	if m := Global(); m != nil {
		m.SubmissionsTotal.WithLabelValues(formID).Inc()
	}
}

// IncRunsAborted increments the aborted run counter
func IncRunsAborted(reason string) {
	if m := Global(); m != nil {
		m.RunsAbortedTotal.WithLabelValues(reason).Inc()
	}
}

// IncRecipientsSynced increments the synced recipient counter
func IncRecipientsSynced(formID string) {
	if m := Global(); m != nil {
		m.RecipientsSyncedTotal.WithLabelValues(formID).Inc()
	}
}

// IncWelcomeMails increments the welcome mail counter
func IncWelcomeMails() {
	if m := Global(); m != nil {
		m.WelcomeMailsTotal.Inc()
	}
}

// IncRemoteCall counts one mailer API call, and its failure if err is set
func IncRemoteCall(method string, failed bool) {
	m := Global()
	if m == nil {
		return
	}
	m.RemoteCallsTotal.WithLabelValues(method).Inc()
	if failed {
		m.RemoteErrorsTotal.WithLabelValues(method).Inc()
	}
}

// IncSnapshotHit increments the snapshot cache hit counter
func IncSnapshotHit() {
	if m := Global(); m != nil {
		m.SnapshotHitsTotal.Inc()
	}
}

// IncSnapshotMiss increments the snapshot cache miss counter
func IncSnapshotMiss() {
	if m := Global(); m != nil {
		m.SnapshotMissesTotal.Inc()
	}
}

// ObserveAPIRequest records one HTTP API request
func ObserveAPIRequest(method, path, status string, seconds float64) {
	m := Global()
	if m == nil {
		return
	}
	m.APIRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.APIRequestDurationSeconds.WithLabelValues(method, path).Observe(seconds)
}
