package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs          *prometheus.CounterVec
	failures      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	auditFailures *prometheus.CounterVec
	archived      prometheus.Counter
	steps         prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddAuditFailure counts a ledger audit that found the entity unbalanced or
// the simulation halted.
func (m *Metrics) AddAuditFailure(entity string) {
	if m == nil {
		return
	}
	m.auditFailures.WithLabelValues(entity).Inc()
}

// AddArchived counts transaction records written to the archive.
func (m *Metrics) AddArchived(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.archived.Add(float64(count))
}

// AddSteps counts simulation steps advanced by scheduled jobs.
func (m *Metrics) AddSteps(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.steps.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgersim_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgersim_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledgersim_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	auditFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledgersim_audit_failures_total",
		Help: "Ledger audits that failed, by general ledger entity.",
	}, []string{"entity"})
	archived := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledgersim_archived_records_total",
		Help: "Ledger transaction records copied to the archive.",
	})
	steps := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ledgersim_scheduled_steps_total",
		Help: "Simulation steps advanced by the step job.",
	})
	registerer.MustRegister(runs, failures, duration, auditFailures, archived, steps)
	return &Metrics{
		runs:          runs,
		failures:      failures,
		duration:      duration,
		auditFailures: auditFailures,
		archived:      archived,
		steps:         steps,
	}
}
