package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs         *prometheus.CounterVec
	failures     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	invoices     *prometheus.CounterVec
	instructions *prometheus.CounterVec
	skipped      *prometheus.CounterVec
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

// AddInvoices counts classified invoices per company, outcome and reason code.
// Valid invoices carry an empty code.
func (m *Metrics) AddInvoices(company, outcome, code string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.invoices.WithLabelValues(company, outcome, code).Add(float64(count))
}

// AddInstructions counts constructed payment instructions by status.
func (m *Metrics) AddInstructions(company, status string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.instructions.WithLabelValues(company, status).Add(float64(count))
}

// Skip records a company run skipped for the given reason.
func (m *Metrics) Skip(company, reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(company, reason).Inc()
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payproc_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payproc_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payproc_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	invoices := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payproc_invoices_classified_total",
		Help: "Invoices classified by payment runs grouped by outcome and reason code.",
	}, []string{"company", "outcome", "reason_code"})
	instructions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payproc_payment_instructions_total",
		Help: "Payment instructions created by payment runs grouped by status.",
	}, []string{"company", "status"})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payproc_runs_skipped_total",
		Help: "Company payment runs skipped before classification.",
	}, []string{"company", "reason"})
	registerer.MustRegister(runs, failures, duration, invoices, instructions, skipped)
	return &Metrics{
		runs:         runs,
		failures:     failures,
		duration:     duration,
		invoices:     invoices,
		instructions: instructions,
		skipped:      skipped,
	}
}
