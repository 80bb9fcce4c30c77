// Package jobmetrics instruments background job runs.
package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the job collectors.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	documents *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers on reg. A nil reg shares one set registered on the
// default registerer, so repeated calls do not panic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg != nil {
		return register(reg)
	}
	defaultOnce.Do(func() {
		defaultMetrics = register(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func register(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_jobs_total",
			Help: "Job executions by job and status.",
		}, []string{"job", "status"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_jobs_failures_total",
			Help: "Failed job executions.",
		}, []string{"job"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "billing_job_duration_seconds",
			Help:    "Job execution time.",
			Buckets: []float64{.05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		documents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "billing_job_documents_total",
			Help: "Documents changed by jobs.",
		}, []string{"job", "document"}),
	}
}

// Run is one tracked execution.
type Run struct {
	m     *Metrics
	job   string
	start time.Time
}

// Track starts timing job. Safe on a nil receiver.
func (m *Metrics) Track(job string) *Run {
	return &Run{m: m, job: job, start: time.Now()}
}

// Documents counts n documents of the given type changed by this run.
func (r *Run) Documents(document string, n int) {
	if r == nil || r.m == nil || n <= 0 {
		return
	}
	r.m.documents.WithLabelValues(r.job, document).Add(float64(n))
}

// End records the outcome and returns err unchanged.
func (r *Run) End(err error) error {
	if r == nil || r.m == nil || r.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		r.m.failures.WithLabelValues(r.job).Inc()
	}
	r.m.runs.WithLabelValues(r.job, status).Inc()
	r.m.duration.WithLabelValues(r.job).Observe(time.Since(r.start).Seconds())
	return err
}
