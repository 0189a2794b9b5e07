// Package jobmetrics instruments asynq task handlers.
package jobmetrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
	outcomeSkipped = "skipped"
)

// Metrics holds the job collectors.
type Metrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
	alerts      *prometheus.CounterVec
}

var shared = sync.OnceValue(func() *Metrics {
	return register(prometheus.DefaultRegisterer)
})

// NewMetrics registers the collectors on registerer. A nil registerer
// returns the process-wide instance bound to the default registry.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		return shared()
	}
	return register(registerer)
}

// Run measures one execution of a task.
type Run struct {
	metrics *Metrics
	task    string
	started time.Time
}

// Track starts measuring task. Safe on a nil receiver.
func (m *Metrics) Track(task string) *Run {
	return &Run{metrics: m, task: task, started: time.Now()}
}

// End records the outcome and hands err back unchanged. Errors wrapping
// asynq.SkipRetry count as skipped, not failed.
func (r *Run) End(err error) error {
	if r == nil || r.metrics == nil || r.task == "" {
		return err
	}
	m := r.metrics
	outcome := outcomeSuccess
	switch {
	case errors.Is(err, asynq.SkipRetry):
		outcome = outcomeSkipped
	case err != nil:
		outcome = outcomeFailure
	default:
		m.lastSuccess.WithLabelValues(r.task).SetToCurrentTime()
	}
	m.runs.WithLabelValues(r.task, outcome).Inc()
	m.duration.WithLabelValues(r.task).Observe(time.Since(r.started).Seconds())
	return err
}

// AddRangeAlerts counts warnings raised by the capacity watch for one range.
func (m *Metrics) AddRangeAlerts(reason string, rangeID int64, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.alerts.WithLabelValues(reason, strconv.FormatInt(rangeID, 10)).Add(float64(count))
}

func register(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscalpos_job_runs_total",
			Help: "Task executions by task type and outcome (success, failure, skipped).",
		}, []string{"task", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fiscalpos_job_duration_seconds",
			Help:    "Task execution time.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"task"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fiscalpos_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run per task type.",
		}, []string{"task"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fiscalpos_fiscal_range_alerts_total",
			Help: "Fiscal range warnings raised by the capacity watch.",
		}, []string{"reason", "range"}),
	}
	registerer.MustRegister(m.runs, m.duration, m.lastSuccess, m.alerts)
	return m
}
