// File: internal/metrics/metrics.go
// Package metrics holds the Prometheus collectors for the wait engine, the retry primitive and
// the action executor. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "kwdriver"

// Metrics bundles every collector kwdriver exports.
type Metrics struct {
	WaitDuration  *prometheus.HistogramVec
	WaitPolls     prometheus.Histogram
	RetryAttempts *prometheus.CounterVec
	Actions       *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		WaitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "wait",
			Name:      "duration_seconds",
			Help:      "Time spent in polling waits, by result.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"result"}),
		WaitPolls: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "wait",
			Name:      "polls",
			Help:      "Number of predicate evaluations per wait.",
			Buckets:   prometheus.LinearBuckets(1, 5, 8),
		}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Retried action attempts, by result.",
		}, []string{"result"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "action",
			Name:      "total",
			Help:      "Executed actions, by failure channel and result.",
		}, []string{"channel", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.WaitDuration, m.WaitPolls, m.RetryAttempts, m.Actions)
	}
	return m
}

// ObserveWait records one finished wait.
func (m *Metrics) ObserveWait(result string, elapsed time.Duration, polls int) {
	if m == nil {
		return
	}
	m.WaitDuration.WithLabelValues(result).Observe(elapsed.Seconds())
	m.WaitPolls.Observe(float64(polls))
}

// ObserveAttempt records one retry attempt.
func (m *Metrics) ObserveAttempt(result string) {
	if m == nil {
		return
	}
	m.RetryAttempts.WithLabelValues(result).Inc()
}

// ObserveAction records one executed action.
func (m *Metrics) ObserveAction(channel, result string) {
	if m == nil {
		return
	}
	m.Actions.WithLabelValues(channel, result).Inc()
}
