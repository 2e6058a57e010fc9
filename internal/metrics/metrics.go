// Package metrics exposes prometheus instruments for chain runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptchain_step_duration_seconds",
		Help:    "Duration of executed chain steps by type and outcome",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"type", "outcome"})

	itemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptchain_items_processed_total",
		Help: "Queue items processed by outcome",
	}, []string{"outcome"})

	batchRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptchain_batch_runs_total",
		Help: "Batch runs by outcome",
	}, []string{"outcome"})

	lockAcquires = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptchain_lock_acquire_total",
		Help: "Run lock acquisition attempts by result",
	}, []string{"result"})

	batchRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "promptchain_batch_running",
		Help: "1 while a batch run is in progress",
	})
)

// Outcome labels.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
	OutcomeRefused   = "refused"
)

// ObserveStep records how long a step took.
func ObserveStep(stepType string, d time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	stepDuration.WithLabelValues(stepType, outcome).Observe(d.Seconds())
}

// ItemProcessed counts a finished queue item.
func ItemProcessed(outcome string) {
	itemsProcessed.WithLabelValues(outcome).Inc()
}

// BatchFinished counts a finished batch run.
func BatchFinished(outcome string) {
	batchRuns.WithLabelValues(outcome).Inc()
}

// LockAcquire counts a lock attempt. acquired false means another owner held it.
func LockAcquire(acquired bool) {
	if acquired {
		lockAcquires.WithLabelValues("acquired").Inc()
		return
	}
	lockAcquires.WithLabelValues(OutcomeRefused).Inc()
}

// SetRunning flips the running gauge.
func SetRunning(running bool) {
	if running {
		batchRunning.Set(1)
		return
	}
	batchRunning.Set(0)
}

// Handler serves the default registry in the prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
