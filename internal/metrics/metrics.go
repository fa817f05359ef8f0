package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for per-SLO evaluations.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
)

var (
	evaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "burnwatch",
			Name:      "evaluations_total",
			Help:      "Per-SLO evaluations, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	evaluationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "burnwatch",
			Name:      "evaluation_seconds",
			Help:      "Latency of a single SLO evaluation in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
		},
	)

	tickSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "burnwatch",
			Name:      "tick_seconds",
			Help:      "Wall-clock duration of a full scheduler tick in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
	)

	activeSLOs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "burnwatch",
			Name:      "active_slos",
			Help:      "Number of active SLO definitions seen in the last tick.",
		},
	)

	ticksSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "burnwatch",
			Name:      "ticks_skipped_total",
			Help:      "Ticks skipped because the previous tick was still running.",
		},
	)

	dispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "burnwatch",
			Name:      "dispatches_total",
			Help:      "Alert lifecycle notifications dispatched, partitioned by transition.",
		},
		[]string{"transition"},
	)
)

// Register attaches burnwatch collectors to the supplied Prometheus registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		evaluationsTotal,
		evaluationSeconds,
		tickSeconds,
		activeSLOs,
		ticksSkippedTotal,
		dispatchesTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveEvaluation records one per-SLO evaluation.
func ObserveEvaluation(duration time.Duration, outcome string) {
	evaluationsTotal.WithLabelValues(outcome).Inc()
	if outcome != OutcomeSkipped {
		evaluationSeconds.Observe(duration.Seconds())
	}
}

// ObserveTick records the duration of a full scheduler tick.
func ObserveTick(duration time.Duration) {
	tickSeconds.Observe(duration.Seconds())
}

// SetActiveSLOs records the active definition count for the current tick.
func SetActiveSLOs(n int) {
	activeSLOs.Set(float64(n))
}

// IncTickSkipped records a tick skipped due to overrun.
func IncTickSkipped() {
	ticksSkippedTotal.Inc()
}

// IncDispatch records a dispatched lifecycle notification.
func IncDispatch(transition string) {
	dispatchesTotal.WithLabelValues(transition).Inc()
}
