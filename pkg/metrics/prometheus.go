package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cyclesTotal     *prometheus.CounterVec
	signalsTotal    *prometheus.CounterVec
	deliveriesTotal *prometheus.CounterVec
	droppedTotal    *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	queueDepth      *prometheus.GaugeVec
	breakerState    *prometheus.GaugeVec
	cycleDuration   *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cyclesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_compute_cycles_total",
				Help: "Total computation cycles by pair/timeframe and mode",
			},
			[]string{"pair", "timeframe", "mode"},
		),
		signalsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_signals_total",
				Help: "Total signals produced",
			},
			[]string{"pair", "timeframe"},
		),
		deliveriesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_deliveries_total",
				Help: "Delivery attempts by channel and result",
			},
			[]string{"channel", "result"},
		),
		droppedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_notifications_dropped_total",
				Help: "Notifications dropped after exhausting retries or on full queues",
			},
			[]string{"channel", "reason"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signalforge_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		queueDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalforge_queue_depth",
				Help: "Current dispatch queue depth per priority class",
			},
			[]string{"priority"},
		),
		breakerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "signalforge_breaker_state",
				Help: "Circuit breaker state per channel (0=closed 1=open 2=half-open)",
			},
			[]string{"channel"},
		),
		cycleDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signalforge_cycle_duration_seconds",
				Help:    "Duration of computation cycles in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"timeframe"},
		),
	}
}

// RecordCycle records a completed computation cycle.
func (r *Recorder) RecordCycle(pair, timeframe string, incremental bool, seconds float64) {
	mode := "full"
	if incremental {
		mode = "incremental"
	}
	r.cyclesTotal.WithLabelValues(pair, timeframe, mode).Inc()
	r.cycleDuration.WithLabelValues(timeframe).Observe(seconds)
}

// RecordSignal records a produced signal.
func (r *Recorder) RecordSignal(pair, timeframe string) {
	r.signalsTotal.WithLabelValues(pair, timeframe).Inc()
}

// RecordDelivery records a delivery attempt outcome.
func (r *Recorder) RecordDelivery(channel, result string) {
	r.deliveriesTotal.WithLabelValues(channel, result).Inc()
}

// RecordDropped records a notification drop.
func (r *Recorder) RecordDropped(channel, reason string) {
	r.droppedTotal.WithLabelValues(channel, reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordQueueDepth records the current depth of a priority queue.
func (r *Recorder) RecordQueueDepth(priority string, depth int) {
	r.queueDepth.WithLabelValues(priority).Set(float64(depth))
}

// RecordBreakerState records the breaker state for a channel.
func (r *Recorder) RecordBreakerState(channel string, state int) {
	r.breakerState.WithLabelValues(channel).Set(float64(state))
}
