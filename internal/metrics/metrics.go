// Package metrics holds the service's Prometheus collectors.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ehs_handlers"

type metrics struct {
	resolutionsTotal   *prometheus.CounterVec
	strategyTotal      *prometheus.CounterVec
	manualTotal        *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec

	resolutionLatency *prometheus.HistogramVec
}

var metricsSingleton = sync.OnceValue(func() *metrics {
	return &metrics{
		resolutionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolutions_total",
			Help:      "Total number of step resolutions.",
		}, []string{"operation", "mode", "result"}),
		strategyTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_resolutions_total",
			Help:      "Total number of strategy entries resolved, by strategy and outcome.",
		}, []string{"strategy", "result"}),
		manualTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "manual_assignment_total",
			Help:      "Total number of steps flagged for manual assignment.",
		}, []string{"record_type"}),
		notificationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_published_total",
			Help:      "Total number of notification publish attempts.",
		}, []string{"event", "result"}),
		resolutionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resolution_latency_seconds",
			Help:      "Latency of step resolution including snapshot loading.",
			Buckets: []float64{
				0.001, 0.002, 0.005,
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5,
			},
		}, []string{"operation"}),
	}
})

func get() *metrics {
	return metricsSingleton()
}

// Result labels.
const (
	ResultSuccess = "success"
	ResultEmpty   = "empty"
	ResultError   = "error"
)

// ObserveResolution records one step resolution.
func ObserveResolution(operation, mode, result string, took time.Duration) {
	m := get()
	m.resolutionsTotal.WithLabelValues(operation, mode, result).Inc()
	m.resolutionLatency.WithLabelValues(operation).Observe(took.Seconds())
}

// ObserveStrategy records one strategy entry outcome.
func ObserveStrategy(strategy, result string) {
	get().strategyTotal.WithLabelValues(strategy, result).Inc()
}

// ManualAssignment records a step that needs manual assignment.
func ManualAssignment(recordType string) {
	get().manualTotal.WithLabelValues(recordType).Inc()
}

// NotificationPublished records a publish attempt.
func NotificationPublished(event string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultError
	}
	get().notificationsTotal.WithLabelValues(event, result).Inc()
}
