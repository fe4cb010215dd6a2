package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Bus metrics
	BusQueueSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heavengate_bus_queue_size",
			Help: "Number of events currently queued on the bus",
		},
	)

	BusEventsPublishedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heavengate_bus_events_published_total",
			Help: "Total number of events published to the bus",
		},
	)

	BusEventsProcessedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heavengate_bus_events_processed_total",
			Help: "Total number of events dispatched by the bus worker",
		},
	)

	BusEventsDroppedTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heavengate_bus_events_dropped_total",
			Help: "Total number of events dropped due to queue overflow",
		},
	)

	BusHandlerErrorsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heavengate_bus_handler_errors_total",
			Help: "Total number of subscriber callbacks that panicked",
		},
	)

	// Registry / backend metrics
	BackendsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "heavengate_backends_total",
			Help: "Total number of registered backends by pool",
		},
		[]string{"pool"},
	)

	BackendsHealthyTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "heavengate_backends_healthy_total",
			Help: "Number of healthy backends by pool",
		},
		[]string{"pool"},
	)

	BackendCurrentClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "heavengate_backend_current_clients",
			Help: "Current number of clients assigned to a backend",
		},
		[]string{"server_id"},
	)

	// Routing metrics
	RoutedRequestsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "heavengate_routed_requests_total",
			Help: "Total number of requests routed by destination pool",
		},
		[]string{"pool"},
	)

	RoutingErrorsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heavengate_routing_errors_total",
			Help: "Total number of requests that failed backend selection",
		},
	)

	RoutingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "heavengate_routing_duration_seconds",
			Help:    "Time spent inside a selection strategy choosing a backend",
			Buckets: prometheus.DefBuckets,
		},
	)

	StrategyUsageTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "heavengate_strategy_usage_total",
			Help: "Number of times each selection strategy has been used",
		},
		[]string{"strategy"},
	)

	// Proxy / connection metrics
	ActiveClientsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heavengate_active_clients_total",
			Help: "Number of client connections currently tracked by the proxy",
		},
	)

	BackendSelectionFailuresTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "heavengate_backend_selection_failures_total",
			Help: "Total number of connections terminated due to backend selection failure",
		},
	)

	ClassificationLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "heavengate_classification_latency_seconds",
			Help:    "Time from REQUEST_FOR_CLASSIFICATION to REQUEST_CLASSIFIED for a connection",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	// Register bus metrics
	prometheus.MustRegister(BusQueueSize)
	prometheus.MustRegister(BusEventsPublishedTotal)
	prometheus.MustRegister(BusEventsProcessedTotal)
	prometheus.MustRegister(BusEventsDroppedTotal)
	prometheus.MustRegister(BusHandlerErrorsTotal)

	// Register registry/backend metrics
	prometheus.MustRegister(BackendsTotal)
	prometheus.MustRegister(BackendsHealthyTotal)
	prometheus.MustRegister(BackendCurrentClients)

	// Register routing metrics
	prometheus.MustRegister(RoutedRequestsTotal)
	prometheus.MustRegister(RoutingErrorsTotal)
	prometheus.MustRegister(RoutingDuration)
	prometheus.MustRegister(StrategyUsageTotal)

	// Register proxy metrics
	prometheus.MustRegister(ActiveClientsTotal)
	prometheus.MustRegister(BackendSelectionFailuresTotal)
	prometheus.MustRegister(ClassificationLatency)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
