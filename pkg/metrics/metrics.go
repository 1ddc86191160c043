package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Worker registry metrics
	WorkersTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridgeline_workers_total",
			Help: "Total number of registered workers by state",
		},
		[]string{"state"},
	)

	WorkloadsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridgeline_workloads_total",
			Help: "Total number of desired workloads by status",
		},
		[]string{"status"},
	)

	InstancesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ridgeline_instances_total",
			Help: "Total number of workload instances by status",
		},
		[]string{"status"},
	)

	// Event bus metrics
	EventBusDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ridgeline_event_bus_depth",
			Help: "Current number of events queued on the scheduler's event bus",
		},
	)

	EventsSubmittedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridgeline_events_submitted_total",
			Help: "Total number of events submitted to the event bus, by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// Scheduling / reconciliation metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridgeline_scheduling_latency_seconds",
			Help:    "Time taken to place an instance on a worker, from intake to dispatch",
			Buckets: prometheus.DefBuckets,
		},
	)

	InstancesScheduledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ridgeline_instances_scheduled_total",
			Help: "Total number of instances successfully scheduled to a worker",
		},
	)

	InstancesFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ridgeline_instances_failed_total",
			Help: "Total number of instances observed in a Failed state",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridgeline_reconciliation_duration_seconds",
			Help:    "Time taken by one reconciliation pass over every workload",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridgeline_reconciliation_cycles_total",
			Help: "Total number of events processed by the scheduler loop, by event kind",
		},
		[]string{"kind"},
	)

	// Controller HTTP metrics
	ControllerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridgeline_controller_requests_total",
			Help: "Total number of controller HTTP requests by method and status",
		},
		[]string{"method", "status"},
	)

	ControllerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ridgeline_controller_request_duration_seconds",
			Help:    "Controller HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Node agent metrics
	ImagePullDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridgeline_image_pull_duration_seconds",
			Help:    "Time taken to pull and unpack a container image",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	ImageCacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ridgeline_image_cache_hits_total",
			Help: "Total number of image pulls served from the local image cache, by outcome",
		},
		[]string{"outcome"},
	)

	InstanceStartDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridgeline_instance_start_duration_seconds",
			Help:    "Time taken to create and start an instance's containers",
			Buckets: prometheus.DefBuckets,
		},
	)

	InstanceStopDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ridgeline_instance_stop_duration_seconds",
			Help:    "Time taken to stop and remove an instance's containers",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(WorkersTotal)
	prometheus.MustRegister(WorkloadsTotal)
	prometheus.MustRegister(InstancesTotal)
	prometheus.MustRegister(EventBusDepth)
	prometheus.MustRegister(EventsSubmittedTotal)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(InstancesScheduledTotal)
	prometheus.MustRegister(InstancesFailedTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ControllerRequestsTotal)
	prometheus.MustRegister(ControllerRequestDuration)
	prometheus.MustRegister(ImagePullDuration)
	prometheus.MustRegister(ImageCacheHitsTotal)
	prometheus.MustRegister(InstanceStartDuration)
	prometheus.MustRegister(InstanceStopDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
