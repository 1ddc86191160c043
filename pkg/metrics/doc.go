/*
Package metrics defines and registers ridgeline's Prometheus metrics:
worker registry size, workload and instance counts by status, event-bus
depth and submission outcomes, scheduling/reconciliation latency, the
controller's HTTP request metrics, and the node agent's image-pull and
instance start/stop durations. Metrics are registered at package init
and exposed for scraping via Handler().

Timer is a small helper for recording operation duration to a
histogram:

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDuration(metrics.InstanceStartDuration)
*/
package metrics
