/*
Package agent is ridgeline's node agent (spec.md §4.3). It holds the
scheduler's WorkerService Register stream open for its whole lifetime,
dispatching each InstanceScheduling push to pkg/runtime and reporting
the result back over SendStatusUpdates; a separate ticker reports a
whole-node WorkerMetric snapshot independent of any particular
instance's lifecycle.

Grounded on the teacher's pkg/worker/worker.go (container executor
loop, heartbeat loop) and pkg/worker/health_monitor.go (ticker-driven
periodic reporting), converted from the teacher's poll-then-list
container assignment model to the spec's push-stream delivery, and from
per-container health probes to whole-node resource snapshots.
*/
package agent
