package rpcwire

// Wire message shapes, matching spec.md §6 exactly. Field names carry
// JSON tags since the transport codec is encoding/json (see codec.go),
// not protobuf wire format.

// ScheduleKind mirrors the request enum on WorkloadMessage.
type ScheduleKind int32

const (
	ScheduleKindCreate  ScheduleKind = 0
	ScheduleKindDestroy ScheduleKind = 1
)

// InstanceAction mirrors the action enum on InstanceSchedulingMessage.
type InstanceAction int32

const (
	InstanceActionCreate  InstanceAction = 0
	InstanceActionDestroy InstanceAction = 1
)

// MetricStatus mirrors the status enum shared by InstanceMetricMessage
// and WorkerMetricMessage.
type MetricStatus int32

const (
	MetricStatusUnknown    MetricStatus = 0
	MetricStatusPending    MetricStatus = 1
	MetricStatusRunning    MetricStatus = 2
	MetricStatusFailed     MetricStatus = 3
	MetricStatusTerminated MetricStatus = 4
)

// WorkloadMessage is the controller-to-scheduler wire message.
type WorkloadMessage struct {
	WorkloadID string       `json:"workload_id"`
	Definition string       `json:"definition"` // JSON-encoded WorkloadDefinition
	Request    ScheduleKind `json:"request"`
}

// InstanceSchedulingMessage is the scheduler-to-worker wire message.
type InstanceSchedulingMessage struct {
	InstanceID string         `json:"instance_id"`
	Action     InstanceAction `json:"action"`
	Definition string         `json:"definition"` // JSON-encoded WorkloadDefinition, forwarded verbatim
}

// WorkerRegistrationMessage is the worker-to-scheduler registration message.
type WorkerRegistrationMessage struct {
	Hostname string `json:"hostname"`
}

// InstanceMetricMessage reports a single instance's observed status.
type InstanceMetricMessage struct {
	InstanceID string       `json:"instance_id"`
	Status     MetricStatus `json:"status"`
	Metrics    string       `json:"metrics"` // JSON-encoded metrics payload
}

// WorkerMetricMessage reports a worker node's own resource snapshot.
type WorkerMetricMessage struct {
	Status  MetricStatus `json:"status"`
	Metrics string       `json:"metrics"`
}

// WorkerStatusMessage is the worker-to-scheduler streaming payload.
// Exactly one of InstanceMetric or WorkerMetric is set.
type WorkerStatusMessage struct {
	Identifier     string                  `json:"identifier"`
	InstanceMetric *InstanceMetricMessage  `json:"instance_metric,omitempty"`
	WorkerMetric   *WorkerMetricMessage    `json:"worker_metric,omitempty"`
}

// Empty is the acknowledgment type for RPCs with no meaningful response
// body (ScheduleInstance, SendStatusUpdates).
type Empty struct{}

// SubscribeRequest is GetStatusUpdates' (empty) request message. It
// exists as a named type rather than Empty so the two unrelated "no
// input" RPCs don't share a wire type by coincidence.
type SubscribeRequest struct{}
