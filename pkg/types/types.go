// Package types defines the wire schema shared by the controller,
// scheduler, and node agent, and the scheduler's internal domain types.
package types

import "time"

// ScheduleKind distinguishes a desired-state increase from a decrease.
type ScheduleKind int

const (
	ScheduleCreate ScheduleKind = iota
	ScheduleDestroy
)

func (k ScheduleKind) String() string {
	if k == ScheduleDestroy {
		return "Destroy"
	}
	return "Create"
}

// InstanceAction tells a worker what to do with an instance.
type InstanceAction int

const (
	ActionCreate InstanceAction = iota
	ActionDestroy
)

func (a InstanceAction) String() string {
	if a == ActionDestroy {
		return "Destroy"
	}
	return "Create"
}

// InstanceStatus is the lifecycle state of a WorkloadInstance.
type InstanceStatus string

const (
	StatusUnknown    InstanceStatus = "Unknown"
	StatusPending    InstanceStatus = "Pending"
	StatusRunning    InstanceStatus = "Running"
	StatusFailed     InstanceStatus = "Failed"
	StatusTerminated InstanceStatus = "Terminated"
	StatusDestroying InstanceStatus = "Destroying"
)

// WorkloadDesiredStatus is the lifecycle state of a desired Workload.
type WorkloadDesiredStatus string

const (
	WorkloadPending    WorkloadDesiredStatus = "Pending"
	WorkloadDestroying WorkloadDesiredStatus = "Destroying"
)

// WorkerState reflects whether a worker's outbound channel is open (I4).
type WorkerState string

const (
	WorkerReady    WorkerState = "Ready"
	WorkerNotReady WorkerState = "NotReady"
)

// EnvVar is a single container environment variable.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PortSpec describes one container port.
type PortSpec struct {
	Port       uint16 `json:"port"`
	TargetPort uint16 `json:"target_port"`
	Protocol   string `json:"protocol,omitempty"`
	Type       string `json:"type,omitempty"`
}

// ContainerSpec is one container within a workload definition.
type ContainerSpec struct {
	Name  string     `json:"name"`
	Image string     `json:"image"`
	Env   []EnvVar   `json:"env,omitempty"`
	Ports []PortSpec `json:"ports,omitempty"`
}

// WorkloadSpec holds the list of containers that make up a workload.
type WorkloadSpec struct {
	Containers []ContainerSpec `json:"containers"`
}

// WorkloadDefinition is the opaque document a controller submits and a
// worker eventually receives unmodified (spec.md §6).
type WorkloadDefinition struct {
	APIVersion string       `json:"api_version"`
	Kind       string       `json:"kind"`
	Name       string       `json:"name"`
	Replicas   uint16       `json:"replicas,omitempty"`
	Spec       WorkloadSpec `json:"spec"`
}

// ScheduleRequest is the controller-to-scheduler wire message (spec.md §6, "Workload").
type ScheduleRequest struct {
	WorkloadID string
	// RawDefinition is the exact JSON (or YAML, translated to this
	// canonical JSON form by the controller's HTTP layer before it
	// reaches the scheduler) bytes the controller received. The
	// scheduler forwards RawDefinition to workers unmodified so that
	// round-tripping through the scheduler is byte-identical, per
	// spec.md §8.
	RawDefinition []byte
	Definition    WorkloadDefinition
	Kind          ScheduleKind
	// Replicas is the replica delta this request declares: for Create
	// it is the number of replicas to add (scale-up), for Destroy the
	// number to remove (scale-down) unless it meets or exceeds the
	// workload's current replica count, which fully destroys it.
	Replicas uint16
}

// InstanceScheduling is the scheduler-to-worker wire message.
type InstanceScheduling struct {
	InstanceID string
	Action     InstanceAction
	Definition []byte // raw JSON, forwarded verbatim
}

// WorkerRegistration is the worker-to-scheduler registration message.
type WorkerRegistration struct {
	Hostname string
}

// InstanceMetric reports a single instance's observed status.
type InstanceMetric struct {
	InstanceID string
	Status     InstanceStatus
	Metrics    []byte // raw JSON node/container metrics payload
}

// WorkerMetric reports a worker node's own resource snapshot.
type WorkerMetric struct {
	Status  InstanceStatus // worker-level analogue of instance status; Running/Failed/Unknown
	Metrics []byte         // raw JSON NodeMetrics payload, see NodeMetrics below
}

// WorkerStatus is the worker-to-scheduler streaming payload. Exactly one
// of InstanceMetric or WorkerMetric is set, matching spec.md §6's oneof.
type WorkerStatus struct {
	Identifier     string // worker hostname
	InstanceMetric *InstanceMetric
	WorkerMetric   *WorkerMetric
}

// NodeMetrics is a point-in-time resource snapshot of a worker node.
type NodeMetrics struct {
	CPUCores       int       `json:"cpu_cores"`
	CPUUsedPercent float64   `json:"cpu_used_percent"`
	MemoryBytes    int64     `json:"memory_bytes"`
	MemoryUsed     int64     `json:"memory_used_bytes"`
	DiskBytes      int64     `json:"disk_bytes"`
	DiskUsed       int64     `json:"disk_used_bytes"`
	CollectedAt    time.Time `json:"collected_at"`
}

// WorkloadInstance is one observed replica of a Workload (spec.md §3).
type WorkloadInstance struct {
	InstanceID string
	WorkloadID string
	Status     InstanceStatus
	WorkerID   string // worker hostname, empty until scheduled
	// Definition is an immutable snapshot of the workload's definition
	// taken at scheduling time, so a later edit to the workload cannot
	// retroactively mutate an already-running instance.
	Definition []byte
	CreatedAt  time.Time
}

// Workload is a desired, versioned workload record (spec.md §3).
type Workload struct {
	WorkloadID string
	Kind       string
	Name       string
	Namespace  string
	Replicas   uint16
	Definition []byte // raw JSON definition as last accepted
	Status     WorkloadDesiredStatus
	Instances  map[string]*WorkloadInstance // keyed by InstanceID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// InstanceCount returns len(Instances), guarding against a nil map.
func (w *Workload) InstanceCount() int {
	return len(w.Instances)
}
