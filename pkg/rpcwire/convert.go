package rpcwire

import (
	"encoding/json"
	"fmt"

	"github.com/cuemby/ridgeline/pkg/types"
)

// ToScheduleRequest parses a WorkloadMessage's embedded JSON definition
// and produces the internal ScheduleRequest the state manager consumes.
// A parse failure is the caller's cue to return an invalid-argument
// gRPC status (spec.md §4.4 "ScheduleInstance").
func ToScheduleRequest(msg *WorkloadMessage) (types.ScheduleRequest, error) {
	var def types.WorkloadDefinition
	if err := json.Unmarshal([]byte(msg.Definition), &def); err != nil {
		return types.ScheduleRequest{}, fmt.Errorf("rpcwire: invalid workload definition: %w", err)
	}

	kind := types.ScheduleCreate
	if msg.Request == ScheduleKindDestroy {
		kind = types.ScheduleDestroy
	}

	replicas := def.Replicas
	if replicas == 0 {
		replicas = 1
	}

	return types.ScheduleRequest{
		WorkloadID:    msg.WorkloadID,
		RawDefinition: []byte(msg.Definition),
		Definition:    def,
		Kind:          kind,
		Replicas:      replicas,
	}, nil
}

// FromInstanceScheduling converts an internal InstanceScheduling
// command into its wire form for delivery on a worker's Register stream.
func FromInstanceScheduling(in types.InstanceScheduling) *InstanceSchedulingMessage {
	action := InstanceActionCreate
	if in.Action == types.ActionDestroy {
		action = InstanceActionDestroy
	}
	return &InstanceSchedulingMessage{
		InstanceID: in.InstanceID,
		Action:     action,
		Definition: string(in.Definition),
	}
}

// ToWorkerRegistration converts a wire registration message.
func ToWorkerRegistration(msg *WorkerRegistrationMessage) types.WorkerRegistration {
	return types.WorkerRegistration{Hostname: msg.Hostname}
}

func metricStatusToWire(s types.InstanceStatus) MetricStatus {
	switch s {
	case types.StatusPending:
		return MetricStatusPending
	case types.StatusRunning:
		return MetricStatusRunning
	case types.StatusFailed:
		return MetricStatusFailed
	case types.StatusTerminated:
		return MetricStatusTerminated
	default:
		return MetricStatusUnknown
	}
}

func metricStatusFromWire(s MetricStatus) types.InstanceStatus {
	switch s {
	case MetricStatusPending:
		return types.StatusPending
	case MetricStatusRunning:
		return types.StatusRunning
	case MetricStatusFailed:
		return types.StatusFailed
	case MetricStatusTerminated:
		return types.StatusTerminated
	default:
		return types.StatusUnknown
	}
}

// ToWorkerStatus converts an inbound wire status update. Exactly one of
// the returned pointers is non-nil, matching the wire oneof.
func ToWorkerStatus(msg *WorkerStatusMessage) (hostname string, instanceMetric *types.InstanceMetric, workerMetric *types.WorkerMetric) {
	hostname = msg.Identifier
	if msg.InstanceMetric != nil {
		instanceMetric = &types.InstanceMetric{
			InstanceID: msg.InstanceMetric.InstanceID,
			Status:     metricStatusFromWire(msg.InstanceMetric.Status),
			Metrics:    []byte(msg.InstanceMetric.Metrics),
		}
	}
	if msg.WorkerMetric != nil {
		workerMetric = &types.WorkerMetric{
			Status:  metricStatusFromWire(msg.WorkerMetric.Status),
			Metrics: []byte(msg.WorkerMetric.Metrics),
		}
	}
	return hostname, instanceMetric, workerMetric
}

// FromWorkerStatus converts an internal WorkerStatus (the scheduler's
// relay to a controller subscription) into its wire form.
func FromWorkerStatus(in *types.WorkerStatus) *WorkerStatusMessage {
	out := &WorkerStatusMessage{Identifier: in.Identifier}
	if in.InstanceMetric != nil {
		out.InstanceMetric = &InstanceMetricMessage{
			InstanceID: in.InstanceMetric.InstanceID,
			Status:     metricStatusToWire(in.InstanceMetric.Status),
			Metrics:    string(in.InstanceMetric.Metrics),
		}
	}
	if in.WorkerMetric != nil {
		out.WorkerMetric = &WorkerMetricMessage{
			Status:  metricStatusToWire(in.WorkerMetric.Status),
			Metrics: string(in.WorkerMetric.Metrics),
		}
	}
	return out
}
