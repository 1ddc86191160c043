/*
Package types defines the core data structures shared by ridgeline's
controller, scheduler, and node agent.

# Core Types

Wire messages (exchanged over the worker and controller gRPC services):
  - ScheduleRequest: a controller's desired-state change for a workload
  - InstanceScheduling: a scheduler's Create/Destroy command to a worker
  - WorkerRegistration: a worker's initial registration
  - WorkerStatus: a worker's streamed InstanceMetric or WorkerMetric

Domain types (scheduler-internal):
  - Workload: a desired, versioned workload and its observed instances
  - WorkloadInstance: one observed replica, with its own state machine

# State Machine

WorkloadInstance transitions:

	Pending → Running → Terminated
	Pending, Running → Failed
	Pending, Running, Failed, Terminated → Destroying   (scale-down)
	any status → (removed)   (Terminated or Failed report while the
	                          workload is Destroying)

A Destroying instance keeps that status when its worker reports it
Pending or Running.

# Thread Safety

Types in this package hold no locks themselves. The maps that reference
them are confined to the scheduler's single goroutine; pkg/scheduler
publishes deep copies for concurrent readers.
*/
package types
