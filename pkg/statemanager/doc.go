/*
Package statemanager is the scheduler's reconciliation core (spec.md
§4.3). A Manager owns a desired map of Workloads keyed by workload_id;
each Workload embeds its own observed map of WorkloadInstances.

Intake applies a ScheduleRequest's Create/Destroy semantics to the
desired map. Reconcile diffs each workload's replica count against its
observed instance count, creating Pending instances on eligible workers
or marking excess instances Destroying. It sends each InstanceScheduling
to its worker itself and returns Intents: per-subscription
InstanceMetric broadcasts for the caller (pkg/scheduler) to deliver,
and the scheduling commands already sent, for information only.
IngestInstanceMetric and
IngestWorkerMetric apply inbound worker reports.

A Manager is not safe for concurrent use — per spec.md I6, only the
scheduler's single-writer goroutine may call its methods.
*/
package statemanager
