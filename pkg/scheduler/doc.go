/*
Package scheduler wires the event bus (pkg/events), the worker
registry (pkg/registry) and the reconciliation state manager
(pkg/statemanager) into the single control-plane process described in
spec.md §4 "Scheduler".

A Scheduler exposes two gRPC services over pkg/rpcwire:

  - the worker-facing service, called by node agents to Register and
    to stream status via SendStatusUpdates;
  - the controller-facing service, called by the controller to
    ScheduleInstance and to watch GetStatusUpdates.

Exactly one goroutine (run) ever calls into the state manager. RPC
handlers submit events onto the bus or read the registry/subscription
set, except that the Register handler adds and closes its worker in the
registry directly, under the registry's own locks, without going
through the event loop.
Reconcile runs once per event rather than on a fixed tick, so placement
latency is bounded by queue depth rather than a poll interval.
*/
package scheduler
