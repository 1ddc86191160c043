/*
Package controller is ridgeline's single operator-facing entry point
(spec.md §4.2). It persists accepted workload definitions in SQLite,
using the same opaque (id, name, value) blob-table shape the teacher
used for its bbolt-backed storage (_examples/cuemby-warren/pkg/storage),
adapted to database/sql so a single binary can be the store.

A POST or DELETE on /workloads forwards the resulting ScheduleRequest to
the scheduler's ControllerService over gRPC; the HTTP response never
waits for the change to actually reconcile, matching spec.md's
eventual-consistency Non-goal. DELETE never removes a row outright — it
transitions the workload to Destroying and relies on the scheduler to
drain its instances.
*/
package controller
