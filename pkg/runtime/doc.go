/*
Package runtime wraps containerd's client API for the node agent's
container lifecycle (spec.md §5 "Node agent"): pulling images,
creating, starting, stopping, deleting, and status-checking the OCI
containers that back one WorkloadInstance.

A WorkloadInstance may define more than one container
(types.WorkloadSpec.Containers); ContainerdRuntime names each
containerd container "<instance_id>-<container_name>" so every
instance's containers share its lifetime without colliding with other
instances on the same node.

	┌──────────────── CONTAINERD RUNTIME ────────────────┐
	│ CreateInstance  → NewContainer per spec container   │
	│ StartInstance   → NewTask + Start per container     │
	│ StopInstance    → SIGTERM, wait, SIGKILL on timeout  │
	│ DeleteInstance  → stop + snapshot cleanup            │
	│ InstanceStatus  → aggregate task state → Instance-   │
	│                   Status (Pending/Running/Failed)    │
	└──────────────────────────────────────────────────────┘

Volume mounts, secrets injection, and resource limiting are out of
scope (spec.md Non-goals: volume management); every container runs
with the image's own config plus the environment variables from its
ContainerSpec.
*/
package runtime
