/*
Package registry implements the worker registry described in spec.md
§4.2: a hostname-keyed set of connected workers, each with a bounded
outbound InstanceScheduling channel, a Ready/NotReady state, and the
worker's most recently reported metric.

Register assigns a stable internal id bounded at 255 workers (the 256th
registration fails with ErrClusterFull), rejects an empty hostname, and treats a
hostname collision as either ErrAlreadyExists (channel still open, I5)
or a reconnect that preserves the id and swaps in a fresh channel
(channel already closed). GetEligible picks uniformly at random among
Ready workers so tests can seed the RNG and so simultaneous worker
arrivals don't bias placement toward the first registrant.

Reads (GetByHostname, GetEligible) take only a read lock so the state
manager can consult eligibility without a round trip through the
scheduler's event loop. Mutations (Register, Close) do not go through
that loop either: they run on the gRPC handler goroutines that own a
worker's stream, and the registry's own locks keep them safe.
*/
package registry
