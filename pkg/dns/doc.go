/*
Package dns implements ridgeline's cluster-local name resolution: a
github.com/miekg/dns server answering A-record queries for
"<workload-name>.ridgeline.local" (every Running instance, shuffled for
simple round-robin) and "<instance-id>.<workload-name>.ridgeline.local"
(one specific instance), backed by a read-only snapshot the scheduler
publishes after every reconciliation pass.

Ridgeline has no network overlay (spec.md Non-goals), so the addresses
this package hands out are stable, resolvable placeholders derived from
an instance's ID rather than routed addresses — the same role the
teacher's container-ID hash played before its own containerd networking
existed. Anything else (an unsupported query type, an unknown name) is
forwarded to the configured upstream resolvers.
*/
package dns
