// Package dns resolves cluster-local names to the workload instances
// the scheduler currently has running, so a container can reach a
// sibling instance by name instead of a hardcoded address (spec.md §5
// supplement: the distilled spec omits service discovery, but
// original_source/ runs a DNS server for exactly this reason).
package dns

import (
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/cuemby/ridgeline/pkg/types"
)

// DefaultDomain is ridgeline's cluster-local search domain.
const DefaultDomain = "ridgeline.local"

// Snapshotter is the read-only view the scheduler exposes: the most
// recently published desired-state map, safe for concurrent reads.
type Snapshotter interface {
	Snapshot() map[string]*types.Workload
}

// Resolver answers queries of the form
// "<instance-id>.<workload-name>.ridgeline.local" (one instance) and
// "<workload-name>.ridgeline.local" (every Running instance of a
// workload, for simple round-robin discovery).
type Resolver struct {
	source Snapshotter
	domain string
	rnd    *rand.Rand
}

// NewResolver creates a Resolver over source, querying names under domain.
func NewResolver(source Snapshotter, domain string) *Resolver {
	if domain == "" {
		domain = DefaultDomain
	}
	return &Resolver{
		source: source,
		domain: domain,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Resolve answers a DNS query name with A records, or an error if the
// name does not belong to any known workload or instance.
func (r *Resolver) Resolve(queryName string) ([]dns.RR, error) {
	name := r.stripDomain(strings.TrimSuffix(queryName, "."))

	parts := strings.SplitN(name, ".", 2)
	switch len(parts) {
	case 1:
		return r.resolveWorkload(parts[0], queryName)
	case 2:
		return r.resolveInstance(parts[0], parts[1], queryName)
	default:
		return nil, fmt.Errorf("dns: unresolvable query name %q", queryName)
	}
}

func (r *Resolver) resolveWorkload(workloadName, queryName string) ([]dns.RR, error) {
	w := r.findWorkloadByName(workloadName)
	if w == nil {
		return nil, fmt.Errorf("dns: unknown workload %q", workloadName)
	}

	var ips []net.IP
	for _, inst := range w.Instances {
		if inst.Status == types.StatusRunning {
			ips = append(ips, instanceIP(inst.InstanceID))
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("dns: no running instances for workload %q", workloadName)
	}

	r.rnd.Shuffle(len(ips), func(i, j int) { ips[i], ips[j] = ips[j], ips[i] })

	fqdn := makeFQDN(queryName)
	records := make([]dns.RR, 0, len(ips))
	for _, ip := range ips {
		records = append(records, &dns.A{
			Hdr: dns.RR_Header{Name: fqdn, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 5},
			A:   ip,
		})
	}
	return records, nil
}

func (r *Resolver) resolveInstance(instanceID, workloadName, queryName string) ([]dns.RR, error) {
	w := r.findWorkloadByName(workloadName)
	if w == nil {
		return nil, fmt.Errorf("dns: unknown workload %q", workloadName)
	}

	inst, ok := w.Instances[instanceID]
	if !ok || inst.Status != types.StatusRunning {
		return nil, fmt.Errorf("dns: no running instance %q for workload %q", instanceID, workloadName)
	}

	fqdn := makeFQDN(queryName)
	return []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: fqdn, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 5},
		A:   instanceIP(inst.InstanceID),
	}}, nil
}

func (r *Resolver) findWorkloadByName(name string) *types.Workload {
	for _, w := range r.source.Snapshot() {
		if w.Name == name {
			return w
		}
	}
	return nil
}

func (r *Resolver) stripDomain(name string) string {
	suffix := "." + r.domain
	return strings.TrimSuffix(name, suffix)
}

func makeFQDN(name string) string {
	if !strings.HasSuffix(name, ".") {
		return name + "."
	}
	return name
}

// instanceIP derives a stable, cluster-internal-looking address from
// an instance ID. Ridgeline has no network overlay (spec.md
// Non-goals), so this is a resolvable placeholder rather than a real
// routed address, the same role the teacher's container-ID hash played
// before containerd networking existed.
func instanceIP(instanceID string) net.IP {
	var hash uint32
	for i := 0; i < len(instanceID); i++ {
		hash = hash*31 + uint32(instanceID[i])
	}
	return net.IPv4(10, 200, byte((hash>>8)&0xFF), byte(hash&0xFF))
}
