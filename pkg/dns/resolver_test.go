package dns

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/ridgeline/pkg/types"
)

type fakeSource struct {
	workloads map[string]*types.Workload
}

func (f *fakeSource) Snapshot() map[string]*types.Workload { return f.workloads }

func TestResolverStripDomain(t *testing.T) {
	r := NewResolver(&fakeSource{}, "ridgeline.local")

	cases := map[string]string{
		"web.ridgeline.local": "web",
		"web":                  "web",
		"":                     "",
		"a-1.web.ridgeline.local": "a-1.web",
	}
	for input, want := range cases {
		require.Equal(t, want, r.stripDomain(input))
	}
}

func TestResolverMakeFQDN(t *testing.T) {
	require.Equal(t, "web.", makeFQDN("web"))
	require.Equal(t, "web.", makeFQDN("web."))
}

func TestResolveWorkloadReturnsRunningInstances(t *testing.T) {
	src := &fakeSource{workloads: map[string]*types.Workload{
		"wl-1": {
			WorkloadID: "wl-1",
			Name:       "web",
			Instances: map[string]*types.WorkloadInstance{
				"web-aaaa": {InstanceID: "web-aaaa", Status: types.StatusRunning},
				"web-bbbb": {InstanceID: "web-bbbb", Status: types.StatusPending},
			},
		},
	}}
	r := NewResolver(src, "ridgeline.local")

	records, err := r.Resolve("web.ridgeline.local.")
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestResolveInstance(t *testing.T) {
	src := &fakeSource{workloads: map[string]*types.Workload{
		"wl-1": {
			WorkloadID: "wl-1",
			Name:       "web",
			Instances: map[string]*types.WorkloadInstance{
				"web-aaaa": {InstanceID: "web-aaaa", Status: types.StatusRunning},
			},
		},
	}}
	r := NewResolver(src, "ridgeline.local")

	records, err := r.Resolve("web-aaaa.web.ridgeline.local.")
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestResolveUnknownWorkload(t *testing.T) {
	r := NewResolver(&fakeSource{workloads: map[string]*types.Workload{}}, "ridgeline.local")
	_, err := r.Resolve("ghost.ridgeline.local.")
	require.Error(t, err)
}

func TestResolveNoRunningInstances(t *testing.T) {
	src := &fakeSource{workloads: map[string]*types.Workload{
		"wl-1": {
			WorkloadID: "wl-1",
			Name:       "web",
			Instances: map[string]*types.WorkloadInstance{
				"web-aaaa": {InstanceID: "web-aaaa", Status: types.StatusPending},
			},
		},
	}}
	r := NewResolver(src, "ridgeline.local")
	_, err := r.Resolve("web.ridgeline.local.")
	require.Error(t, err)
}
