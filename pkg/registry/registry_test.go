package registry

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ridgeline/pkg/log"
	"github.com/cuemby/ridgeline/pkg/types"
)

func TestRegisterNewWorker(t *testing.T) {
	r := New(16, log.WithComponent("registry_test"))

	w, err := r.Register("n1", "10.0.0.1:9000")
	require.NoError(t, err)
	assert.Equal(t, "n1", w.Hostname)
	assert.Equal(t, types.WorkerReady, w.State())
	assert.Equal(t, uint8(0), w.ID)
}

func TestRegisterEmptyHostname(t *testing.T) {
	r := New(16, log.WithComponent("registry_test"))
	_, err := r.Register("", "10.0.0.1:9000")
	assert.ErrorIs(t, err, ErrEmptyHostname)
}

func TestRegisterCollisionLiveChannel(t *testing.T) {
	r := New(16, log.WithComponent("registry_test"))
	_, err := r.Register("n1", "10.0.0.1:9000")
	require.NoError(t, err)

	_, err = r.Register("n1", "10.0.0.2:9000")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRegisterReconnectAfterClose(t *testing.T) {
	r := New(16, log.WithComponent("registry_test"))
	w1, err := r.Register("n1", "10.0.0.1:9000")
	require.NoError(t, err)

	r.Close(w1.Hostname)
	assert.Equal(t, types.WorkerNotReady, w1.State())

	w2, err := r.Register("n1", "10.0.0.3:9000")
	require.NoError(t, err)
	assert.Equal(t, w1.ID, w2.ID)
	assert.Equal(t, types.WorkerReady, w2.State())
}

// TestRegisterClusterFull pins the 8-bit ceiling at exactly 255 live
// workers (spec.md §4.2): the 255th registration must still succeed and
// only the 256th must fail with ErrClusterFull.
func TestRegisterClusterFull(t *testing.T) {
	require.Equal(t, 255, maxWorkers)

	r := New(1, log.WithComponent("registry_test"))
	for i := 0; i < 255; i++ {
		_, err := r.Register(hostnameFor(i), "")
		require.NoErrorf(t, err, "registration %d of 255 should succeed", i+1)
	}
	_, err := r.Register("one-too-many", "")
	assert.ErrorIs(t, err, ErrClusterFull)
}

func hostnameFor(i int) string {
	return "n" + string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func TestGetEligibleOnlyReady(t *testing.T) {
	r := New(16, log.WithComponent("registry_test"))
	w1, _ := r.Register("n1", "")
	_, _ = r.Register("n2", "")

	r.MarkNotReady("n2")

	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10; i++ {
		w, ok := r.GetEligible(rng)
		require.True(t, ok)
		assert.Equal(t, w1.Hostname, w.Hostname)
	}
}

func TestGetEligibleNoneReady(t *testing.T) {
	r := New(16, log.WithComponent("registry_test"))
	r.MarkNotReady("does-not-exist")
	_, ok := r.GetEligible(rand.New(rand.NewPCG(1, 2)))
	assert.False(t, ok)
}

func TestSendChannelFull(t *testing.T) {
	r := New(1, log.WithComponent("registry_test"))
	w, err := r.Register("n1", "")
	require.NoError(t, err)

	require.NoError(t, w.Send(types.InstanceScheduling{InstanceID: "a"}))
	err = w.Send(types.InstanceScheduling{InstanceID: "b"})
	assert.ErrorIs(t, err, ErrChannelFull)
}

func TestSetMetricUnknownWorker(t *testing.T) {
	r := New(16, log.WithComponent("registry_test"))
	err := r.SetMetric("ghost", types.WorkerMetric{})
	assert.ErrorIs(t, err, ErrNotFound)
}
