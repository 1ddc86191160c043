package statemanager

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/ridgeline/pkg/log"
	"github.com/cuemby/ridgeline/pkg/registry"
	"github.com/cuemby/ridgeline/pkg/types"
)

func newTestManager(t *testing.T) (*Manager, *registry.Registry) {
	t.Helper()
	reg := registry.New(16, log.WithComponent("statemanager_test"))
	rng := rand.New(rand.NewPCG(1, 2))
	return New(reg, rng, log.WithComponent("statemanager_test")), reg
}

func createRequest(workloadID, name string, replicas uint16) types.ScheduleRequest {
	return types.ScheduleRequest{
		WorkloadID: workloadID,
		Kind:       types.ScheduleCreate,
		Replicas:   replicas,
		Definition: types.WorkloadDefinition{Name: name, Replicas: replicas},
	}
}

func destroyRequest(workloadID string, replicas uint16) types.ScheduleRequest {
	return types.ScheduleRequest{WorkloadID: workloadID, Kind: types.ScheduleDestroy, Replicas: replicas}
}

func TestSingleReplicaHappyPath(t *testing.T) {
	m, reg := newTestManager(t)
	_, err := reg.Register("n1", "")
	require.NoError(t, err)

	require.NoError(t, m.Intake(createRequest("w1", "app", 1)))
	intents := m.Reconcile()

	w, ok := m.Get("w1")
	require.True(t, ok)
	assert.Len(t, w.Instances, 1)

	var scheduled, broadcast int
	for _, in := range intents {
		if in.Scheduling != nil {
			scheduled++
			assert.Equal(t, types.ActionCreate, in.Scheduling.Action)
		}
		if in.Broadcast != nil {
			broadcast++
			require.NotNil(t, in.Broadcast.InstanceMetric)
			assert.Equal(t, types.StatusPending, in.Broadcast.InstanceMetric.Status)
		}
	}
	assert.Equal(t, 1, scheduled)
	assert.Equal(t, 1, broadcast)
}

func TestScaleUp(t *testing.T) {
	m, reg := newTestManager(t)
	_, _ = reg.Register("n1", "")

	require.NoError(t, m.Intake(createRequest("w1", "app", 1)))
	m.Reconcile()

	require.NoError(t, m.Intake(createRequest("w1", "app", 2)))
	intents := m.Reconcile()

	w, _ := m.Get("w1")
	assert.EqualValues(t, 3, w.Replicas)
	assert.Len(t, w.Instances, 3)

	scheduled := 0
	for _, in := range intents {
		if in.Scheduling != nil {
			scheduled++
		}
	}
	assert.Equal(t, 2, scheduled)
}

func TestDestroyFullyDrains(t *testing.T) {
	m, reg := newTestManager(t)
	_, _ = reg.Register("n1", "")

	require.NoError(t, m.Intake(createRequest("w1", "app", 3)))
	m.Reconcile()
	w, _ := m.Get("w1")
	require.Len(t, w.Instances, 3)

	require.NoError(t, m.Intake(destroyRequest("w1", 3)))
	intents := m.Reconcile()

	destroyCount := 0
	for _, in := range intents {
		if in.Scheduling != nil && in.Scheduling.Action == types.ActionDestroy {
			destroyCount++
		}
	}
	assert.Equal(t, 3, destroyCount)

	w, _ = m.Get("w1")
	for id := range w.Instances {
		_, ok := m.IngestInstanceMetric("n1", types.InstanceMetric{InstanceID: id, Status: types.StatusTerminated})
		assert.True(t, ok)
	}
	m.Reconcile()

	_, exists := m.Get("w1")
	assert.False(t, exists)
}

func TestCreateOnDestroyingRejected(t *testing.T) {
	m, reg := newTestManager(t)
	_, _ = reg.Register("n1", "")
	require.NoError(t, m.Intake(createRequest("w1", "app", 1)))
	require.NoError(t, m.Intake(destroyRequest("w1", 1)))

	err := m.Intake(createRequest("w1", "app", 1))
	assert.ErrorIs(t, err, ErrCannotDoubleReplicas)
}

func TestDestroyUnknownWorkload(t *testing.T) {
	m, _ := newTestManager(t)
	err := m.Intake(destroyRequest("ghost", 1))
	assert.ErrorIs(t, err, ErrWorkloadDoesNotExist)
}

func TestDestroyAlreadyDestroyingIsNoop(t *testing.T) {
	m, reg := newTestManager(t)
	_, _ = reg.Register("n1", "")
	require.NoError(t, m.Intake(createRequest("w1", "app", 1)))
	require.NoError(t, m.Intake(destroyRequest("w1", 1)))

	err := m.Intake(destroyRequest("w1", 5))
	require.NoError(t, err)
	w, _ := m.Get("w1")
	assert.Equal(t, types.WorkloadDestroying, w.Status)
}

func TestScaleDownClampsAtZero(t *testing.T) {
	m, reg := newTestManager(t)
	_, _ = reg.Register("n1", "")
	require.NoError(t, m.Intake(createRequest("w1", "app", 2)))

	require.NoError(t, m.Intake(destroyRequest("w1", 5)))
	w, _ := m.Get("w1")
	assert.EqualValues(t, 0, w.Replicas)
	assert.Equal(t, types.WorkloadDestroying, w.Status)
}

func TestReconcileNoReadyWorkerDefers(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.Intake(createRequest("w1", "app", 1)))
	intents := m.Reconcile()
	assert.Empty(t, intents)

	w, _ := m.Get("w1")
	assert.Empty(t, w.Instances)
}

func TestIngestInstanceMetricUnknownInstanceIgnored(t *testing.T) {
	m, _ := newTestManager(t)
	intents, ok := m.IngestInstanceMetric("n1", types.InstanceMetric{InstanceID: "ghost"})
	assert.False(t, ok)
	assert.Nil(t, intents)
}

func TestControllerFanOutSamePayload(t *testing.T) {
	m, reg := newTestManager(t)
	_, _ = reg.Register("n1", "")
	require.NoError(t, m.Intake(createRequest("w1", "app", 1)))
	m.Reconcile()
	w, _ := m.Get("w1")
	var instanceID string
	for id := range w.Instances {
		instanceID = id
	}

	intents, ok := m.IngestInstanceMetric("n1", types.InstanceMetric{InstanceID: instanceID, Status: types.StatusRunning})
	require.True(t, ok)
	require.Len(t, intents, 1)
	assert.Equal(t, types.StatusRunning, intents[0].Broadcast.InstanceMetric.Status)
}
