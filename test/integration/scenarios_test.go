// Package integration exercises the scheduler end to end against the
// literal scenarios spec.md §8 enumerates, wired together the same way
// pkg/scheduler's own bufconn harness does, but driving a full
// register → schedule → status-update round trip per scenario rather
// than unit-testing one RPC at a time.
package integration

import (
	"context"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/cuemby/ridgeline/pkg/rpcwire"
	"github.com/cuemby/ridgeline/pkg/scheduler"
	"github.com/cuemby/ridgeline/pkg/types"
)

func dialer(lis *bufconn.Listener) func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
}

func newConn(t *testing.T, lis *bufconn.Listener) *grpc.ClientConn {
	t.Helper()
	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer(lis)),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpcwire.JSONCodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func startCluster(t *testing.T) (workers, controllers *bufconn.Listener) {
	t.Helper()
	sched := scheduler.New(scheduler.Config{
		EventBusCapacity:          256,
		WorkerQueueCapacity:       32,
		SubscriptionQueueCapacity: 32,
	})

	workers = bufconn.Listen(1024 * 1024)
	controllers = bufconn.Listen(1024 * 1024)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go sched.Serve(ctx, workers, controllers)
	return workers, controllers
}

func recvWithTimeout[T any](recv func() (T, error)) (T, error) {
	type result struct {
		val T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := recv()
		ch <- result{v, err}
	}()
	select {
	case r := <-ch:
		return r.val, r.err
	case <-time.After(5 * time.Second):
		var zero T
		return zero, context.DeadlineExceeded
	}
}

func registerWorker(t *testing.T, workersLis *bufconn.Listener, hostname string) rpcwire.WorkerService_RegisterClient {
	t.Helper()
	client := rpcwire.NewWorkerServiceClient(newConn(t, workersLis))
	stream, err := client.Register(context.Background(), &rpcwire.WorkerRegistrationMessage{Hostname: hostname})
	require.NoError(t, err)
	return stream
}

func appWorkload(workloadID string, replicas uint16) *rpcwire.WorkloadMessage {
	def := types.WorkloadDefinition{
		APIVersion: "v1",
		Kind:       "Workload",
		Name:       "app",
		Replicas:   replicas,
		Spec: types.WorkloadSpec{Containers: []types.ContainerSpec{
			{Name: "c", Image: "busybox:latest"},
		}},
	}
	raw, err := json.Marshal(def)
	if err != nil {
		panic(err)
	}
	return &rpcwire.WorkloadMessage{
		WorkloadID: workloadID,
		Definition: string(raw),
		Request:    rpcwire.ScheduleKindCreate,
	}
}

// TestSingleReplicaHappyPath is spec.md §8 scenario 1.
func TestSingleReplicaHappyPath(t *testing.T) {
	workersLis, controllersLis := startCluster(t)

	n1 := registerWorker(t, workersLis, "n1")

	controllerClient := rpcwire.NewControllerServiceClient(newConn(t, controllersLis))
	subStream, err := controllerClient.GetStatusUpdates(context.Background(), &rpcwire.SubscribeRequest{})
	require.NoError(t, err)

	msg := appWorkload("w1", 1)
	_, err = controllerClient.ScheduleInstance(context.Background(), msg)
	require.NoError(t, err)

	sched, err := recvWithTimeout(func() (*rpcwire.InstanceSchedulingMessage, error) { return n1.Recv() })
	require.NoError(t, err)
	require.Equal(t, rpcwire.InstanceActionCreate, sched.Action)

	status, err := recvWithTimeout(func() (*rpcwire.WorkerStatusMessage, error) { return subStream.Recv() })
	require.NoError(t, err)
	require.NotNil(t, status.InstanceMetric)
	require.Equal(t, rpcwire.MetricStatusPending, status.InstanceMetric.Status)
}

// TestScaleUp is spec.md §8 scenario 2: a second Create with the same
// workload_id and a higher replica count adds instances rather than
// replacing them. A single worker keeps placement deterministic so the
// test can read its stream sequentially.
func TestScaleUp(t *testing.T) {
	workersLis, controllersLis := startCluster(t)

	n1 := registerWorker(t, workersLis, "n1")

	controllerClient := rpcwire.NewControllerServiceClient(newConn(t, controllersLis))

	_, err := controllerClient.ScheduleInstance(context.Background(), appWorkload("w1", 1))
	require.NoError(t, err)
	initial, err := recvWithTimeout(func() (*rpcwire.InstanceSchedulingMessage, error) { return n1.Recv() })
	require.NoError(t, err)

	_, err = controllerClient.ScheduleInstance(context.Background(), appWorkload("w1", 2))
	require.NoError(t, err)

	first, err := recvWithTimeout(func() (*rpcwire.InstanceSchedulingMessage, error) { return n1.Recv() })
	require.NoError(t, err)
	second, err := recvWithTimeout(func() (*rpcwire.InstanceSchedulingMessage, error) { return n1.Recv() })
	require.NoError(t, err)
	require.Equal(t, rpcwire.InstanceActionCreate, first.Action)
	require.Equal(t, rpcwire.InstanceActionCreate, second.Action)
	require.NotEqual(t, initial.InstanceID, first.InstanceID)
	require.NotEqual(t, first.InstanceID, second.InstanceID)
}

// TestDestroy is spec.md §8 scenario 3.
func TestDestroy(t *testing.T) {
	workersLis, controllersLis := startCluster(t)

	n1 := registerWorker(t, workersLis, "n1")

	controllerClient := rpcwire.NewControllerServiceClient(newConn(t, controllersLis))

	_, err := controllerClient.ScheduleInstance(context.Background(), appWorkload("w1", 1))
	require.NoError(t, err)
	created, err := recvWithTimeout(func() (*rpcwire.InstanceSchedulingMessage, error) { return n1.Recv() })
	require.NoError(t, err)

	destroyMsg := appWorkload("w1", 1)
	destroyMsg.Request = rpcwire.ScheduleKindDestroy
	_, err = controllerClient.ScheduleInstance(context.Background(), destroyMsg)
	require.NoError(t, err)

	destroyed, err := recvWithTimeout(func() (*rpcwire.InstanceSchedulingMessage, error) { return n1.Recv() })
	require.NoError(t, err)
	require.Equal(t, rpcwire.InstanceActionDestroy, destroyed.Action)
	require.Equal(t, created.InstanceID, destroyed.InstanceID)
}

// TestWorkerReconnect is spec.md §8 scenario 4: registering the same
// hostname again after the first stream closes succeeds and reuses the
// worker's internal id (observable here as the registration itself
// succeeding rather than erroring).
func TestWorkerReconnect(t *testing.T) {
	workersLis, _ := startCluster(t)

	client := rpcwire.NewWorkerServiceClient(newConn(t, workersLis))

	ctx1, cancel1 := context.WithCancel(context.Background())
	_, err := client.Register(ctx1, &rpcwire.WorkerRegistrationMessage{Hostname: "n1"})
	require.NoError(t, err)
	cancel1()
	time.Sleep(50 * time.Millisecond)

	_, err = client.Register(context.Background(), &rpcwire.WorkerRegistrationMessage{Hostname: "n1"})
	require.NoError(t, err)
}

// TestNameCollisionLive is spec.md §8 scenario 5: registering the same
// hostname while the first stream is still open fails.
func TestNameCollisionLive(t *testing.T) {
	workersLis, _ := startCluster(t)

	client := rpcwire.NewWorkerServiceClient(newConn(t, workersLis))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := client.Register(ctx, &rpcwire.WorkerRegistrationMessage{Hostname: "n1"})
	require.NoError(t, err)

	_, err = client.Register(context.Background(), &rpcwire.WorkerRegistrationMessage{Hostname: "n1"})
	require.Error(t, err)
}

// TestControllerFanOut is spec.md §8 scenario 6: two subscribed
// controllers both observe the same InstanceMetric.
func TestControllerFanOut(t *testing.T) {
	workersLis, controllersLis := startCluster(t)

	n1 := registerWorker(t, workersLis, "n1")

	subA, err := rpcwire.NewControllerServiceClient(newConn(t, controllersLis)).
		GetStatusUpdates(context.Background(), &rpcwire.SubscribeRequest{})
	require.NoError(t, err)
	subB, err := rpcwire.NewControllerServiceClient(newConn(t, controllersLis)).
		GetStatusUpdates(context.Background(), &rpcwire.SubscribeRequest{})
	require.NoError(t, err)

	controllerClient := rpcwire.NewControllerServiceClient(newConn(t, controllersLis))
	_, err = controllerClient.ScheduleInstance(context.Background(), appWorkload("w1", 1))
	require.NoError(t, err)

	sched, err := recvWithTimeout(func() (*rpcwire.InstanceSchedulingMessage, error) { return n1.Recv() })
	require.NoError(t, err)

	statusClient := rpcwire.NewWorkerServiceClient(newConn(t, workersLis))
	updates, err := statusClient.SendStatusUpdates(context.Background())
	require.NoError(t, err)
	require.NoError(t, updates.Send(&rpcwire.WorkerStatusMessage{
		Identifier: "n1",
		InstanceMetric: &rpcwire.InstanceMetricMessage{
			InstanceID: sched.InstanceID,
			Status:     rpcwire.MetricStatusRunning,
		},
	}))
	_, err = updates.CloseAndRecv()
	require.NoError(t, err)

	msgA, err := recvWithTimeout(func() (*rpcwire.WorkerStatusMessage, error) { return subA.Recv() })
	require.NoError(t, err)
	msgB, err := recvWithTimeout(func() (*rpcwire.WorkerStatusMessage, error) { return subB.Recv() })
	require.NoError(t, err)

	// Both subscriptions see the Pending metric from the create before
	// the Running one; skip to the Running message on each if needed.
	if msgA.InstanceMetric.Status == rpcwire.MetricStatusPending {
		msgA, err = recvWithTimeout(func() (*rpcwire.WorkerStatusMessage, error) { return subA.Recv() })
		require.NoError(t, err)
	}
	if msgB.InstanceMetric.Status == rpcwire.MetricStatusPending {
		msgB, err = recvWithTimeout(func() (*rpcwire.WorkerStatusMessage, error) { return subB.Recv() })
		require.NoError(t, err)
	}

	require.Equal(t, msgA.InstanceMetric.InstanceID, msgB.InstanceMetric.InstanceID)
	require.Equal(t, msgA.InstanceMetric.Status, msgB.InstanceMetric.Status)
}
