// Package agent is ridgeline's node agent process (spec.md §4.3): it
// registers with the scheduler, drives pkg/runtime to realize the
// InstanceScheduling commands it receives, and reports instance and
// node status back over the same connection.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/cuemby/ridgeline/pkg/imagecache"
	"github.com/cuemby/ridgeline/pkg/log"
	"github.com/cuemby/ridgeline/pkg/metrics"
	"github.com/cuemby/ridgeline/pkg/rpcwire"
	"github.com/cuemby/ridgeline/pkg/runtime"
	"github.com/cuemby/ridgeline/pkg/types"
)

// reportInterval is how often the agent pushes a WorkerMetric node
// snapshot.
const reportInterval = 5 * time.Second

// Config holds node agent configuration.
type Config struct {
	SchedulerEndpoint string
	Hostname          string
	ContainerdSocket  string
	ImageCacheDir     string
}

// trackedInstance is the agent's own record of an instance it has been
// asked to run, independent of the scheduler's bookkeeping — the agent
// only ever learns about an instance through a push, never by asking.
type trackedInstance struct {
	instanceID string
	definition types.WorkloadDefinition
	status     types.InstanceStatus
}

// Agent is ridgeline's node agent.
type Agent struct {
	hostname string
	rt       *runtime.ContainerdRuntime
	cache    *imagecache.Cache
	conn     *grpc.ClientConn
	client   rpcwire.WorkerServiceClient

	mu        sync.Mutex
	instances map[string]*trackedInstance
}

// New dials the scheduler and opens the node's containerd runtime and
// image cache, without yet registering.
func New(cfg Config, dialOpts ...grpc.DialOption) (*Agent, error) {
	rt, err := runtime.NewContainerdRuntime(cfg.ContainerdSocket)
	if err != nil {
		return nil, err
	}

	cache, err := imagecache.Open(cfg.ImageCacheDir)
	if err != nil {
		rt.Close()
		return nil, err
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rpcwire.JSONCodecName)),
	}, dialOpts...)

	conn, err := grpc.NewClient(cfg.SchedulerEndpoint, opts...)
	if err != nil {
		rt.Close()
		cache.Close()
		return nil, fmt.Errorf("agent: failed to dial scheduler at %s: %w", cfg.SchedulerEndpoint, err)
	}

	return &Agent{
		hostname:  cfg.Hostname,
		rt:        rt,
		cache:     cache,
		conn:      conn,
		client:    rpcwire.NewWorkerServiceClient(conn),
		instances: make(map[string]*trackedInstance),
	}, nil
}

// Close releases the agent's runtime, cache, and scheduler connection.
func (a *Agent) Close() error {
	a.cache.Close()
	a.rt.Close()
	return a.conn.Close()
}

// Run registers with the scheduler and blocks, dispatching scheduling
// commands and periodically reporting status, until ctx is cancelled or
// the connection fails.
func (a *Agent) Run(ctx context.Context) error {
	stream, err := a.client.Register(ctx, &rpcwire.WorkerRegistrationMessage{Hostname: a.hostname})
	if err != nil {
		return fmt.Errorf("agent: failed to register with scheduler: %w", err)
	}
	log.WithComponent("agent").Info().Str("hostname", a.hostname).Msg("registered with scheduler")

	go a.reportLoop(ctx)

	for {
		msg, err := stream.Recv()
		if err != nil {
			return fmt.Errorf("agent: registration stream closed: %w", err)
		}
		go a.dispatch(ctx, msg)
	}
}

// dispatch realizes one scheduling command by driving pkg/runtime, then
// reports the outcome on its own (not waiting for the next report tick)
// so the scheduler sees the result promptly.
func (a *Agent) dispatch(ctx context.Context, msg *rpcwire.InstanceSchedulingMessage) {
	logger := log.WithInstanceID(msg.InstanceID)

	switch msg.Action {
	case rpcwire.InstanceActionCreate:
		a.create(ctx, msg, logger)
	case rpcwire.InstanceActionDestroy:
		a.destroy(ctx, msg, logger)
	}
}

func (a *Agent) create(ctx context.Context, msg *rpcwire.InstanceSchedulingMessage, logger zerolog.Logger) {
	var def types.WorkloadDefinition
	if err := json.Unmarshal([]byte(msg.Definition), &def); err != nil {
		logger.Error().Err(err).Msg("invalid workload definition")
		a.setStatus(msg.InstanceID, def, types.StatusFailed)
		a.reportInstance(ctx, msg.InstanceID, types.StatusFailed)
		return
	}

	inst := &types.WorkloadInstance{
		InstanceID: msg.InstanceID,
		Definition: []byte(msg.Definition),
	}

	a.mu.Lock()
	a.instances[msg.InstanceID] = &trackedInstance{instanceID: msg.InstanceID, definition: def, status: types.StatusPending}
	a.mu.Unlock()
	a.reportInstance(ctx, msg.InstanceID, types.StatusPending)

	if err := a.pullImages(ctx, def); err != nil {
		logger.Error().Err(err).Msg("failed to pull images")
		a.setStatus(msg.InstanceID, def, types.StatusFailed)
		a.reportInstance(ctx, msg.InstanceID, types.StatusFailed)
		return
	}

	startTimer := metrics.NewTimer()
	if err := a.rt.CreateInstance(ctx, inst); err != nil {
		logger.Error().Err(err).Msg("failed to create instance")
		a.setStatus(msg.InstanceID, def, types.StatusFailed)
		a.reportInstance(ctx, msg.InstanceID, types.StatusFailed)
		return
	}
	if err := a.rt.StartInstance(ctx, msg.InstanceID, def); err != nil {
		logger.Error().Err(err).Msg("failed to start instance")
		a.setStatus(msg.InstanceID, def, types.StatusFailed)
		a.reportInstance(ctx, msg.InstanceID, types.StatusFailed)
		return
	}
	startTimer.ObserveDuration(metrics.InstanceStartDuration)

	a.setStatus(msg.InstanceID, def, types.StatusRunning)
	a.reportInstance(ctx, msg.InstanceID, types.StatusRunning)
	logger.Info().Str("workload", def.Name).Msg("instance running")
}

func (a *Agent) destroy(ctx context.Context, msg *rpcwire.InstanceSchedulingMessage, logger zerolog.Logger) {
	a.mu.Lock()
	tracked, ok := a.instances[msg.InstanceID]
	a.mu.Unlock()

	var def types.WorkloadDefinition
	if ok {
		def = tracked.definition
	} else if err := json.Unmarshal([]byte(msg.Definition), &def); err != nil {
		logger.Error().Err(err).Msg("invalid workload definition on destroy")
		return
	}

	stopTimer := metrics.NewTimer()
	if err := a.rt.DeleteInstance(ctx, msg.InstanceID, def); err != nil {
		logger.Error().Err(err).Msg("failed to delete instance")
	}
	stopTimer.ObserveDuration(metrics.InstanceStopDuration)

	a.mu.Lock()
	delete(a.instances, msg.InstanceID)
	a.mu.Unlock()

	a.reportInstance(ctx, msg.InstanceID, types.StatusTerminated)
	logger.Info().Msg("instance terminated")
}

// pullImages pulls every container image a definition references,
// consulting the local image cache first so a previously-pulled image
// is never fetched twice.
func (a *Agent) pullImages(ctx context.Context, def types.WorkloadDefinition) error {
	for _, c := range def.Spec.Containers {
		if _, hit, err := a.cache.Lookup(c.Image); err != nil {
			return err
		} else if hit {
			continue
		}

		timer := metrics.NewTimer()
		if err := a.rt.PullImage(ctx, c.Image); err != nil {
			return fmt.Errorf("agent: failed to pull %s: %w", c.Image, err)
		}
		timer.ObserveDuration(metrics.ImagePullDuration)

		// PullImage doesn't hand back the resolved image, so the cache
		// indexes by reference rather than content digest.
		if err := a.cache.Record(c.Image, c.Image, 0); err != nil {
			return err
		}
	}
	return nil
}

func (a *Agent) setStatus(instanceID string, def types.WorkloadDefinition, status types.InstanceStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	tracked, ok := a.instances[instanceID]
	if !ok {
		tracked = &trackedInstance{instanceID: instanceID, definition: def}
		a.instances[instanceID] = tracked
	}
	tracked.status = status
}

// reportInstance sends a single InstanceMetric update over a fresh
// SendStatusUpdates stream. SendStatusUpdates is client-streaming, so
// each call opens, sends, and closes its own batch rather than holding
// one stream open for the agent's lifetime.
func (a *Agent) reportInstance(ctx context.Context, instanceID string, status types.InstanceStatus) {
	stream, err := a.client.SendStatusUpdates(ctx)
	if err != nil {
		log.WithComponent("agent").Error().Err(err).Msg("failed to open status stream")
		return
	}
	msg := &rpcwire.WorkerStatusMessage{
		Identifier: a.hostname,
		InstanceMetric: &rpcwire.InstanceMetricMessage{
			InstanceID: instanceID,
			Status:     instanceStatusToWire(status),
		},
	}
	if err := stream.Send(msg); err != nil {
		log.WithComponent("agent").Error().Err(err).Msg("failed to send instance status")
		return
	}
	if _, err := stream.CloseAndRecv(); err != nil {
		log.WithComponent("agent").Error().Err(err).Msg("failed to close status stream")
	}
}

// reportLoop periodically pushes a WorkerMetric node snapshot.
func (a *Agent) reportLoop(ctx context.Context) {
	ticker := time.NewTicker(reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.reportWorkerMetric(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *Agent) reportWorkerMetric(ctx context.Context) {
	snapshot := collectNodeMetrics()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		log.WithComponent("agent").Error().Err(err).Msg("failed to marshal node metrics")
		return
	}

	stream, err := a.client.SendStatusUpdates(ctx)
	if err != nil {
		log.WithComponent("agent").Error().Err(err).Msg("failed to open status stream")
		return
	}
	msg := &rpcwire.WorkerStatusMessage{
		Identifier: a.hostname,
		WorkerMetric: &rpcwire.WorkerMetricMessage{
			Status:  instanceStatusToWire(types.StatusRunning),
			Metrics: string(payload),
		},
	}
	if err := stream.Send(msg); err != nil {
		log.WithComponent("agent").Error().Err(err).Msg("failed to send worker metric")
		return
	}
	if _, err := stream.CloseAndRecv(); err != nil {
		log.WithComponent("agent").Error().Err(err).Msg("failed to close status stream")
	}
}

func instanceStatusToWire(s types.InstanceStatus) rpcwire.MetricStatus {
	switch s {
	case types.StatusPending:
		return rpcwire.MetricStatusPending
	case types.StatusRunning:
		return rpcwire.MetricStatusRunning
	case types.StatusFailed:
		return rpcwire.MetricStatusFailed
	case types.StatusTerminated:
		return rpcwire.MetricStatusTerminated
	default:
		return rpcwire.MetricStatusUnknown
	}
}
