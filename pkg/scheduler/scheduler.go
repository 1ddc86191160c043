// Package scheduler is the control-plane process that owns the worker
// registry and the reconciliation state manager (spec.md §4). It
// implements both gRPC services defined in pkg/rpcwire: the
// worker-facing service (Register, SendStatusUpdates) and the
// controller-facing service (ScheduleInstance, GetStatusUpdates).
package scheduler

import (
	"context"
	"io"
	"math/rand/v2"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/cuemby/ridgeline/pkg/events"
	"github.com/cuemby/ridgeline/pkg/log"
	"github.com/cuemby/ridgeline/pkg/metrics"
	"github.com/cuemby/ridgeline/pkg/registry"
	"github.com/cuemby/ridgeline/pkg/rpcwire"
	"github.com/cuemby/ridgeline/pkg/statemanager"
	"github.com/cuemby/ridgeline/pkg/types"
)

// Scheduler is the single-writer reconciliation driver. Exactly one
// goroutine runs its loop and calls into the manager; RPC handlers
// submit events to bus or read the registry, except Register, which
// registers and closes its worker in the registry directly under the
// registry's own locks.
type Scheduler struct {
	bus      *events.Bus
	registry *registry.Registry
	manager  *statemanager.Manager
	logger   zerolog.Logger

	subMu   sync.Mutex
	subs    map[uint64]chan *types.WorkerStatus
	nextSub uint64
	subCap  int

	snapMu   sync.RWMutex
	snapshot map[string]*types.Workload

	grpcServer *grpc.Server
	stopped    chan struct{}
}

// Config bundles the capacities the scheduler's internal components
// need, normally sourced from pkg/config.SchedulerConfig.
type Config struct {
	EventBusCapacity          int
	WorkerQueueCapacity       int
	SubscriptionQueueCapacity int
	Seed                      [32]byte
}

// New constructs a Scheduler. A deterministic rng seed may be supplied
// via cfg.Seed for tests (spec.md §9 "Randomised placement"); a zero
// seed still produces a valid, merely non-random-looking, sequence,
// so callers wanting real randomness should seed from crypto/rand.
func New(cfg Config) *Scheduler {
	logger := log.WithComponent("scheduler")
	reg := registry.New(cfg.WorkerQueueCapacity, logger)
	bus := events.NewBus(cfg.EventBusCapacity)
	src := rand.NewChaCha8(cfg.Seed)
	rng := rand.New(src)
	mgr := statemanager.New(reg, rng, logger)

	subCap := cfg.SubscriptionQueueCapacity
	if subCap < 1 {
		subCap = 1
	}

	return &Scheduler{
		bus:      bus,
		registry: reg,
		manager:  mgr,
		logger:   logger,
		subs:     make(map[uint64]chan *types.WorkerStatus),
		subCap:   subCap,
		stopped:  make(chan struct{}),
	}
}

// Serve runs the gRPC servers for both the worker-facing and
// controller-facing listeners and blocks until ctx is cancelled. It
// also starts the reconciliation loop.
func (s *Scheduler) Serve(ctx context.Context, workersLis, controllerLis net.Listener) error {
	go s.run(ctx)

	s.grpcServer = grpc.NewServer()
	rpcwire.RegisterWorkerServiceServer(s.grpcServer, s)
	rpcwire.RegisterControllerServiceServer(s.grpcServer, s)

	errCh := make(chan error, 2)
	go func() { errCh <- s.grpcServer.Serve(workersLis) }()
	if controllerLis != workersLis {
		go func() { errCh <- s.grpcServer.Serve(controllerLis) }()
	}

	select {
	case <-ctx.Done():
		s.Stop()
		return nil
	case err := <-errCh:
		s.Stop()
		return err
	}
}

// Stop gracefully stops the gRPC server and closes the event bus,
// which unwinds the reconciliation loop.
func (s *Scheduler) Stop() {
	if s.grpcServer != nil {
		s.grpcServer.GracefulStop()
	}
	s.bus.Stop()
}

// run is the scheduler's single-writer loop (spec.md §4.5): every
// inbound event is applied to the state manager, then every workload
// is reconciled against the registry before the loop goes back to
// waiting for the next event.
func (s *Scheduler) run(ctx context.Context) {
	for {
		ev, err := s.bus.Recv(ctx)
		if err != nil {
			return
		}
		metrics.EventBusDepth.Set(float64(s.bus.Depth()))
		s.handle(ev)
		s.dispatch(s.manager.Reconcile())
		s.publishSnapshot()
	}
}

// publishSnapshot deep-copies the manager's desired-state map into a
// version pkg/dns (and any other read-only consumer outside the
// single-writer goroutine) can safely read concurrently: the manager's
// own maps are mutated in place on the next event, so handing those
// out directly would race.
func (s *Scheduler) publishSnapshot() {
	live := s.manager.Snapshot()
	snap := make(map[string]*types.Workload, len(live))
	for id, w := range live {
		cp := *w
		cp.Instances = make(map[string]*types.WorkloadInstance, len(w.Instances))
		for instID, inst := range w.Instances {
			instCopy := *inst
			cp.Instances[instID] = &instCopy
		}
		snap[id] = &cp
	}

	s.snapMu.Lock()
	s.snapshot = snap
	s.snapMu.Unlock()
}

// Snapshot returns the most recently published desired-state map. Safe
// for concurrent use by any goroutine (spec.md §9 "Shared state").
func (s *Scheduler) Snapshot() map[string]*types.Workload {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snapshot
}

func (s *Scheduler) handle(ev events.Event) {
	switch ev.Kind {
	case events.KindScheduleRequest:
		if err := s.manager.Intake(*ev.ScheduleRequest); err != nil {
			s.logger.Warn().Err(err).Str("workload_id", ev.ScheduleRequest.WorkloadID).Msg("schedule request rejected")
			metrics.EventsSubmittedTotal.WithLabelValues(string(ev.Kind), "rejected").Inc()
			return
		}
		metrics.EventsSubmittedTotal.WithLabelValues(string(ev.Kind), "applied").Inc()
	case events.KindWorkerStatus:
		ws := ev.WorkerStatus
		if ws.InstanceMetric != nil {
			intents, applied := s.manager.IngestInstanceMetric(ev.Hostname, *ws.InstanceMetric)
			if applied {
				s.dispatch(intents)
			}
		}
		if ws.WorkerMetric != nil {
			if err := s.manager.IngestWorkerMetric(ev.Hostname, *ws.WorkerMetric); err != nil {
				s.logger.Warn().Err(err).Str("hostname", ev.Hostname).Msg("worker metric for unknown worker")
			}
		}
		metrics.EventsSubmittedTotal.WithLabelValues(string(ev.Kind), "applied").Inc()
	case events.KindWorkerRegistered, events.KindWorkerDisconnected:
		// No direct state-manager action; Reconcile picks up the
		// resulting eligibility change on its own.
		metrics.EventsSubmittedTotal.WithLabelValues(string(ev.Kind), "applied").Inc()
	}
}

// dispatch relays every Broadcast intent to live controller
// subscriptions. Scheduling intents are already delivered to the
// worker by the state manager itself (it owns the registry's Send
// call so it can revert on a full channel); dispatch only fans out
// the observability side.
func (s *Scheduler) dispatch(intents []statemanager.Intent) {
	for _, in := range intents {
		if in.Broadcast != nil {
			s.broadcast(in.Broadcast)
		}
	}
}

func (s *Scheduler) addSubscriber() (uint64, chan *types.WorkerStatus) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	ch := make(chan *types.WorkerStatus, s.subCap)
	s.subs[id] = ch
	return id, ch
}

func (s *Scheduler) removeSubscriber(id uint64) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subs[id]; ok {
		delete(s.subs, id)
		close(ch)
	}
}

func (s *Scheduler) broadcast(ws *types.WorkerStatus) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for id, ch := range s.subs {
		select {
		case ch <- ws:
		default:
			s.logger.Warn().Uint64("subscription_id", id).Msg("controller subscription queue full, dropping status update")
		}
	}
}

// Register implements rpcwire.WorkerServiceServer. It admits the
// worker into the registry and then blocks, relaying scheduling
// commands pushed onto the worker's send channel until the stream
// breaks.
func (s *Scheduler) Register(msg *rpcwire.WorkerRegistrationMessage, stream rpcwire.WorkerService_RegisterServer) error {
	reg := rpcwire.ToWorkerRegistration(msg)
	remoteAddr := ""
	if p, ok := peer.FromContext(stream.Context()); ok && p.Addr != nil {
		remoteAddr = p.Addr.String()
	}

	w, err := s.registry.Register(reg.Hostname, remoteAddr)
	if err != nil {
		return registryError(err)
	}

	ctx := stream.Context()
	if err := s.bus.Submit(ctx, events.Event{Kind: events.KindWorkerRegistered, Hostname: reg.Hostname}); err != nil {
		s.logger.Warn().Err(err).Str("hostname", reg.Hostname).Msg("failed to submit worker-registered event")
	}
	metrics.WorkersTotal.WithLabelValues(string(types.WorkerReady)).Inc()

	for {
		select {
		case msg := <-w.Chan():
			if err := stream.Send(rpcwire.FromInstanceScheduling(msg)); err != nil {
				s.registry.Close(reg.Hostname)
				return err
			}
		case <-ctx.Done():
			s.registry.Close(reg.Hostname)
			s.bus.Submit(context.Background(), events.Event{Kind: events.KindWorkerDisconnected, Hostname: reg.Hostname})
			return ctx.Err()
		}
	}
}

// SendStatusUpdates implements rpcwire.WorkerServiceServer. The worker
// streams status reports; the scheduler submits each onto the event
// bus and acknowledges once the worker half-closes.
func (s *Scheduler) SendStatusUpdates(stream rpcwire.WorkerService_SendStatusUpdatesServer) error {
	for {
		msg, err := stream.Recv()
		if err == io.EOF {
			return stream.SendAndClose(&rpcwire.Empty{})
		}
		if err != nil {
			return err
		}

		hostname, instanceMetric, workerMetric := rpcwire.ToWorkerStatus(msg)
		ev := events.Event{
			Kind:     events.KindWorkerStatus,
			Hostname: hostname,
			WorkerStatus: &types.WorkerStatus{
				Identifier:     hostname,
				InstanceMetric: instanceMetric,
				WorkerMetric:   workerMetric,
			},
		}
		if err := s.bus.Submit(stream.Context(), ev); err != nil {
			s.logger.Warn().Err(err).Str("hostname", hostname).Msg("dropped worker status update, bus unavailable")
			metrics.EventsSubmittedTotal.WithLabelValues(string(events.KindWorkerStatus), "dropped").Inc()
		}
	}
}

// ScheduleInstance implements rpcwire.ControllerServiceServer: it
// parses the wire definition and submits a schedule request onto the
// event bus, returning Unavailable if the bus is saturated.
func (s *Scheduler) ScheduleInstance(ctx context.Context, msg *rpcwire.WorkloadMessage) (*rpcwire.Empty, error) {
	req, err := rpcwire.ToScheduleRequest(msg)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.bus.Submit(ctx, events.Event{Kind: events.KindScheduleRequest, ScheduleRequest: &req}); err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return &rpcwire.Empty{}, nil
}

// GetStatusUpdates implements rpcwire.ControllerServiceServer: it
// registers a subscription and relays every broadcast intent until the
// controller disconnects.
func (s *Scheduler) GetStatusUpdates(_ *rpcwire.SubscribeRequest, stream rpcwire.ControllerService_GetStatusUpdatesServer) error {
	id, ch := s.addSubscriber()
	defer s.removeSubscriber(id)

	ctx := stream.Context()
	for {
		select {
		case ws, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(rpcwire.FromWorkerStatus(ws)); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func registryError(err error) error {
	switch err {
	case registry.ErrClusterFull:
		return status.Error(codes.ResourceExhausted, err.Error())
	case registry.ErrAlreadyExists:
		return status.Error(codes.AlreadyExists, err.Error())
	case registry.ErrEmptyHostname:
		return status.Error(codes.InvalidArgument, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}
