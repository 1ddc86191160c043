// Package statemanager implements the scheduler's reconciliation core
// (spec.md §4.3): a desired map of Workloads, each carrying its own
// embedded observed map of WorkloadInstances, reconciled against the
// worker registry on every event.
package statemanager

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ridgeline/pkg/metrics"
	"github.com/cuemby/ridgeline/pkg/registry"
	"github.com/cuemby/ridgeline/pkg/types"
)

var (
	// ErrWorkloadDoesNotExist is returned by Destroy on an unknown workload.
	ErrWorkloadDoesNotExist = errors.New("statemanager: workload does not exist")
	// ErrCannotDoubleReplicas is returned by Create on an already-Destroying workload.
	ErrCannotDoubleReplicas = errors.New("statemanager: cannot increase replicas on a destroying workload")
)

// Intent is an outbound command: either an InstanceScheduling message
// for a specific worker, which the manager has already sent itself and
// reports for information only, or an InstanceMetric relay the caller
// delivers to every active controller subscription.
type Intent struct {
	// TargetHostname is set for worker-bound intents.
	TargetHostname string
	Scheduling     *types.InstanceScheduling

	// Broadcast is set for controller-relay intents (no single target).
	Broadcast *types.WorkerStatus
}

// Manager owns the desired/observed state. It is not safe for
// concurrent use: per spec.md I6, only the scheduler's single-writer
// goroutine may call its methods.
type Manager struct {
	workloads map[string]*types.Workload // keyed by workload_id
	registry  *registry.Registry
	rng       *rand.Rand
	logger    zerolog.Logger
}

// New creates a Manager. rng is caller-supplied so tests can seed
// deterministic placement (spec.md §9).
func New(reg *registry.Registry, rng *rand.Rand, logger zerolog.Logger) *Manager {
	return &Manager{
		workloads: make(map[string]*types.Workload),
		registry:  reg,
		rng:       rng,
		logger:    logger,
	}
}

// Intake applies a ScheduleRequest's Create/Destroy semantics to the
// desired map, per spec.md §4.3 "Request intake".
func (m *Manager) Intake(req types.ScheduleRequest) error {
	switch req.Kind {
	case types.ScheduleCreate:
		return m.intakeCreate(req)
	default:
		return m.intakeDestroy(req)
	}
}

func (m *Manager) intakeCreate(req types.ScheduleRequest) error {
	w, exists := m.workloads[req.WorkloadID]
	if !exists {
		replicas := req.Replicas
		if replicas == 0 {
			replicas = req.Definition.Replicas
		}
		if replicas == 0 {
			replicas = 1
		}
		m.workloads[req.WorkloadID] = &types.Workload{
			WorkloadID: req.WorkloadID,
			Kind:       req.Definition.Kind,
			Name:       req.Definition.Name,
			Namespace:  "default",
			Replicas:   replicas,
			Definition: req.RawDefinition,
			Status:     types.WorkloadPending,
			Instances:  make(map[string]*types.WorkloadInstance),
			CreatedAt:  time.Now(),
			UpdatedAt:  time.Now(),
		}
		m.logger.Info().Str("workload_id", req.WorkloadID).Uint16("replicas", replicas).Msg("workload created")
		return nil
	}

	if w.Status == types.WorkloadDestroying {
		return ErrCannotDoubleReplicas
	}

	delta := req.Replicas
	if delta == 0 {
		delta = 1
	}
	w.Replicas += delta
	w.Definition = req.RawDefinition
	w.UpdatedAt = time.Now()
	m.logger.Info().Str("workload_id", req.WorkloadID).Uint16("replicas", w.Replicas).Msg("workload scaled up")
	return nil
}

func (m *Manager) intakeDestroy(req types.ScheduleRequest) error {
	w, exists := m.workloads[req.WorkloadID]
	if !exists {
		return ErrWorkloadDoesNotExist
	}
	if w.Status == types.WorkloadDestroying {
		return nil
	}

	if w.Replicas > req.Replicas {
		w.Replicas -= req.Replicas
		m.logger.Info().Str("workload_id", req.WorkloadID).Uint16("replicas", w.Replicas).Msg("workload scaled down")
		return nil
	}

	w.Status = types.WorkloadDestroying
	w.Replicas = 0
	w.UpdatedAt = time.Now()
	m.logger.Info().Str("workload_id", req.WorkloadID).Msg("workload marked destroying")
	return nil
}

// Reconcile computes and returns the intents needed to drive every
// workload's observed instance count toward its desired replica count
// (spec.md §4.3 "Reconciliation"). It mutates the observed maps in
// place (creating Pending instances, marking excess ones Destroying)
// and removes workloads once fully drained.
func (m *Manager) Reconcile() []Intent {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ReconciliationDuration)

	var intents []Intent
	for id, w := range m.workloads {
		intents = append(intents, m.reconcileWorkload(w)...)
		if w.Status == types.WorkloadDestroying && len(w.Instances) == 0 {
			delete(m.workloads, id)
			m.logger.Info().Str("workload_id", id).Msg("workload removed, fully drained")
		}
	}
	return intents
}

func (m *Manager) reconcileWorkload(w *types.Workload) []Intent {
	diff := int(w.Replicas) - len(w.Instances)
	switch {
	case diff > 0:
		return m.scaleUp(w, diff)
	case diff < 0:
		return m.scaleDown(w, -diff)
	default:
		return nil
	}
}

func (m *Manager) scaleUp(w *types.Workload, count int) []Intent {
	var intents []Intent
	for i := 0; i < count; i++ {
		worker, ok := m.registry.GetEligible(m.rng)
		if !ok {
			m.logger.Info().Str("workload_id", w.WorkloadID).Msg("no ready worker, deferring scale-up")
			break
		}

		instanceID := m.freshInstanceID(w)
		instance := &types.WorkloadInstance{
			InstanceID: instanceID,
			WorkloadID: w.WorkloadID,
			Status:     types.StatusPending,
			WorkerID:   worker.Hostname,
			Definition: w.Definition,
			CreatedAt:  time.Now(),
		}

		scheduling := types.InstanceScheduling{
			InstanceID: instanceID,
			Action:     types.ActionCreate,
			Definition: w.Definition,
		}
		if err := worker.Send(scheduling); err != nil {
			m.logger.Warn().Str("hostname", worker.Hostname).Err(err).Msg("send failed, reverting instance")
			m.registry.MarkNotReady(worker.Hostname)
			continue
		}

		w.Instances[instanceID] = instance
		metrics.InstancesScheduledTotal.Inc()
		intents = append(intents, Intent{TargetHostname: worker.Hostname, Scheduling: &scheduling})
		intents = append(intents, Intent{Broadcast: &types.WorkerStatus{
			Identifier: worker.Hostname,
			InstanceMetric: &types.InstanceMetric{
				InstanceID: instanceID,
				Status:     types.StatusPending,
			},
		}})
	}
	return intents
}

func (m *Manager) scaleDown(w *types.Workload, count int) []Intent {
	var intents []Intent
	ids := insertionOrderedIDs(w)
	taken := 0
	for _, id := range ids {
		if taken >= count {
			break
		}
		instance := w.Instances[id]
		if instance.Status == types.StatusDestroying {
			continue
		}
		worker, ok := m.registry.GetByHostname(instance.WorkerID)
		if !ok {
			continue
		}

		scheduling := types.InstanceScheduling{InstanceID: id, Action: types.ActionDestroy}
		if err := worker.Send(scheduling); err != nil {
			m.logger.Warn().Str("hostname", worker.Hostname).Err(err).Msg("destroy send failed")
			m.registry.MarkNotReady(worker.Hostname)
			continue
		}

		instance.Status = types.StatusDestroying
		taken++
		intents = append(intents, Intent{TargetHostname: worker.Hostname, Scheduling: &scheduling})
	}
	return intents
}

// insertionOrderedIDs returns an instance's keys ordered by CreatedAt,
// an implementation detail spec.md §4.3 allows tests to probe.
func insertionOrderedIDs(w *types.Workload) []string {
	ids := make([]string, 0, len(w.Instances))
	for id := range w.Instances {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && w.Instances[ids[j-1]].CreatedAt.After(w.Instances[ids[j]].CreatedAt); j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

const instanceIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// freshInstanceID rejection-samples a 4-char lowercase-alphanumeric
// suffix until it is unique within w.Instances (spec.md §3/§4.3).
func (m *Manager) freshInstanceID(w *types.Workload) string {
	for {
		suffix := make([]byte, 4)
		for i := range suffix {
			suffix[i] = instanceIDAlphabet[m.rng.IntN(len(instanceIDAlphabet))]
		}
		id := w.Name + "-" + string(suffix)
		if _, taken := w.Instances[id]; !taken {
			return id
		}
	}
}

// IngestInstanceMetric applies an inbound InstanceMetric to the
// observed map, per spec.md §4.3 "Status ingestion". It returns the
// intents to relay (the metric itself, broadcast to every controller
// subscription) and a bool indicating whether the metric was applied
// (false if the instance was already reaped, in which case only a
// warning is logged and nothing is relayed).
func (m *Manager) IngestInstanceMetric(hostname string, metric types.InstanceMetric) ([]Intent, bool) {
	w := m.workloadForInstance(metric.InstanceID)
	if w == nil {
		m.logger.Warn().Str("instance_id", metric.InstanceID).Msg("metric for unknown instance, ignoring")
		return nil, false
	}

	instance, ok := w.Instances[metric.InstanceID]
	if !ok {
		m.logger.Warn().Str("instance_id", metric.InstanceID).Msg("metric for unknown instance, ignoring")
		return nil, false
	}

	terminal := metric.Status == types.StatusTerminated || metric.Status == types.StatusFailed
	if instance.Status != types.StatusDestroying || terminal {
		instance.Status = metric.Status
	}
	if terminal && w.Status == types.WorkloadDestroying {
		delete(w.Instances, metric.InstanceID)
	} else if metric.Status == types.StatusFailed {
		metrics.InstancesFailedTotal.Inc()
	}

	intent := Intent{Broadcast: &types.WorkerStatus{
		Identifier:     hostname,
		InstanceMetric: &metric,
	}}
	return []Intent{intent}, true
}

// IngestWorkerMetric records a worker-level metric report via the
// registry; it does not itself affect instance state.
func (m *Manager) IngestWorkerMetric(hostname string, metric types.WorkerMetric) error {
	return m.registry.SetMetric(hostname, metric)
}

func (m *Manager) workloadForInstance(instanceID string) *types.Workload {
	for _, w := range m.workloads {
		if _, ok := w.Instances[instanceID]; ok {
			return w
		}
	}
	return nil
}

// Get returns the desired workload record for id, for read-only callers
// (tests).
func (m *Manager) Get(workloadID string) (*types.Workload, bool) {
	w, ok := m.workloads[workloadID]
	return w, ok
}

// Snapshot returns every desired workload. Intended for tests and
// read-only callers running on the scheduler's own goroutine.
func (m *Manager) Snapshot() map[string]*types.Workload {
	return m.workloads
}
