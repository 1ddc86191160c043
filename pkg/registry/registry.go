// Package registry implements the scheduler's worker registry: the set
// of connected workers keyed by hostname, each with a bounded outbound
// send channel, a readiness state, and the worker's most recently
// reported metric (spec.md §4.2).
package registry

import (
	"errors"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/ridgeline/pkg/types"
)

// maxWorkers bounds the registry at 255 live ids (spec.md §4.2 "an
// 8-bit ceiling of 255"); the 256th registration attempt fails with
// ErrClusterFull.
const maxWorkers = 255

var (
	// ErrClusterFull is returned when the worker id space is exhausted.
	ErrClusterFull = errors.New("registry: cluster full, worker id space exhausted")
	// ErrAlreadyExists is returned on a hostname collision with a live channel (I5).
	ErrAlreadyExists = errors.New("registry: hostname already registered with a live channel")
	// ErrEmptyHostname is returned when Register is called with an empty hostname.
	ErrEmptyHostname = errors.New("registry: hostname must not be empty")
	// ErrNotFound is returned by operations addressing an unknown hostname.
	ErrNotFound = errors.New("registry: worker not found")
	// ErrChannelFull is returned by Worker.Send when the outbound queue is at capacity.
	ErrChannelFull = errors.New("registry: worker send channel is full")
	// ErrWorkerClosed is returned by Worker.Send once the worker's stream has
	// torn down; the caller should treat it exactly like ErrChannelFull.
	ErrWorkerClosed = errors.New("registry: worker channel is closed")
)

// Worker is one registered node. All fields are mutated only while mu
// is held; sendCh itself is never closed (see close below), so callers
// reach it only through Chan/Send rather than touching the field
// directly, which would otherwise race a concurrent reconnect's swap.
type Worker struct {
	ID         uint8
	Hostname   string
	RemoteAddr string

	mu     sync.Mutex
	sendCh chan types.InstanceScheduling
	state  types.WorkerState
	closed bool
	metric *types.WorkerMetric
}

// State returns the worker's current readiness.
func (w *Worker) State() types.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Metric returns the worker's most recently reported metric, if any.
func (w *Worker) Metric() (types.WorkerMetric, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.metric == nil {
		return types.WorkerMetric{}, false
	}
	return *w.metric, true
}

// Chan returns the worker's current outbound channel for use as a
// select case. It is re-read under the lock on every call so a caller
// looping on it (the Register RPC handler) always observes the channel
// currently in effect, even across a disconnect/reconnect cycle that
// swaps in a fresh one.
func (w *Worker) Chan() chan types.InstanceScheduling {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sendCh
}

// Send enqueues an instance scheduling command without blocking. A full
// channel is reported as ErrChannelFull and an already-closed worker as
// ErrWorkerClosed, so the caller can revert the instance creation and
// mark the worker NotReady either way (spec.md §4.3 tie-breaks). The
// closed check and the channel send are deliberately not done under the
// same critical section as close()'s flag flip beyond the initial
// check: the channel is never closed with the builtin close(), only
// abandoned, so a send racing a close can never panic (spec.md §7 "the
// scheduler never panics on remote errors").
func (w *Worker) Send(msg types.InstanceScheduling) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrWorkerClosed
	}
	ch := w.sendCh
	w.mu.Unlock()

	select {
	case ch <- msg:
		return nil
	default:
		return ErrChannelFull
	}
}

// close marks the worker closed and flips it NotReady (I4). It
// deliberately does not close the underlying channel: Send only ever
// checks the closed flag under w.mu before writing to the channel it
// read under the same lock, so the channel is simply abandoned here
// rather than closed, and a concurrent Send can never land on a closed
// channel. Safe to call more than once.
func (w *Worker) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.closed = true
	w.state = types.WorkerNotReady
}

// Registry holds the connected-worker set. Reads (GetByHostname,
// GetEligible) take only a read lock so the state manager can consult
// eligibility without routing through the scheduler's event loop
// (spec.md §9 "Shared state"). Unlike desired/observed workload state,
// registry membership (Register, Close) is mutated directly from the
// gRPC handler goroutines that own a given worker's stream, not from
// the scheduler's single-writer loop — each hostname's own mutex is
// what keeps that safe, not single-writer discipline.
type Registry struct {
	mu            sync.RWMutex
	byHostname    map[string]*Worker
	nextID        int
	queueCapacity int
	logger        zerolog.Logger
}

// New creates an empty Registry. queueCapacity sizes each worker's
// outbound InstanceScheduling channel.
func New(queueCapacity int, logger zerolog.Logger) *Registry {
	if queueCapacity < 1 {
		queueCapacity = 1
	}
	return &Registry{
		byHostname:    make(map[string]*Worker),
		queueCapacity: queueCapacity,
		logger:        logger,
	}
}

// Register admits a worker by hostname, returning its Worker record. A
// collision with a live channel fails with ErrAlreadyExists (I5); a
// collision with a closed channel is a reconnect that preserves the
// worker's id and swaps in a fresh channel.
func (r *Registry) Register(hostname, remoteAddr string) (*Worker, error) {
	if hostname == "" {
		return nil, ErrEmptyHostname
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byHostname[hostname]; ok {
		existing.mu.Lock()
		live := !existing.closed
		existing.mu.Unlock()
		if live {
			return nil, ErrAlreadyExists
		}
		existing.mu.Lock()
		existing.sendCh = make(chan types.InstanceScheduling, r.queueCapacity)
		existing.RemoteAddr = remoteAddr
		existing.closed = false
		existing.state = types.WorkerReady
		existing.mu.Unlock()
		r.logger.Info().Str("hostname", hostname).Msg("worker reconnected")
		return existing, nil
	}

	if len(r.byHostname) >= maxWorkers {
		return nil, ErrClusterFull
	}

	w := &Worker{
		ID:         uint8(r.nextID),
		Hostname:   hostname,
		RemoteAddr: remoteAddr,
		sendCh:     make(chan types.InstanceScheduling, r.queueCapacity),
		state:      types.WorkerReady,
	}
	r.nextID++
	r.byHostname[hostname] = w
	r.logger.Info().Str("hostname", hostname).Int("id", int(w.ID)).Msg("worker registered")
	return w, nil
}

// GetByHostname returns the worker registered under hostname, if any.
func (r *Registry) GetByHostname(hostname string) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byHostname[hostname]
	return w, ok
}

// GetEligible returns a uniformly-random Ready worker, or false if none
// exists. rng is caller-supplied so tests can seed it deterministically
// (spec.md §9 "Randomised placement").
func (r *Registry) GetEligible(rng *rand.Rand) (*Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eligible := make([]*Worker, 0, len(r.byHostname))
	for _, w := range r.byHostname {
		if w.State() == types.WorkerReady {
			eligible = append(eligible, w)
		}
	}
	if len(eligible) == 0 {
		return nil, false
	}
	return eligible[rng.IntN(len(eligible))], true
}

// SetMetric records a worker's most recent metric report.
func (r *Registry) SetMetric(hostname string, metric types.WorkerMetric) error {
	r.mu.RLock()
	w, ok := r.byHostname[hostname]
	r.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	w.mu.Lock()
	w.metric = &metric
	w.mu.Unlock()
	return nil
}

// MarkNotReady flips a worker's state without closing its channel, used
// when a send fails so the scheduler stops routing new instances there
// until the worker reconnects or is observed closed.
func (r *Registry) MarkNotReady(hostname string) {
	r.mu.RLock()
	w, ok := r.byHostname[hostname]
	r.mu.RUnlock()
	if !ok {
		return
	}
	w.mu.Lock()
	w.state = types.WorkerNotReady
	w.mu.Unlock()
}

// Close marks a worker's channel closed (I4), for use when an inbound
// RPC stream observes its peer disconnect.
func (r *Registry) Close(hostname string) {
	r.mu.RLock()
	w, ok := r.byHostname[hostname]
	r.mu.RUnlock()
	if !ok {
		return
	}
	w.close()
}

// Count returns the number of registered workers, live or not.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHostname)
}
