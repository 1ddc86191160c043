// Package events implements the scheduler's internal event fabric: a
// single bounded multi-producer/single-consumer bus that carries every
// state-changing occurrence (a controller's schedule request, a
// worker's status report, a worker connecting or dropping) into the
// scheduler's single reconciliation goroutine.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuemby/ridgeline/pkg/types"
)

// Kind identifies what occurred.
type Kind string

const (
	KindScheduleRequest    Kind = "schedule_request"
	KindWorkerStatus       Kind = "worker_status"
	KindWorkerRegistered   Kind = "worker_registered"
	KindWorkerDisconnected Kind = "worker_disconnected"
)

// Event is a single occurrence on the bus. Exactly the fields relevant
// to Kind are populated; the rest are left zero.
type Event struct {
	Kind            Kind
	Hostname        string // worker hostname, for the three worker kinds
	ScheduleRequest *types.ScheduleRequest
	WorkerStatus    *types.WorkerStatus
	Timestamp       time.Time
}

// ErrUnavailable is returned by Submit when the bus is full: the
// producer has exceeded its backpressure budget and must retry or
// surface a transient-unavailable error to its own caller (spec I6).
var ErrUnavailable = errors.New("events: bus is at capacity")

// ErrClosed is returned by Submit and Recv once Stop has been called.
var ErrClosed = errors.New("events: bus is closed")

// Bus is a single bounded channel of events. Any number of producers
// may call Submit concurrently; exactly one consumer is expected to
// call Recv in a loop, matching the scheduler's single-writer design.
type Bus struct {
	ch       chan Event
	closed   chan struct{}
	closeMu  sync.Mutex
	didClose bool
}

// NewBus creates a Bus with the given capacity. Capacity is normally
// sourced from configuration (event_bus_capacity); a non-positive
// value is treated as 1 to keep the channel usable.
func NewBus(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{
		ch:     make(chan Event, capacity),
		closed: make(chan struct{}),
	}
}

// Submit enqueues an event. It returns ErrUnavailable immediately if
// the bus is full rather than blocking the caller indefinitely, so
// that a gRPC handler under load can surface a transient error instead
// of hanging; it returns ErrClosed if Stop has already been called, and
// ctx.Err() if ctx is done first.
func (b *Bus) Submit(ctx context.Context, e Event) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}

	select {
	case b.ch <- e:
		return nil
	case <-b.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrUnavailable
	}
}

// Recv blocks until an event is available, the bus is closed, or ctx is
// done. Callers should treat ErrClosed as a normal shutdown signal, not
// an error worth logging at error level.
func (b *Bus) Recv(ctx context.Context) (Event, error) {
	select {
	case e, ok := <-b.ch:
		if !ok {
			return Event{}, ErrClosed
		}
		return e, nil
	case <-b.closed:
		// Drain anything already queued before reporting closed, so a
		// graceful shutdown doesn't drop in-flight events.
		select {
		case e, ok := <-b.ch:
			if ok {
				return e, nil
			}
		default:
		}
		return Event{}, ErrClosed
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Stop closes the bus. Safe to call more than once.
func (b *Bus) Stop() {
	b.closeMu.Lock()
	defer b.closeMu.Unlock()
	if b.didClose {
		return
	}
	b.didClose = true
	close(b.closed)
}

// Depth reports the number of events currently queued, for the
// event-bus-depth gauge.
func (b *Bus) Depth() int {
	return len(b.ch)
}

// Capacity reports the bus's fixed capacity.
func (b *Bus) Capacity() int {
	return cap(b.ch)
}
