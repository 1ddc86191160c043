/*
Package events implements the scheduler's event fabric: a single
bounded channel that serializes every occurrence the scheduler must
react to — a controller's schedule request, a worker's status report,
a worker registering or dropping — into one consumer.

# Architecture

Unlike a pub/sub broker, Bus has exactly one logical consumer: the
scheduler's reconciliation goroutine. This is what lets that goroutine
own all mutable scheduling state (pkg/statemanager, pkg/registry)
without a mutex around the state itself — the bus is the only way in,
and only one goroutine ever takes events off it.

	producers (gRPC handlers) --Submit--> [ bounded chan Event ] --Recv--> scheduler loop

Submit never blocks: a full bus returns ErrUnavailable immediately so
a gRPC handler can translate it into a transient error for its caller
rather than stall indefinitely under load.

# Usage

	bus := events.NewBus(1024)
	defer bus.Stop()

	go func() {
		for {
			e, err := bus.Recv(ctx)
			if err != nil {
				return
			}
			handle(e)
		}
	}()

	if err := bus.Submit(ctx, events.Event{Kind: events.KindScheduleRequest, ...}); err != nil {
		// surface as transient-unavailable to the RPC caller
	}
*/
package events
