/*
Package bus implements HeavenGate's in-process, typed publish/subscribe
event broker.

It couples the three core components of the proxy (load balancer,
backend registry, health checker) to each other and to the external
classifier, without any of them holding direct references to one
another. Every cross-component signal in HeavenGate — a new client
connection, a classification decision, a health transition, a routed
request — travels across this bus as an Event.

# Architecture

	┌─────────────────────────── Bus ───────────────────────────┐
	│                                                             │
	│  Publish(type, source, data)                               │
	│        │                                                   │
	│        ▼                                                   │
	│  bounded FIFO queue (default cap 100000)                  │
	│   - full? drop oldest, events_dropped++/queue_overflow++   │
	│        │                                                   │
	│        ▼                                                   │
	│  worker goroutine (exactly one, started by Start)          │
	│        │                                                   │
	│        ▼                                                   │
	│  is_request? ──yes──► invoke every subscriber for type     │
	│        │no                                                 │
	│        ▼                                                   │
	│  correlation_id present? ──yes──► complete pending Request │
	│        │no                                                 │
	│        ▼                                                   │
	│  invoke every subscriber for type                          │
	└─────────────────────────────────────────────────────────────┘

Subscriber callbacks run serialized on the worker goroutine, one event
at a time, in publish order per event type. A panicking callback is
recovered, counted in HandlerErrors and otherwise ignored — it must
never take down the worker.

# Request/Response

Request publishes a normal event carrying `is_request: true` and a
fresh correlation id, then blocks the caller (not the worker) until a
matching response event arrives, the timeout elapses, or the bus is
stopped. A component that wants to answer a request subscribes to the
same event type, inspects `is_request`, and replies with Respond using
the correlation id it was handed — this publishes a second event that
the worker recognizes as a response (non-empty correlation_id, no
is_request) and routes directly back to the blocked caller instead of
broadcasting it to subscribers.

# Usage

	b := bus.New(bus.DefaultMaxQueueSize)
	b.Start()
	defer b.Stop()

	id := b.Subscribe(bus.RequestForClassification, func(e bus.Event) {
		// classifier-side handling
	})
	defer b.Unsubscribe(id)

	b.Publish(bus.NewClientConnection, "proxy", map[string]any{
		"client_ip": "10.0.0.7",
	})
*/
package bus
