package bus

import "time"

// EventType identifies the kind of event carried on the bus.
type EventType string

const (
	ServiceHealthUpdate      EventType = "SERVICE_HEALTH_UPDATE"
	RequestClassified        EventType = "REQUEST_CLASSIFIED"
	RequestProcessed         EventType = "REQUEST_PROCESSED"
	ServiceRegistered        EventType = "SERVICE_REGISTERED"
	RequestRouted            EventType = "REQUEST_ROUTED"
	NewClientConnection      EventType = "NEW_CLIENT_CONNECTION"
	RequestForClassification EventType = "REQUEST_FOR_CLASSIFICATION"
)

// DefaultMaxQueueSize is the bounded FIFO capacity used when a Bus is
// constructed without an explicit override.
const DefaultMaxQueueSize = 100000

// Event is the message unit carried by the bus.
type Event struct {
	ID            string
	Type          EventType
	Source        string
	Data          map[string]any
	Timestamp     time.Time
	CorrelationID string
}

// isRequest reports whether this event is the initiating half of a
// Request/Respond exchange.
func (e Event) isRequest() bool {
	v, _ := e.Data["is_request"].(bool)
	return v
}

// correlationID extracts the correlation id carried in Data, if any.
func (e Event) correlationID() string {
	if v, ok := e.Data["correlation_id"].(string); ok {
		return v
	}
	return ""
}

// Handler is invoked on the bus worker goroutine for every event
// delivered to a subscription. It must not block for long and must not
// call back into Stop synchronously.
type Handler func(Event)

// Metrics is a point-in-time snapshot of the bus's counters.
type Metrics struct {
	EventsPublished uint64
	EventsProcessed uint64
	EventsDropped   uint64
	HandlerErrors   uint64
	QueueSize       uint64
	QueueOverflow   uint64
}
