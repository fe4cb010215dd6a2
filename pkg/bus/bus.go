package bus

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmonastyrskiy/HeavenGate/pkg/log"
	"github.com/rs/zerolog"
)

// ErrRequestTimeout is returned by Request when no response arrives
// within the given timeout.
var ErrRequestTimeout = errors.New("bus: request timeout")

// ErrBusShutdown is returned by Request (pending or new) once Stop has
// been called.
var ErrBusShutdown = errors.New("bus: shutdown")

type subscription struct {
	id       uint64
	callback Handler
}

// Bus is a bounded, typed, in-process publish/subscribe broker with
// request/response correlation. The zero value is not usable; build one
// with New.
type Bus struct {
	maxQueueSize int
	logger       zerolog.Logger

	qMu     sync.Mutex
	qCond   *sync.Cond
	queue   []Event
	running atomic.Bool

	subsMu sync.Mutex
	subs   map[EventType][]subscription
	nextSubID atomic.Uint64

	reqMu   sync.Mutex
	pending map[string]chan Event

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	wg sync.WaitGroup

	nextEventID atomic.Uint64
	nextCorrID  atomic.Uint64

	published atomic.Uint64
	processed atomic.Uint64
	dropped   atomic.Uint64
	handlerErrs atomic.Uint64
}

// New constructs a Bus with the given bounded queue capacity. A
// maxQueueSize <= 0 falls back to DefaultMaxQueueSize.
func New(maxQueueSize int) *Bus {
	if maxQueueSize <= 0 {
		maxQueueSize = DefaultMaxQueueSize
	}
	b := &Bus{
		maxQueueSize: maxQueueSize,
		logger:       log.WithComponent("bus"),
		subs:         make(map[EventType][]subscription),
		pending:      make(map[string]chan Event),
		shutdownCh:   make(chan struct{}),
	}
	b.qCond = sync.NewCond(&b.qMu)
	return b
}

// Start spawns the worker goroutine. Idempotent: calling Start more than
// once never produces more than one worker.
func (b *Bus) Start() {
	if !b.running.CompareAndSwap(false, true) {
		return
	}
	b.wg.Add(1)
	go b.run()
}

// Stop signals the worker to exit, waits for it to drain its current
// event (queued events beyond that are discarded), and fails every
// pending Request with ErrBusShutdown. Idempotent.
func (b *Bus) Stop() {
	if !b.running.CompareAndSwap(true, false) {
		return
	}
	b.qMu.Lock()
	b.qCond.Broadcast()
	b.qMu.Unlock()
	b.wg.Wait()

	b.shutdownOnce.Do(func() { close(b.shutdownCh) })

	b.reqMu.Lock()
	b.pending = make(map[string]chan Event)
	b.reqMu.Unlock()
}

// Publish enqueues an event. If the queue is at capacity the oldest
// queued event is dropped (queue_overflow/events_dropped both
// increment) and the new event is always accepted. Publish never
// blocks and never fails.
func (b *Bus) Publish(eventType EventType, source string, data map[string]any) {
	ev := Event{
		ID:        fmt.Sprintf("evt_%d", b.nextEventID.Add(1)),
		Type:      eventType,
		Source:    source,
		Data:      data,
		Timestamp: time.Now(),
	}
	if data != nil {
		ev.CorrelationID = ev.correlationID()
	}

	b.qMu.Lock()
	if len(b.queue) >= b.maxQueueSize {
		b.queue = b.queue[1:]
		b.dropped.Add(1)
		b.logger.Warn().Str("event_type", string(eventType)).Msg("bus queue overflow, dropped oldest event")
	}
	b.queue = append(b.queue, ev)
	b.qCond.Signal()
	b.qMu.Unlock()

	b.published.Add(1)
}

// Subscribe registers callback for eventType and returns a subscription
// id usable with Unsubscribe. Callbacks run serialized on the worker
// goroutine, in publish order per event type.
func (b *Bus) Subscribe(eventType EventType, callback Handler) uint64 {
	id := b.nextSubID.Add(1)
	b.subsMu.Lock()
	b.subs[eventType] = append(b.subs[eventType], subscription{id: id, callback: callback})
	b.subsMu.Unlock()
	return id
}

// Unsubscribe removes the subscription with the given id from every
// event type bucket. Idempotent and silent if the id is unknown.
func (b *Bus) Unsubscribe(id uint64) {
	b.subsMu.Lock()
	defer b.subsMu.Unlock()
	for eventType, subs := range b.subs {
		for i, s := range subs {
			if s.id == id {
				b.subs[eventType] = append(subs[:i], subs[i+1:]...)
				return
			}
		}
	}
}

// Request publishes a request event for eventType and blocks the
// caller (not the worker) until a matching Respond call arrives, the
// timeout elapses, or the bus is stopped.
func (b *Bus) Request(eventType EventType, data map[string]any, timeout time.Duration) (Event, error) {
	corrID := fmt.Sprintf("corr_%d", b.nextCorrID.Add(1))
	ch := make(chan Event, 1)

	b.reqMu.Lock()
	b.pending[corrID] = ch
	b.reqMu.Unlock()

	reqData := map[string]any{
		"data":           data,
		"correlation_id": corrID,
		"is_request":     true,
	}
	b.Publish(eventType, "bus.request", reqData)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-ch:
		return ev, nil
	case <-timer.C:
		b.reqMu.Lock()
		delete(b.pending, corrID)
		b.reqMu.Unlock()
		return Event{}, ErrRequestTimeout
	case <-b.shutdownCh:
		return Event{}, ErrBusShutdown
	}
}

// Respond completes a pending Request identified by correlationID by
// publishing a response event. The worker recognizes this event as a
// response (non-empty correlation_id, no is_request) and routes it
// directly to the blocked caller instead of broadcasting it.
func (b *Bus) Respond(eventType EventType, source, correlationID string, data map[string]any) {
	respData := map[string]any{
		"data":           data,
		"correlation_id": correlationID,
	}
	b.Publish(eventType, source, respData)
}

// Running reports whether the worker goroutine is currently active.
func (b *Bus) Running() bool {
	return b.running.Load()
}

// GetMetrics returns a point-in-time snapshot of the bus's counters.
func (b *Bus) GetMetrics() Metrics {
	b.qMu.Lock()
	qSize := len(b.queue)
	b.qMu.Unlock()

	return Metrics{
		EventsPublished: b.published.Load(),
		EventsProcessed: b.processed.Load(),
		EventsDropped:   b.dropped.Load(),
		HandlerErrors:   b.handlerErrs.Load(),
		QueueSize:       uint64(qSize),
		QueueOverflow:   b.dropped.Load(),
	}
}

func (b *Bus) run() {
	defer b.wg.Done()
	for {
		b.qMu.Lock()
		for len(b.queue) == 0 && b.running.Load() {
			b.qCond.Wait()
		}
		if !b.running.Load() {
			// Stop was called: discard whatever is still queued rather
			// than draining it, so shutdown doesn't keep dispatching
			// events to subscribers that may themselves be tearing down.
			b.queue = nil
			b.qMu.Unlock()
			return
		}
		ev := b.queue[0]
		b.queue = b.queue[1:]
		b.qMu.Unlock()

		b.dispatch(ev)
		b.processed.Add(1)
	}
}

func (b *Bus) dispatch(ev Event) {
	if ev.isRequest() {
		b.broadcast(ev)
		return
	}
	if corrID := ev.correlationID(); corrID != "" {
		b.completeRequest(corrID, ev)
		return
	}
	b.broadcast(ev)
}

func (b *Bus) completeRequest(corrID string, ev Event) {
	b.reqMu.Lock()
	ch, ok := b.pending[corrID]
	if ok {
		delete(b.pending, corrID)
	}
	b.reqMu.Unlock()

	if !ok {
		return
	}
	ch <- ev
}

func (b *Bus) broadcast(ev Event) {
	b.subsMu.Lock()
	subs := make([]subscription, len(b.subs[ev.Type]))
	copy(subs, b.subs[ev.Type])
	b.subsMu.Unlock()

	for _, s := range subs {
		b.invoke(s, ev)
	}
}

func (b *Bus) invoke(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.handlerErrs.Add(1)
			b.logger.Warn().
				Interface("panic", r).
				Str("event_type", string(ev.Type)).
				Uint64("subscription_id", s.id).
				Msg("bus subscriber panicked, continuing")
		}
	}()
	s.callback(ev)
}
