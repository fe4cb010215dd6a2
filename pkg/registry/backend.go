package registry

import (
	"sync/atomic"
	"time"
)

// Backend is an upstream TCP endpoint, real or honeypot. Identity
// fields are set once at construction and never change; mutable state
// is held in atomics so it can be read and updated without any lock.
type Backend struct {
	ID         string
	Host       string
	Port       int
	IsHoneypot bool
	Weight     float64

	healthy              atomic.Bool
	currentClients       atomic.Int64
	totalRequests        atomic.Uint64
	successfulResponses  atomic.Uint64
	failedResponses      atomic.Uint64
	totalResponseTimeMS  atomic.Int64
	lastRequestTimeNanos atomic.Int64
	lastHealthCheckNanos atomic.Int64
}

// NewBackend constructs a Backend, healthy by default (consistent with
// registry.Registry.SnapshotHealthy not excluding a backend before its
// first health check has run). weight <= 0 is normalized to 1.0.
func NewBackend(id, host string, port int, isHoneypot bool, weight float64) *Backend {
	if weight <= 0 {
		weight = 1.0
	}
	b := &Backend{
		ID:         id,
		Host:       host,
		Port:       port,
		IsHoneypot: isHoneypot,
		Weight:     weight,
	}
	b.healthy.Store(true)
	return b
}

// Healthy reports the backend's current health bit.
func (b *Backend) Healthy() bool {
	return b.healthy.Load()
}

// SetHealthy stores the new health bit, stamps LastHealthCheck, and
// reports whether this call changed the value (a "health transition").
func (b *Backend) SetHealthy(healthy bool) (transitioned bool) {
	was := b.healthy.Swap(healthy)
	b.lastHealthCheckNanos.Store(time.Now().UnixNano())
	return was != healthy
}

// CurrentClients returns the number of clients currently proxied to
// this backend.
func (b *Backend) CurrentClients() int64 {
	return b.currentClients.Load()
}

// Acquire marks one more client proxied to this backend: increments
// CurrentClients and TotalRequests, and stamps LastRequestTime. Must be
// matched by exactly one Release on the same backend.
func (b *Backend) Acquire() {
	b.currentClients.Add(1)
	b.totalRequests.Add(1)
	b.lastRequestTimeNanos.Store(time.Now().UnixNano())
}

// Release decrements CurrentClients, clamped at zero: current_clients
// never goes negative, even if (by a bug elsewhere) Release is called
// more often than Acquire.
func (b *Backend) Release() {
	for {
		cur := b.currentClients.Load()
		if cur <= 0 {
			return
		}
		if b.currentClients.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// TotalRequests returns the monotone count of selections made for this
// backend.
func (b *Backend) TotalRequests() uint64 {
	return b.totalRequests.Load()
}

// RecordSuccess accounts a successful REQUEST_PROCESSED outcome.
func (b *Backend) RecordSuccess(responseTime time.Duration) {
	b.successfulResponses.Add(1)
	b.totalResponseTimeMS.Add(responseTime.Milliseconds())
}

// RecordFailure accounts a failed REQUEST_PROCESSED outcome.
func (b *Backend) RecordFailure() {
	b.failedResponses.Add(1)
}

// SuccessfulResponses returns the count of REQUEST_PROCESSED events
// with success=true attributed to this backend.
func (b *Backend) SuccessfulResponses() uint64 {
	return b.successfulResponses.Load()
}

// FailedResponses returns the count of REQUEST_PROCESSED events with
// success=false attributed to this backend.
func (b *Backend) FailedResponses() uint64 {
	return b.failedResponses.Load()
}

// AverageResponseTimeMS returns the mean response time across all
// recorded outcomes, or 0 if none have been recorded.
func (b *Backend) AverageResponseTimeMS() float64 {
	total := b.successfulResponses.Load() + b.failedResponses.Load()
	if total == 0 {
		return 0
	}
	return float64(b.totalResponseTimeMS.Load()) / float64(total)
}

// LastRequestTime returns the timestamp of the last Acquire call, or
// the zero time if none has happened yet.
func (b *Backend) LastRequestTime() time.Time {
	n := b.lastRequestTimeNanos.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// LastHealthCheck returns the timestamp of the last SetHealthy call, or
// the zero time if none has happened yet.
func (b *Backend) LastHealthCheck() time.Time {
	n := b.lastHealthCheckNanos.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
