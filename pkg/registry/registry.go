package registry

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmonastyrskiy/HeavenGate/pkg/bus"
	"github.com/mmonastyrskiy/HeavenGate/pkg/log"
)

// Stats aggregates observability counters across both pools, returned
// by GetStats.
type Stats struct {
	RequestsRoutedToReal     uint64
	RequestsRoutedToHoneypot uint64
	RoutingErrors            uint64
	TotalRealBackends        int
	TotalHoneypotBackends    int
	HealthyRealBackends      int
	HealthyHoneypotBackends  int
	TotalConnections         int64
	StartTime                time.Time
	StrategyUsage            map[string]uint64
}

// Registry is the thread-safe inventory of real and honeypot backends.
// The two pools are guarded by a single mutex for list mutation; each
// Backend's own fields are lock-free atomics (see Backend).
type Registry struct {
	bus *bus.Bus

	mu       sync.Mutex
	real     []*Backend
	honeypot []*Backend
	byID     map[string]*Backend

	startTime time.Time

	requestsRoutedToReal     atomic.Uint64
	requestsRoutedToHoneypot atomic.Uint64
	routingErrors            atomic.Uint64

	strategyMu    sync.Mutex
	strategyUsage map[string]uint64
}

// New constructs an empty Registry. b may be nil in tests that do not
// need SERVICE_REGISTERED notifications.
func New(b *bus.Bus) *Registry {
	return &Registry{
		bus:           b,
		byID:          make(map[string]*Backend),
		startTime:     time.Now(),
		strategyUsage: make(map[string]uint64),
	}
}

// AddBackend appends backend to the pool selected by its IsHoneypot
// field and publishes SERVICE_REGISTERED. A duplicate id is accepted
// but logged as a warning no-op: the existing backend with that id is
// left in place.
func (r *Registry) AddBackend(b *Backend) {
	r.mu.Lock()
	if _, exists := r.byID[b.ID]; exists {
		r.mu.Unlock()
		log.WithComponent("registry").Warn().Str("backend_id", b.ID).Msg("duplicate backend id, ignoring")
		return
	}
	r.byID[b.ID] = b
	if b.IsHoneypot {
		r.honeypot = append(r.honeypot, b)
	} else {
		r.real = append(r.real, b)
	}
	r.mu.Unlock()

	if r.bus != nil {
		r.bus.Publish(bus.ServiceRegistered, "registry", bus.ServiceRegisteredData(b.ID, b.Host, b.Port, b.IsHoneypot, b.Weight))
	}
}

// ReleaseBackend finds the backend by id across both pools and
// decrements its current client count. Silent if not found.
func (r *Registry) ReleaseBackend(id string) {
	r.mu.Lock()
	b, ok := r.byID[id]
	r.mu.Unlock()
	if !ok {
		return
	}
	b.Release()
}

// BackendByID returns the backend with the given id, if registered.
func (r *Registry) BackendByID(id string) (*Backend, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.byID[id]
	return b, ok
}

// SnapshotHealthy returns a fresh slice of backends from the requested
// pool (malicious -> honeypot, benign -> real) whose Healthy() is true
// at the time of the call.
func (r *Registry) SnapshotHealthy(isMalicious bool) []*Backend {
	r.mu.Lock()
	pool := r.real
	if isMalicious {
		pool = r.honeypot
	}
	snapshot := make([]*Backend, len(pool))
	copy(snapshot, pool)
	r.mu.Unlock()

	healthy := make([]*Backend, 0, len(snapshot))
	for _, b := range snapshot {
		if b.Healthy() {
			healthy = append(healthy, b)
		}
	}
	return healthy
}

// PoolEmpty reports whether the requested pool has zero registered
// backends (healthy or not) — used to distinguish
// NO_BACKENDS_REGISTERED from NO_HEALTHY_BACKENDS.
func (r *Registry) PoolEmpty(isMalicious bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if isMalicious {
		return len(r.honeypot) == 0
	}
	return len(r.real) == 0
}

// RecordRouted accounts one successful selection for stats purposes.
func (r *Registry) RecordRouted(isMalicious bool, strategyName string) {
	if isMalicious {
		r.requestsRoutedToHoneypot.Add(1)
	} else {
		r.requestsRoutedToReal.Add(1)
	}
	r.strategyMu.Lock()
	r.strategyUsage[strategyName]++
	r.strategyMu.Unlock()
}

// RecordRoutingError accounts one failed selection attempt.
func (r *Registry) RecordRoutingError() {
	r.routingErrors.Add(1)
}

// GetStats aggregates counts across both pools for observability.
func (r *Registry) GetStats() Stats {
	r.mu.Lock()
	var totalConnections int64
	healthyReal, healthyHoneypot := 0, 0
	for _, b := range r.real {
		totalConnections += b.CurrentClients()
		if b.Healthy() {
			healthyReal++
		}
	}
	for _, b := range r.honeypot {
		totalConnections += b.CurrentClients()
		if b.Healthy() {
			healthyHoneypot++
		}
	}
	stats := Stats{
		TotalRealBackends:       len(r.real),
		TotalHoneypotBackends:   len(r.honeypot),
		HealthyRealBackends:     healthyReal,
		HealthyHoneypotBackends: healthyHoneypot,
		TotalConnections:        totalConnections,
	}
	r.mu.Unlock()

	stats.RequestsRoutedToReal = r.requestsRoutedToReal.Load()
	stats.RequestsRoutedToHoneypot = r.requestsRoutedToHoneypot.Load()
	stats.RoutingErrors = r.routingErrors.Load()
	stats.StartTime = r.startTime

	r.strategyMu.Lock()
	usage := make(map[string]uint64, len(r.strategyUsage))
	for k, v := range r.strategyUsage {
		usage[k] = v
	}
	r.strategyMu.Unlock()
	stats.StrategyUsage = usage

	return stats
}

// Ready reports whether the registry can currently route both kinds
// of traffic: at least one healthy backend in each pool. The message
// names whichever pool is the reason it can't.
func (r *Registry) Ready() (bool, string) {
	healthyReal := len(r.SnapshotHealthy(false))
	healthyHoneypot := len(r.SnapshotHealthy(true))

	switch {
	case healthyReal == 0 && healthyHoneypot == 0:
		return false, "no healthy backends in either pool"
	case healthyReal == 0:
		return false, "no healthy real backends"
	case healthyHoneypot == 0:
		return false, "no healthy honeypot backends"
	default:
		return true, ""
	}
}

// All returns every backend across both pools, for iteration by the
// health checker.
func (r *Registry) All() []*Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]*Backend, 0, len(r.real)+len(r.honeypot))
	all = append(all, r.real...)
	all = append(all, r.honeypot...)
	return all
}
