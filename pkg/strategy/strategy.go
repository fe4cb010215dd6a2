package strategy

import (
	"math"
	"math/rand"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/mmonastyrskiy/HeavenGate/pkg/registry"
)

// Name identifies a selection strategy, used for stats accounting and
// config parsing.
type Name string

const (
	RoundRobin       Name = "round_robin"
	LeastConnections Name = "least_connections"
	IPHash           Name = "ip_hash"
	Weighted         Name = "weighted"
)

// Func selects one backend from a non-empty list. Callers must never
// pass an empty slice; NO_HEALTHY_BACKENDS / NO_BACKENDS_REGISTERED are
// resolved by the caller before a Func is invoked.
type Func func(backends []*registry.Backend, clientIP string) *registry.Backend

// Selector holds the one stateful piece a pure-function API still
// needs: the round-robin cursor, shared across every pool. WEIGHTED
// draws use the package-level math/rand source.
type Selector struct {
	counter atomic.Uint64
}

// NewSelector returns a ready-to-use Selector with its round-robin
// cursor at zero.
func NewSelector() *Selector {
	return &Selector{}
}

// RoundRobin returns backends[i % len(backends)] for a single monotone
// counter i shared across all calls to this Selector, regardless of
// which pool is passed in.
func (s *Selector) RoundRobin(backends []*registry.Backend, _ string) *registry.Backend {
	i := s.counter.Add(1) - 1
	return backends[i%uint64(len(backends))]
}

// LeastConnections returns the backend with the fewest current
// clients, ties broken by first occurrence in backends.
func (s *Selector) LeastConnections(backends []*registry.Backend, _ string) *registry.Backend {
	best := backends[0]
	bestCount := best.CurrentClients()
	for _, b := range backends[1:] {
		if c := b.CurrentClients(); c < bestCount {
			best = b
			bestCount = c
		}
	}
	return best
}

// IPHash returns backends[stableHash(clientIP) % len(backends)]. An
// empty clientIP falls back to RoundRobin.
func (s *Selector) IPHash(backends []*registry.Backend, clientIP string) *registry.Backend {
	if clientIP == "" {
		return s.RoundRobin(backends, clientIP)
	}
	h := xxhash.Sum64String(clientIP)
	return backends[h%uint64(len(backends))]
}

// Weighted falls back to RoundRobin when the sum of the backends' raw
// weights is <= 0. Otherwise it draws a uniform integer in [1, W]
// where W is the sum of each backend's weight (rounded, floored at 1),
// and returns the first backend whose cumulative weight reaches the
// draw.
func (s *Selector) Weighted(backends []*registry.Backend, clientIP string) *registry.Backend {
	weights := make([]int64, len(backends))
	var total int64
	var rawTotal float64
	for i, b := range backends {
		rawTotal += b.Weight
		w := int64(math.Round(b.Weight))
		if w < 1 {
			w = 1
		}
		weights[i] = w
		total += w
	}
	if rawTotal <= 0 {
		return s.RoundRobin(backends, clientIP)
	}

	draw := rand.Int63n(total) + 1
	var cumulative int64
	for i, w := range weights {
		cumulative += w
		if cumulative >= draw {
			return backends[i]
		}
	}
	return backends[len(backends)-1]
}

// Func returns the Func value bound to name, or (nil, false) if name
// is not one of the four recognised strategies.
func (s *Selector) Func(name Name) (Func, bool) {
	switch name {
	case RoundRobin:
		return s.RoundRobin, true
	case LeastConnections:
		return s.LeastConnections, true
	case IPHash:
		return s.IPHash, true
	case Weighted:
		return s.Weighted, true
	default:
		return nil, false
	}
}
