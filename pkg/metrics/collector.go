package metrics

import (
	"time"

	"github.com/mmonastyrskiy/HeavenGate/pkg/bus"
	"github.com/mmonastyrskiy/HeavenGate/pkg/registry"
)

// ActiveClientsReporter is satisfied by *proxy.Proxy. Declared locally
// instead of importing pkg/proxy: the proxy already imports this
// package to observe RoutingDuration and ClassificationLatency
// directly at the point they're measured, so the collector can only
// depend back on proxy through a narrow interface, never the package
// itself.
type ActiveClientsReporter interface {
	ActiveClients() int
}

// Collector periodically snapshots the bus and registry into the
// package's Prometheus gauges. Per-event counters and timings (routing
// duration, classification latency, selection failures) are observed
// directly by their owning packages instead of being polled here.
type Collector struct {
	bus      *bus.Bus
	registry *registry.Registry
	proxy    ActiveClientsReporter
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(b *bus.Bus, r *registry.Registry, p ActiveClientsReporter) *Collector {
	return &Collector{
		bus:      b,
		registry: r,
		proxy:    p,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15-second interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectBusMetrics()
	c.collectRegistryMetrics()
	c.collectProxyMetrics()
}

func (c *Collector) collectBusMetrics() {
	m := c.bus.GetMetrics()
	BusQueueSize.Set(float64(m.QueueSize))
	BusEventsPublishedTotal.Set(float64(m.EventsPublished))
	BusEventsProcessedTotal.Set(float64(m.EventsProcessed))
	BusEventsDroppedTotal.Set(float64(m.EventsDropped))
	BusHandlerErrorsTotal.Set(float64(m.HandlerErrors))
}

func (c *Collector) collectRegistryMetrics() {
	stats := c.registry.GetStats()

	BackendsTotal.WithLabelValues("real").Set(float64(stats.TotalRealBackends))
	BackendsTotal.WithLabelValues("honeypot").Set(float64(stats.TotalHoneypotBackends))
	BackendsHealthyTotal.WithLabelValues("real").Set(float64(stats.HealthyRealBackends))
	BackendsHealthyTotal.WithLabelValues("honeypot").Set(float64(stats.HealthyHoneypotBackends))

	RoutedRequestsTotal.WithLabelValues("real").Set(float64(stats.RequestsRoutedToReal))
	RoutedRequestsTotal.WithLabelValues("honeypot").Set(float64(stats.RequestsRoutedToHoneypot))
	RoutingErrorsTotal.Set(float64(stats.RoutingErrors))

	for name, count := range stats.StrategyUsage {
		StrategyUsageTotal.WithLabelValues(name).Set(float64(count))
	}

	for _, b := range c.registry.All() {
		BackendCurrentClients.WithLabelValues(b.ID).Set(float64(b.CurrentClients()))
	}
}

func (c *Collector) collectProxyMetrics() {
	ActiveClientsTotal.Set(float64(c.proxy.ActiveClients()))
}
