package healthcheck

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mmonastyrskiy/HeavenGate/pkg/bus"
	"github.com/mmonastyrskiy/HeavenGate/pkg/log"
	"github.com/mmonastyrskiy/HeavenGate/pkg/registry"
)

const (
	// DefaultInterval is the time between probe passes over every
	// registered backend.
	DefaultInterval = 30 * time.Second
	// DefaultTimeout bounds a single TCP connect attempt.
	DefaultTimeout = 2 * time.Second
)

// Checker is the single worker that probes every backend in a
// registry.Registry on a fixed cadence.
type Checker struct {
	registry *registry.Registry
	bus      *bus.Bus
	interval time.Duration
	timeout  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
	subID  uint64
}

// New constructs a Checker. interval or timeout <= 0 are normalized to
// their defaults.
func New(r *registry.Registry, b *bus.Bus, interval, timeout time.Duration) *Checker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Checker{
		registry: r,
		bus:      b,
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Start subscribes to externally pushed SERVICE_HEALTH_UPDATE events
// and spawns the single probe-loop goroutine.
func (c *Checker) Start() {
	c.subID = c.bus.Subscribe(bus.ServiceHealthUpdate, c.handleExternalUpdate)

	c.wg.Add(1)
	go c.run()
}

// Stop signals the probe loop to exit, unsubscribes, and joins the
// worker goroutine. Any in-flight probe's socket closes on its own
// connect timeout.
func (c *Checker) Stop() {
	close(c.stopCh)
	c.wg.Wait()
	c.bus.Unsubscribe(c.subID)
}

func (c *Checker) run() {
	defer c.wg.Done()

	logger := log.WithComponent("healthcheck")
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.probeAll(logger)
		}
	}
}

func (c *Checker) probeAll(logger zerolog.Logger) {
	for _, b := range c.registry.All() {
		c.probeOne(b, logger)
	}
}

func (c *Checker) probeOne(b *registry.Backend, logger zerolog.Logger) {
	addr := fmt.Sprintf("%s:%d", b.Host, b.Port)
	conn, err := net.DialTimeout("tcp", addr, c.timeout)
	healthy := err == nil
	if conn != nil {
		conn.Close()
	}

	if !b.SetHealthy(healthy) {
		return
	}

	logger.Info().
		Str("backend_id", b.ID).
		Bool("healthy", healthy).
		Msg("backend health transition")

	c.bus.Publish(bus.ServiceHealthUpdate, "healthcheck",
		bus.ServiceHealthUpdateData(b.ID, b.Host, b.Port, b.IsHoneypot, healthy, b.CurrentClients()))
}

// handleExternalUpdate applies a SERVICE_HEALTH_UPDATE event (whether
// published by this checker's own probe or by an external monitor) to
// the matching backend's health bit. Applying an already-current value
// is a no-op, so receiving the checker's own publications back through
// this subscription does not loop.
func (c *Checker) handleExternalUpdate(e bus.Event) {
	serverID, _ := e.Data["server_id"].(string)
	healthy, _ := e.Data["healthy"].(bool)
	if serverID == "" {
		return
	}

	b, ok := c.registry.BackendByID(serverID)
	if !ok {
		return
	}
	b.SetHealthy(healthy)
}
