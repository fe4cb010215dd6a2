package proxy

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mmonastyrskiy/HeavenGate/pkg/bus"
	"github.com/mmonastyrskiy/HeavenGate/pkg/dashboard"
	"github.com/mmonastyrskiy/HeavenGate/pkg/log"
	"github.com/mmonastyrskiy/HeavenGate/pkg/metrics"
	"github.com/mmonastyrskiy/HeavenGate/pkg/registry"
	"github.com/mmonastyrskiy/HeavenGate/pkg/strategy"
)

const (
	// DefaultFirstChunkSize bounds the READ_INITIAL buffer and every
	// relay read thereafter.
	DefaultFirstChunkSize = 8192
	// DefaultConnectTimeout bounds CONNECT_BACKEND dials.
	DefaultConnectTimeout = 5 * time.Second
)

// Config configures a Proxy. Strategy may be changed at runtime via
// Proxy.SetStrategy.
type Config struct {
	ListenAddr     string
	Strategy       strategy.Name
	FirstChunkSize int
	ConnectTimeout time.Duration
}

func (c Config) firstChunkSize() int {
	if c.FirstChunkSize <= 0 {
		return DefaultFirstChunkSize
	}
	return c.FirstChunkSize
}

func (c Config) connectTimeout() time.Duration {
	if c.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return c.ConnectTimeout
}

// Stats is the supplemented performance snapshot carried over from the
// original LoadBalancer's PerformanceMetrics: routing time is
// accumulated around strategy selection only, not connect or relay.
type Stats struct {
	TotalRoutingTimeNS       int64
	TotalRoutingOperations   int64
	BackendSelectionFailures int64
}

// Proxy is the TCP acceptor and per-client state machine.
type Proxy struct {
	cfg       Config
	registry  *registry.Registry
	bus       *bus.Bus
	selector  *strategy.Selector
	dashboard dashboard.Notifier

	strategyMu sync.Mutex
	strategy   strategy.Name

	listener net.Listener
	running  atomic.Bool

	clientsMu sync.Mutex
	clients   map[string]*clientConnection

	mappingMu sync.Mutex
	mapping   map[string]*registry.Backend

	classifiedSubID uint64
	processedSubID  uint64

	wg sync.WaitGroup

	totalRoutingTimeNS       atomic.Int64
	totalRoutingOperations   atomic.Int64
	backendSelectionFailures atomic.Int64
}

// New constructs a Proxy. dashboardNotifier may be nil, in which case
// routing still succeeds and no external notification is sent.
func New(cfg Config, r *registry.Registry, b *bus.Bus, selector *strategy.Selector, dashboardNotifier dashboard.Notifier) *Proxy {
	if cfg.Strategy == "" {
		cfg.Strategy = strategy.RoundRobin
	}
	return &Proxy{
		cfg:       cfg,
		registry:  r,
		bus:       b,
		selector:  selector,
		dashboard: dashboardNotifier,
		strategy:  cfg.Strategy,
		clients:   make(map[string]*clientConnection),
		mapping:   make(map[string]*registry.Backend),
	}
}

// SetStrategy changes the active selection strategy; it takes effect
// for the next classification resolved after the call.
func (p *Proxy) SetStrategy(name strategy.Name) {
	p.strategyMu.Lock()
	p.strategy = name
	p.strategyMu.Unlock()
}

func (p *Proxy) currentStrategy() strategy.Name {
	p.strategyMu.Lock()
	defer p.strategyMu.Unlock()
	return p.strategy
}

// Start binds the listener, subscribes to the bus, and spawns the
// accept loop. The accept loop runs on its own goroutine; Stop joins
// it.
func (p *Proxy) Start() error {
	ln, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("proxy: listen %s: %w", p.cfg.ListenAddr, err)
	}
	p.listener = ln
	p.running.Store(true)

	p.classifiedSubID = p.bus.Subscribe(bus.RequestClassified, p.handleClassified)
	p.processedSubID = p.bus.Subscribe(bus.RequestProcessed, p.handleProcessed)

	p.wg.Add(1)
	go p.acceptLoop()

	log.WithComponent("proxy").Info().Str("addr", ln.Addr().String()).Msg("proxy listening")
	return nil
}

// Stop stops accepting new connections and joins the accept loop.
// Active clients are not forcibly disconnected: their own relay
// goroutines terminate when either socket closes naturally, and each
// releases its backend on the way out.
func (p *Proxy) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.listener.Close()
	p.wg.Wait()
	p.bus.Unsubscribe(p.classifiedSubID)
	p.bus.Unsubscribe(p.processedSubID)
}

// GetStats returns a snapshot of the routing-time performance counters.
func (p *Proxy) GetStats() Stats {
	return Stats{
		TotalRoutingTimeNS:       p.totalRoutingTimeNS.Load(),
		TotalRoutingOperations:   p.totalRoutingOperations.Load(),
		BackendSelectionFailures: p.backendSelectionFailures.Load(),
	}
}

// ActiveClients returns the number of client connections currently
// tracked by the proxy, from accept through close.
func (p *Proxy) ActiveClients() int {
	p.clientsMu.Lock()
	defer p.clientsMu.Unlock()
	return len(p.clients)
}

// Running reports whether the accept loop is currently listening.
func (p *Proxy) Running() bool {
	return p.running.Load()
}

func (p *Proxy) acceptLoop() {
	defer p.wg.Done()
	logger := log.WithComponent("proxy")

	for {
		conn, err := p.listener.Accept()
		if err != nil {
			if !p.running.Load() {
				return
			}
			logger.Warn().Err(err).Msg("accept failed")
			continue
		}
		go p.handleNewConnection(conn)
	}
}

func (p *Proxy) handleNewConnection(conn net.Conn) {
	logger := log.WithComponent("proxy")

	clientIP := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = host
	}
	clientID := fmt.Sprintf("%s_%d", clientIP, time.Now().UnixNano())

	cc := &clientConnection{id: clientID, ip: clientIP, conn: conn}
	cc.setState(stateReadInitial)

	p.clientsMu.Lock()
	p.clients[clientID] = cc
	p.clientsMu.Unlock()

	p.bus.Publish(bus.NewClientConnection, "proxy",
		bus.NewClientConnectionData(clientIP, clientID, time.Now().UnixMilli()))

	p.mappingMu.Lock()
	backend, sticky := p.mapping[clientIP]
	p.mappingMu.Unlock()

	if sticky && backend.Healthy() {
		cc.backend = backend
		backend.Acquire()
		p.connectAndProxy(cc, backend, false)
		return
	}

	buf := make([]byte, p.cfg.firstChunkSize())
	n, err := conn.Read(buf)
	if err != nil {
		logger.Warn().Str("client_id", clientID).Err(err).Msg("failed to read initial bytes")
		p.terminateClient(cc)
		return
	}
	cc.firstChunk = buf[:n]
	cc.setState(stateAwaitingClassification)
	cc.classifyTimer = metrics.NewTimer()

	p.bus.Publish(bus.RequestForClassification, "proxy",
		bus.RequestForClassificationData(clientIP, clientID, string(cc.firstChunk), time.Now().UnixMilli()))
}

// handleClassified resumes the client identified by data.client_id,
// running the selection pipeline and then CONNECT_BACKEND on its own
// goroutine so the bus worker is never blocked on a dial.
func (p *Proxy) handleClassified(e bus.Event) {
	clientID, _ := e.Data["client_id"].(string)
	clientIP, _ := e.Data["client_ip"].(string)
	classification, _ := e.Data["classification"].(string)
	if clientID == "" {
		return
	}

	p.clientsMu.Lock()
	cc, ok := p.clients[clientID]
	p.clientsMu.Unlock()
	if !ok {
		return
	}

	if cc.classifyTimer != nil {
		cc.classifyTimer.ObserveDuration(metrics.ClassificationLatency)
	}

	go p.resumeAfterClassification(cc, clientIP, classification == "malicious")
}

func (p *Proxy) resumeAfterClassification(cc *clientConnection, clientIP string, isMalicious bool) {
	logger := log.WithComponent("proxy")

	backend, strategyName, routingElapsed, routingErr := p.selectBackend(isMalicious, clientIP)
	if routingErr != nil {
		p.registry.RecordRoutingError()
		p.backendSelectionFailures.Add(1)
		metrics.BackendSelectionFailuresTotal.Inc()
		logger.Error().Str("client_id", cc.id).Str("kind", string(routingErr.Kind)).Msg("routing error")
		p.terminateClient(cc)
		return
	}

	backend.Acquire()
	cc.backend = backend

	p.mappingMu.Lock()
	p.mapping[clientIP] = backend
	p.mappingMu.Unlock()

	p.registry.RecordRouted(isMalicious, string(strategyName))

	p.bus.Publish(bus.RequestRouted, "proxy", bus.RequestRoutedData(
		clientIP, backend.ID, isMalicious, string(strategyName),
		backend.CurrentClients(), routingElapsed.Nanoseconds(), backend.TotalRequests()))

	if p.dashboard != nil {
		p.dashboard.NotifyUserRegistered(clientIP, backend.ID, isMalicious)
	}

	p.connectAndProxy(cc, backend, true)
}

// selectBackend resolves a pool, checks for empty/unhealthy pools, and
// applies the configured strategy, timing only the strategy
// application itself. The elapsed time is both accumulated into the
// proxy's own routing-time stats and returned so the caller can thread
// it into the REQUEST_ROUTED event.
func (p *Proxy) selectBackend(isMalicious bool, clientIP string) (*registry.Backend, strategy.Name, time.Duration, *RoutingError) {
	if p.registry.PoolEmpty(isMalicious) {
		return nil, "", 0, newRoutingError(NoBackendsRegistered, nil)
	}

	healthy := p.registry.SnapshotHealthy(isMalicious)
	if len(healthy) == 0 {
		return nil, "", 0, newRoutingError(NoHealthyBackends, nil)
	}

	name := p.currentStrategy()
	fn, ok := p.selector.Func(name)
	if !ok {
		fn = p.selector.RoundRobin
		name = strategy.RoundRobin
	}

	timer := metrics.NewTimer()
	backend := fn(healthy, clientIP)
	elapsed := timer.Duration()
	timer.ObserveDuration(metrics.RoutingDuration)

	p.totalRoutingTimeNS.Add(elapsed.Nanoseconds())
	p.totalRoutingOperations.Add(1)

	return backend, name, elapsed, nil
}

func (p *Proxy) connectAndProxy(cc *clientConnection, backend *registry.Backend, replayFirstChunk bool) {
	logger := log.WithComponent("proxy")
	cc.setState(stateConnectBackend)

	addr := fmt.Sprintf("%s:%d", backend.Host, backend.Port)
	backendConn, err := net.DialTimeout("tcp", addr, p.cfg.connectTimeout())
	if err != nil {
		logger.Warn().Str("client_id", cc.id).Str("backend_id", backend.ID).Err(err).Msg("connect to backend failed")
		p.terminateClient(cc)
		return
	}
	cc.backendConn = backendConn
	cc.setState(stateProxying)

	if replayFirstChunk && len(cc.firstChunk) > 0 {
		if _, err := backendConn.Write(cc.firstChunk); err != nil {
			logger.Warn().Str("client_id", cc.id).Err(err).Msg("failed to replay first chunk to backend")
			p.terminateClient(cc)
			return
		}
	}

	go p.relay(cc, cc.conn, backendConn)
	go p.relay(cc, backendConn, cc.conn)
}

// relay is one half-duplex pipe: read up to firstChunkSize bytes from
// src, write them to dst, repeat. Writes are chained — no new read
// starts until the prior write completes — preserving byte ordering
// on this half. EOF and any other read/write error both terminate the
// owning client.
func (p *Proxy) relay(cc *clientConnection, src, dst net.Conn) {
	buf := make([]byte, p.cfg.firstChunkSize())
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				p.terminateClient(cc)
				return
			}
		}
		if rerr != nil {
			p.terminateClient(cc)
			return
		}
	}
}

// terminateClient is the single, idempotent exit path for a client:
// closes both sockets, releases the backend (matching the one Acquire
// made at selection), and removes the client from the active-clients
// table.
func (p *Proxy) terminateClient(cc *clientConnection) {
	cc.closeOnce.Do(func() {
		cc.setState(stateClosed)
		cc.conn.Close()
		if cc.backendConn != nil {
			cc.backendConn.Close()
		}
		if cc.backend != nil {
			p.registry.ReleaseBackend(cc.backend.ID)
		}
		p.clientsMu.Lock()
		delete(p.clients, cc.id)
		p.clientsMu.Unlock()
	})
}

// handleProcessed accounts REQUEST_PROCESSED outcomes against the
// backend they name.
func (p *Proxy) handleProcessed(e bus.Event) {
	serverID, _ := e.Data["server_id"].(string)
	responseTimeMS, _ := e.Data["response_time_ms"].(int64)
	success, _ := e.Data["success"].(bool)

	backend, ok := p.registry.BackendByID(serverID)
	if !ok {
		return
	}
	if success {
		backend.RecordSuccess(time.Duration(responseTimeMS) * time.Millisecond)
	} else {
		backend.RecordFailure()
	}
}
