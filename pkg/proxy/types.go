package proxy

import (
	"net"
	"sync"
	"sync/atomic"

	"github.com/mmonastyrskiy/HeavenGate/pkg/metrics"
	"github.com/mmonastyrskiy/HeavenGate/pkg/registry"
)

type clientState int32

const (
	stateReadInitial clientState = iota
	stateAwaitingClassification
	stateConnectBackend
	stateProxying
	stateClosed
)

// clientConnection is the per-client state machine record: one
// goroutine owns the client socket from accept to close, but the
// record itself is also reached from the REQUEST_CLASSIFIED subscriber
// (keyed by id, never by pointer identity alone) and from the two
// relay goroutines once proxying starts.
type clientConnection struct {
	id   string
	ip   string
	conn net.Conn

	state atomic.Int32

	// firstChunk is written once, during READ_INITIAL, before the
	// client is published for classification, and only read
	// afterwards — safe without synchronization.
	firstChunk []byte

	// classifyTimer is started when REQUEST_FOR_CLASSIFICATION is
	// published and observed into ClassificationLatency the moment
	// REQUEST_CLASSIFIED names this client, same single-writer
	// lifecycle as firstChunk.
	classifyTimer *metrics.Timer

	backend     *registry.Backend
	backendConn net.Conn

	closeOnce sync.Once
}

func (c *clientConnection) setState(s clientState) {
	c.state.Store(int32(s))
}

func (c *clientConnection) getState() clientState {
	return clientState(c.state.Load())
}
