package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmonastyrskiy/HeavenGate/pkg/bus"
)

func TestAddBackendSplitsPools(t *testing.T) {
	r := New(nil)
	r.AddBackend(NewBackend("r1", "10.0.0.1", 8080, false, 1.0))
	r.AddBackend(NewBackend("h1", "10.0.0.2", 8080, true, 1.0))

	assert.Len(t, r.SnapshotHealthy(false), 1)
	assert.Len(t, r.SnapshotHealthy(true), 1)
	assert.False(t, r.PoolEmpty(false))
	assert.False(t, r.PoolEmpty(true))
}

func TestAddBackendPublishesServiceRegistered(t *testing.T) {
	b := bus.New(10)
	b.Start()
	defer b.Stop()

	received := make(chan bus.Event, 1)
	b.Subscribe(bus.ServiceRegistered, func(e bus.Event) {
		received <- e
	})

	r := New(b)
	r.AddBackend(NewBackend("r1", "10.0.0.1", 8080, false, 2.5))

	select {
	case e := <-received:
		assert.Equal(t, "r1", e.Data["server_id"])
		assert.Equal(t, 2.5, e.Data["weight"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for SERVICE_REGISTERED")
	}
}

func TestDuplicateBackendIDIgnored(t *testing.T) {
	r := New(nil)
	r.AddBackend(NewBackend("r1", "10.0.0.1", 8080, false, 1.0))
	r.AddBackend(NewBackend("r1", "10.0.0.9", 9090, false, 1.0))

	backends := r.SnapshotHealthy(false)
	require.Len(t, backends, 1)
	assert.Equal(t, "10.0.0.1", backends[0].Host)
}

func TestSnapshotHealthyExcludesUnhealthy(t *testing.T) {
	r := New(nil)
	b1 := NewBackend("r1", "10.0.0.1", 8080, false, 1.0)
	b2 := NewBackend("r2", "10.0.0.2", 8080, false, 1.0)
	r.AddBackend(b1)
	r.AddBackend(b2)

	b2.SetHealthy(false)

	healthy := r.SnapshotHealthy(false)
	require.Len(t, healthy, 1)
	assert.Equal(t, "r1", healthy[0].ID)
}

func TestPoolEmptyVsNoHealthy(t *testing.T) {
	r := New(nil)
	assert.True(t, r.PoolEmpty(false))

	b1 := NewBackend("r1", "10.0.0.1", 8080, false, 1.0)
	r.AddBackend(b1)
	assert.False(t, r.PoolEmpty(false))

	b1.SetHealthy(false)
	assert.False(t, r.PoolEmpty(false))
	assert.Empty(t, r.SnapshotHealthy(false))
}

func TestReleaseBackendDecrementsCurrentClients(t *testing.T) {
	r := New(nil)
	b1 := NewBackend("r1", "10.0.0.1", 8080, false, 1.0)
	r.AddBackend(b1)

	b1.Acquire()
	b1.Acquire()
	assert.Equal(t, int64(2), b1.CurrentClients())

	r.ReleaseBackend("r1")
	assert.Equal(t, int64(1), b1.CurrentClients())

	r.ReleaseBackend("does-not-exist")
	assert.Equal(t, int64(1), b1.CurrentClients())
}

func TestGetStatsAggregatesAcrossPools(t *testing.T) {
	r := New(nil)
	b1 := NewBackend("r1", "10.0.0.1", 8080, false, 1.0)
	b2 := NewBackend("h1", "10.0.0.2", 8080, true, 1.0)
	r.AddBackend(b1)
	r.AddBackend(b2)

	b1.Acquire()
	b2.Acquire()
	b2.SetHealthy(false)

	r.RecordRouted(false, "round_robin")
	r.RecordRouted(false, "round_robin")
	r.RecordRouted(true, "ip_hash")
	r.RecordRoutingError()

	stats := r.GetStats()
	assert.Equal(t, 1, stats.TotalRealBackends)
	assert.Equal(t, 1, stats.TotalHoneypotBackends)
	assert.Equal(t, 1, stats.HealthyRealBackends)
	assert.Equal(t, 0, stats.HealthyHoneypotBackends)
	assert.Equal(t, int64(2), stats.TotalConnections)
	assert.Equal(t, uint64(2), stats.RequestsRoutedToReal)
	assert.Equal(t, uint64(1), stats.RequestsRoutedToHoneypot)
	assert.Equal(t, uint64(1), stats.RoutingErrors)
	assert.Equal(t, uint64(2), stats.StrategyUsage["round_robin"])
	assert.Equal(t, uint64(1), stats.StrategyUsage["ip_hash"])
	assert.False(t, stats.StartTime.IsZero())
}

func TestAllReturnsBothPools(t *testing.T) {
	r := New(nil)
	r.AddBackend(NewBackend("r1", "10.0.0.1", 8080, false, 1.0))
	r.AddBackend(NewBackend("h1", "10.0.0.2", 8080, true, 1.0))

	assert.Len(t, r.All(), 2)
}
