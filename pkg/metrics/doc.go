/*
Package metrics defines HeavenGate's Prometheus instruments and the
/healthz, /readyz, /livez HTTP handlers.

Metrics are package-level prometheus.Collector variables registered at
init, updated directly by pkg/proxy (routing duration, classification
latency, selection failures) and periodically by Collector, which
snapshots bus.Bus.GetMetrics, registry.Registry.GetStats and the
proxy's active-client count into gauges on a fixed interval — the same init-time-registration, package-level-var
pattern used throughout this corpus, just pointed at HeavenGate's own
domain instead of cluster/Raft state.
*/
package metrics
