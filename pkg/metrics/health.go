package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy"/"unhealthy" (GetHealth) or "ready"/"not_ready" (GetReadiness)
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
	StartTime  time.Time         `json:"-"`
}

// Prober reports a component's health by querying it live at call
// time, rather than replaying a status cached at registration.
type Prober func() (healthy bool, message string)

var (
	healthChecker = &HealthChecker{
		probes:    make(map[string]Prober),
		startTime: time.Now(),
	}
)

// HealthChecker holds the live probes that answer /healthz and
// /readyz.
type HealthChecker struct {
	mu        sync.RWMutex
	probes    map[string]Prober
	critical  []string
	startTime time.Time
	version   string
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// RegisterProbe registers name against a function that reports its
// current health on every call. Included in /healthz; not required
// for readiness. Re-registering a name replaces its probe.
func RegisterProbe(name string, probe Prober) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.probes[name] = probe
}

// RegisterCritical registers name's probe the same way RegisterProbe
// does, and additionally marks it required for readiness: /readyz is
// not_ready while name is unhealthy or unregistered.
func RegisterCritical(name string, probe Prober) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.probes[name] = probe
	for _, c := range healthChecker.critical {
		if c == name {
			return
		}
	}
	healthChecker.critical = append(healthChecker.critical, name)
}

// GetHealth polls every registered probe live and aggregates the
// result.
func GetHealth() HealthStatus {
	probes, version, startTime := healthChecker.snapshot()

	status := "healthy"
	components := make(map[string]string, len(probes))
	for name, probe := range probes {
		if healthy, message := probe(); !healthy {
			status = "unhealthy"
			components[name] = "unhealthy: " + message
		} else {
			components[name] = "healthy"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Version:    version,
		Uptime:     time.Since(startTime).String(),
		StartTime:  startTime,
	}
}

// GetReadiness polls live every probe registered via RegisterCritical,
// plus the always-required bus, registry and proxy components. A
// required component that has never been registered is treated as
// not_ready, the same as one whose probe currently reports unhealthy.
func GetReadiness() HealthStatus {
	probes, version, startTime := healthChecker.snapshot()

	critical := []string{"bus", "registry", "proxy"}
	healthChecker.mu.RLock()
	for _, name := range healthChecker.critical {
		known := false
		for _, c := range critical {
			if c == name {
				known = true
				break
			}
		}
		if !known {
			critical = append(critical, name)
		}
	}
	healthChecker.mu.RUnlock()

	status := "ready"
	message := ""
	components := make(map[string]string, len(critical))

	for _, name := range critical {
		probe, exists := probes[name]
		if !exists {
			status = "not_ready"
			message = "waiting for " + name + " initialization"
			components[name] = "not registered"
			continue
		}
		if healthy, msg := probe(); !healthy {
			status = "not_ready"
			message = "waiting for " + name
			components[name] = "not ready: " + msg
		} else {
			components[name] = "ready"
		}
	}

	return HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: components,
		Message:    message,
		Version:    version,
		Uptime:     time.Since(startTime).String(),
		StartTime:  startTime,
	}
}

func (hc *HealthChecker) snapshot() (probes map[string]Prober, version string, startTime time.Time) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	probes = make(map[string]Prober, len(hc.probes))
	for name, p := range hc.probes {
		probes[name] = p
	}
	return probes, hc.version, hc.startTime
}

// HealthHandler returns an HTTP handler for the /healthz endpoint
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()

		w.Header().Set("Content-Type", "application/json")

		statusCode := http.StatusOK
		if health.Status == "unhealthy" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(health)
	}
}

// ReadyHandler returns an HTTP handler for the /readyz endpoint
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()

		w.Header().Set("Content-Type", "application/json")

		statusCode := http.StatusOK
		if readiness.Status != "ready" {
			statusCode = http.StatusServiceUnavailable
		}
		w.WriteHeader(statusCode)

		_ = json.NewEncoder(w).Encode(readiness)
	}
}

// LivenessHandler returns a simple liveness check (always returns 200 if process is running)
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
			"uptime": time.Since(healthChecker.startTime).String(),
		})
	}
}
