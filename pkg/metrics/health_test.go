package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestHealthChecker() *HealthChecker {
	return &HealthChecker{
		probes:    make(map[string]Prober),
		startTime: time.Now(),
	}
}

func TestRegisterProbe(t *testing.T) {
	healthChecker = newTestHealthChecker()

	RegisterProbe("test-component", func() (bool, string) { return true, "running" })

	if len(healthChecker.probes) != 1 {
		t.Errorf("expected 1 probe, got %d", len(healthChecker.probes))
	}

	healthy, message := healthChecker.probes["test-component"]()
	if !healthy {
		t.Error("component should be healthy")
	}
	if message != "running" {
		t.Errorf("expected message 'running', got '%s'", message)
	}
}

func TestGetHealth_AllHealthy(t *testing.T) {
	healthChecker = newTestHealthChecker()
	healthChecker.version = "1.0.0"

	RegisterProbe("proxy", func() (bool, string) { return true, "" })
	RegisterProbe("bus", func() (bool, string) { return true, "" })

	health := GetHealth()

	if health.Status != "healthy" {
		t.Errorf("expected status 'healthy', got '%s'", health.Status)
	}

	if len(health.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(health.Components))
	}

	if health.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", health.Version)
	}
}

func TestGetHealth_OneUnhealthy(t *testing.T) {
	healthChecker = newTestHealthChecker()

	RegisterProbe("proxy", func() (bool, string) { return true, "" })
	RegisterProbe("bus", func() (bool, string) { return false, "not connected" })

	health := GetHealth()

	if health.Status != "unhealthy" {
		t.Errorf("expected status 'unhealthy', got '%s'", health.Status)
	}

	if health.Components["bus"] != "unhealthy: not connected" {
		t.Errorf("unexpected bus status: %s", health.Components["bus"])
	}
}

func TestGetHealth_ReflectsLiveState(t *testing.T) {
	healthChecker = newTestHealthChecker()

	healthy := true
	RegisterProbe("bus", func() (bool, string) {
		if healthy {
			return true, ""
		}
		return false, "queue stalled"
	})

	if GetHealth().Status != "healthy" {
		t.Fatal("expected healthy before the underlying flag flips")
	}

	healthy = false
	if GetHealth().Status != "unhealthy" {
		t.Fatal("expected the probe's live state change to show up without re-registering it")
	}
}

func TestGetReadiness_AllReady(t *testing.T) {
	healthChecker = newTestHealthChecker()

	RegisterCritical("bus", func() (bool, string) { return true, "" })
	RegisterCritical("registry", func() (bool, string) { return true, "" })
	RegisterCritical("proxy", func() (bool, string) { return true, "" })

	readiness := GetReadiness()

	if readiness.Status != "ready" {
		t.Errorf("expected status 'ready', got '%s'", readiness.Status)
	}
}

func TestGetReadiness_MissingCriticalComponent(t *testing.T) {
	healthChecker = newTestHealthChecker()

	RegisterCritical("proxy", func() (bool, string) { return true, "" })
	// bus and registry not registered

	readiness := GetReadiness()

	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}

	if readiness.Message == "" {
		t.Error("expected message explaining why not ready")
	}
}

func TestGetReadiness_CriticalComponentUnhealthy(t *testing.T) {
	healthChecker = newTestHealthChecker()

	RegisterCritical("bus", func() (bool, string) { return false, "queue stalled" })
	RegisterCritical("registry", func() (bool, string) { return true, "" })
	RegisterCritical("proxy", func() (bool, string) { return true, "" })

	readiness := GetReadiness()

	if readiness.Status != "not_ready" {
		t.Errorf("expected status 'not_ready', got '%s'", readiness.Status)
	}
}

func TestGetReadiness_RecoversWhenProbeRecovers(t *testing.T) {
	healthChecker = newTestHealthChecker()

	RegisterCritical("bus", func() (bool, string) { return true, "" })
	RegisterCritical("proxy", func() (bool, string) { return true, "" })

	ready := false
	RegisterCritical("registry", func() (bool, string) {
		if ready {
			return true, ""
		}
		return false, "no healthy backends"
	})

	if GetReadiness().Status != "not_ready" {
		t.Fatal("expected not_ready while the registry has no healthy backends")
	}

	ready = true
	if GetReadiness().Status != "ready" {
		t.Fatal("expected ready once the probe reports healthy, with no re-registration")
	}
}

func TestHealthHandler(t *testing.T) {
	healthChecker = newTestHealthChecker()
	healthChecker.version = "test"

	RegisterProbe("test", func() (bool, string) { return true, "" })

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler := HealthHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if health.Status != "healthy" {
		t.Errorf("expected healthy status, got %s", health.Status)
	}

	if health.Version != "test" {
		t.Errorf("expected version 'test', got %s", health.Version)
	}
}

func TestHealthHandler_Unhealthy(t *testing.T) {
	healthChecker = newTestHealthChecker()

	RegisterProbe("test", func() (bool, string) { return false, "broken" })

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	handler := HealthHandler()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var health HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&health); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if health.Status != "unhealthy" {
		t.Errorf("expected unhealthy status, got %s", health.Status)
	}
}

func TestReadyHandler(t *testing.T) {
	healthChecker = newTestHealthChecker()

	RegisterCritical("bus", func() (bool, string) { return true, "" })
	RegisterCritical("registry", func() (bool, string) { return true, "" })
	RegisterCritical("proxy", func() (bool, string) { return true, "" })

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	handler := ReadyHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if readiness.Status != "ready" {
		t.Errorf("expected ready status, got %s", readiness.Status)
	}
}

func TestReadyHandler_NotReady(t *testing.T) {
	healthChecker = newTestHealthChecker()

	RegisterCritical("proxy", func() (bool, string) { return true, "" })
	// bus not registered

	req := httptest.NewRequest("GET", "/ready", nil)
	w := httptest.NewRecorder()

	handler := ReadyHandler()
	handler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var readiness HealthStatus
	if err := json.NewDecoder(w.Body).Decode(&readiness); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if readiness.Status != "not_ready" {
		t.Errorf("expected not_ready status, got %s", readiness.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	healthChecker = newTestHealthChecker()

	req := httptest.NewRequest("GET", "/live", nil)
	w := httptest.NewRecorder()

	handler := LivenessHandler()
	handler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if response["status"] != "alive" {
		t.Errorf("expected status 'alive', got '%s'", response["status"])
	}

	if response["uptime"] == "" {
		t.Error("uptime should not be empty")
	}
}
