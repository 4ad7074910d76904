package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HealthStatus is the status of a single checked component.
type HealthStatus string

const (
	HealthStatusOK        HealthStatus = "ok"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth is the health of a single component.
type ComponentHealth struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	LatencyMS int64        `json:"latency_ms,omitempty"`
}

// HealthCheckResponse is the overall health check response.
type HealthCheckResponse struct {
	Status        HealthStatus               `json:"status"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Timestamp     string                     `json:"timestamp"`
	Checks        map[string]ComponentHealth `json:"checks"`
}

// HealthCheckFunc checks one component's health.
type HealthCheckFunc func(ctx context.Context) ComponentHealth

// HealthChecker aggregates named HealthCheckFuncs into one response.
type HealthChecker struct {
	version   string
	startTime time.Time
	checks    map[string]HealthCheckFunc
}

// NewHealthChecker creates a health checker reporting version.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		version:   version,
		startTime: time.Now(),
		checks:    make(map[string]HealthCheckFunc),
	}
}

// RegisterCheck registers a named component check.
func (hc *HealthChecker) RegisterCheck(name string, checkFunc HealthCheckFunc) {
	hc.checks[name] = checkFunc
}

// Check runs every registered check and aggregates the worst status.
func (hc *HealthChecker) Check(ctx context.Context) HealthCheckResponse {
	response := HealthCheckResponse{
		Status:        HealthStatusOK,
		Version:       hc.version,
		UptimeSeconds: int64(time.Since(hc.startTime).Seconds()),
		Timestamp:     time.Now().Format(time.RFC3339),
		Checks:        make(map[string]ComponentHealth),
	}

	for name, checkFunc := range hc.checks {
		health := checkFunc(ctx)
		response.Checks[name] = health
		if health.Status == HealthStatusUnhealthy {
			response.Status = HealthStatusUnhealthy
		} else if health.Status == HealthStatusDegraded && response.Status != HealthStatusUnhealthy {
			response.Status = HealthStatusDegraded
		}
	}

	return response
}

// Handler returns an http.HandlerFunc for GET /healthz.
func (hc *HealthChecker) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		response := hc.Check(ctx)
		w.Header().Set("Content-Type", "application/json")
		switch response.Status {
		case HealthStatusOK, HealthStatusDegraded:
			w.WriteHeader(http.StatusOK)
		case HealthStatusUnhealthy:
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(response)
	}
}

// QUICListenerCheck reports the endpoint's bound address as healthy.
func QUICListenerCheck(addr string) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		return ComponentHealth{Status: HealthStatusOK, Message: fmt.Sprintf("QUIC listener on %s", addr)}
	}
}

// KeystoreCheck reports whether the node's identity keys loaded.
func KeystoreCheck(keysLoaded bool) HealthCheckFunc {
	return func(ctx context.Context) ComponentHealth {
		if keysLoaded {
			return ComponentHealth{Status: HealthStatusOK, Message: "identity keys loaded"}
		}
		return ComponentHealth{Status: HealthStatusUnhealthy, Message: "identity keys not loaded"}
	}
}
