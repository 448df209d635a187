package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// ProbeManager adds liveness, readiness and startup probes to a Manager.
type ProbeManager struct {
	*Manager

	startTime   time.Time
	initialized atomic.Bool
	inShutdown  atomic.Bool
	version     string
}

// NewProbeManager creates a probe manager for the given build version.
func NewProbeManager(version string) *ProbeManager {
	return &ProbeManager{
		Manager:   NewManager(),
		startTime: time.Now(),
		version:   version,
	}
}

// MarkInitialized lets the startup probe pass.
func (pm *ProbeManager) MarkInitialized() { pm.initialized.Store(true) }

// MarkShutdown makes readiness fail so traffic drains before exit.
func (pm *ProbeManager) MarkShutdown() { pm.inShutdown.Store(true) }

func (pm *ProbeManager) IsInitialized() bool  { return pm.initialized.Load() }
func (pm *ProbeManager) IsShuttingDown() bool { return pm.inShutdown.Load() }

// Uptime returns how long the process has been serving.
func (pm *ProbeManager) Uptime() time.Duration { return time.Since(pm.startTime) }

func (pm *ProbeManager) Version() string { return pm.version }

// ProbeResult is the JSON body of every probe endpoint.
type ProbeResult struct {
	Status    Status             `json:"status"`
	Version   string             `json:"version,omitempty"`
	Uptime    string             `json:"uptime,omitempty"`
	Checks    map[string]*Result `json:"checks,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

func (pm *ProbeManager) result(status Status, checks map[string]*Result) *ProbeResult {
	return &ProbeResult{
		Status:    status,
		Version:   pm.version,
		Uptime:    pm.Uptime().Round(time.Second).String(),
		Checks:    checks,
		Timestamp: time.Now().UTC(),
	}
}

// CheckLiveness reports whether the process is responsive. Dependencies are
// not consulted: a dead backend must not get the storefront restarted.
func (pm *ProbeManager) CheckLiveness(context.Context) *ProbeResult {
	if pm.IsShuttingDown() {
		return pm.result(StatusDegraded, nil)
	}
	return pm.result(StatusHealthy, nil)
}

// CheckReadiness runs every checker. It fails immediately during shutdown.
func (pm *ProbeManager) CheckReadiness(ctx context.Context) *ProbeResult {
	if pm.IsShuttingDown() {
		return pm.result(StatusUnhealthy, nil)
	}
	checks := pm.Check(ctx)
	return pm.result(pm.OverallStatus(checks), checks)
}

// CheckStartup passes once MarkInitialized has been called.
func (pm *ProbeManager) CheckStartup(context.Context) *ProbeResult {
	if pm.IsInitialized() {
		return pm.result(StatusHealthy, nil)
	}
	return pm.result(StatusUnhealthy, nil)
}

// LivenessHandler serves CheckLiveness.
func (pm *ProbeManager) LivenessHandler() http.Handler { return probeHandler(pm.CheckLiveness) }

// ReadinessHandler serves CheckReadiness.
func (pm *ProbeManager) ReadinessHandler() http.Handler { return probeHandler(pm.CheckReadiness) }

// StartupHandler serves CheckStartup.
func (pm *ProbeManager) StartupHandler() http.Handler { return probeHandler(pm.CheckStartup) }

// probeHandler answers 503 only for unhealthy; degraded still serves.
func probeHandler(probe func(context.Context) *ProbeResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res := probe(r.Context())
		code := http.StatusOK
		if res.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(res)
	})
}
