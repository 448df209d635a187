// Package health reports whether the storefront's dependencies are usable.
//
// A Manager runs every registered Checker in parallel under a timeout. The
// ProbeManager adds liveness, readiness and startup probes on top, which the
// server exposes for orchestrators:
//
//	probes := health.NewProbeManager(version.GetInfo().Version)
//	probes.AddChecker(health.NewBackendChecker(gatewayClient))
//	probes.AddChecker(health.NewStorageChecker(backend))
package health

import (
	"context"
	"time"
)

// Checker verifies one dependency.
type Checker interface {
	// Name is unique, lowercase with hyphens (e.g. "backend-api").
	Name() string

	// Check must respect the context deadline.
	Check(ctx context.Context) *Result
}

// Status represents the health check status.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// Result is the outcome of one check.
type Result struct {
	Status  Status                 `json:"status"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Latency time.Duration          `json:"latency_ns"`
}

// NewResult creates a result with the given status and message.
func NewResult(status Status, message string) *Result {
	return &Result{
		Status:  status,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WithDetail adds a detail and returns the result for chaining.
func (r *Result) WithDetail(key string, value interface{}) *Result {
	r.Details[key] = value
	return r
}

// WithLatency sets the latency and returns the result for chaining.
func (r *Result) WithLatency(latency time.Duration) *Result {
	r.Latency = latency
	return r
}

// Healthy creates a healthy result.
func Healthy(message string) *Result {
	return NewResult(StatusHealthy, message)
}

// Degraded creates a degraded result.
func Degraded(message string) *Result {
	return NewResult(StatusDegraded, message)
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string) *Result {
	return NewResult(StatusUnhealthy, message)
}
