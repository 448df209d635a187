package health

import (
	"context"
	"time"
)

// Pinger is anything that can report its reachability: the gateway client,
// storage backends and the visitor registry all implement it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker turns a Pinger into a Checker.
type PingChecker struct {
	name     string
	target   Pinger
	critical bool
	detail   map[string]interface{}
}

// NewBackendChecker checks that the auth API answers. The storefront cannot
// sign anyone in without it, so a failure is unhealthy.
func NewBackendChecker(target Pinger, baseURL string) *PingChecker {
	return &PingChecker{
		name:     "backend-api",
		target:   target,
		critical: true,
		detail:   map[string]interface{}{"base_url": baseURL},
	}
}

// NewStorageChecker checks the session storage backend. Visitors keep
// their in-memory sessions when it fails, so a failure only degrades.
func NewStorageChecker(target Pinger, driver string) *PingChecker {
	return &PingChecker{
		name:   "session-storage",
		target: target,
		detail: map[string]interface{}{"driver": driver},
	}
}

// Name returns the name of this health check.
func (c *PingChecker) Name() string {
	return c.name
}

// Check pings the target once.
func (c *PingChecker) Check(ctx context.Context) *Result {
	start := time.Now()
	err := c.target.Ping(ctx)

	var r *Result
	switch {
	case err == nil:
		r = Healthy(c.name + " is reachable")
	case c.critical:
		r = Unhealthy(c.name + " is unreachable").WithDetail("error", err.Error())
	default:
		r = Degraded(c.name + " is unreachable").WithDetail("error", err.Error())
	}
	for k, v := range c.detail {
		r.WithDetail(k, v)
	}
	return r.WithLatency(time.Since(start))
}
