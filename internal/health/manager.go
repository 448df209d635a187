package health

import (
	"context"
	"sync"
	"time"
)

// DefaultTimeout bounds each checker when no other timeout is configured.
const DefaultTimeout = 3 * time.Second

// Manager runs checkers in parallel and aggregates their results.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

// NewManager creates a manager with DefaultTimeout.
func NewManager() *Manager {
	return &Manager{timeout: DefaultTimeout}
}

// WithTimeout sets the per-checker timeout.
func (m *Manager) WithTimeout(timeout time.Duration) *Manager {
	m.mu.Lock()
	defer m.mu.Unlock()
	if timeout > 0 {
		m.timeout = timeout
	}
	return m
}

// AddChecker registers a checker. A checker with the same name replaces
// the earlier one.
func (m *Manager) AddChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.checkers {
		if c.Name() == checker.Name() {
			m.checkers[i] = checker
			return
		}
	}
	m.checkers = append(m.checkers, checker)
}

// RemoveChecker removes a checker by name and reports whether it existed.
func (m *Manager) RemoveChecker(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.checkers {
		if c.Name() == name {
			m.checkers = append(m.checkers[:i], m.checkers[i+1:]...)
			return true
		}
	}
	return false
}

// Check runs every checker and returns results keyed by checker name.
// A checker that returns nil is reported unhealthy.
func (m *Manager) Check(ctx context.Context) map[string]*Result {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	timeout := m.timeout
	m.mu.RUnlock()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]*Result, len(checkers))
	)
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			r := c.Check(checkCtx)
			if r == nil {
				r = Unhealthy("checker returned no result")
			}
			if r.Latency == 0 {
				r.Latency = time.Since(start)
			}

			mu.Lock()
			results[c.Name()] = r
			mu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

// OverallStatus is the worst status among results. No results is healthy.
func (m *Manager) OverallStatus(results map[string]*Result) Status {
	overall := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}

// CheckNames returns checker names in registration order.
func (m *Manager) CheckNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, len(m.checkers))
	for i, c := range m.checkers {
		names[i] = c.Name()
	}
	return names
}

// Count returns the number of registered checkers.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.checkers)
}
