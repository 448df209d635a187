package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Metrics holds all Prometheus metrics for the storefront session layer.
//
// Every Observe/Record method is safe to call on a nil *Metrics, so
// components can treat metrics as optional.
type Metrics struct {
	// Session store operations
	AuthOperations        *prometheus.CounterVec
	AuthOperationDuration *prometheus.HistogramVec
	SessionRefreshes      *prometheus.CounterVec
	StatusTransitions     *prometheus.CounterVec

	// Route guards
	GuardDecisions *prometheus.CounterVec

	// Backend gateway
	GatewayRequests *prometheus.CounterVec

	// Web front end
	ActiveVisitors prometheus.Gauge

	// Error metrics (by error code from structured errors)
	Errors *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics registered
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		AuthOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_auth_operations_total",
				Help: "Total number of session store operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		AuthOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_auth_operation_duration_seconds",
				Help:    "Session store operation duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"operation"},
		),
		SessionRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_session_refreshes_total",
				Help: "Total number of session refresh attempts by outcome",
			},
			[]string{"outcome"},
		),
		StatusTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_status_transitions_total",
				Help: "Total number of session status transitions by target status",
			},
			[]string{"status"},
		),

		GuardDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_guard_decisions_total",
				Help: "Total number of route guard decisions",
			},
			[]string{"guard", "decision"},
		),

		GatewayRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_gateway_requests_total",
				Help: "Total number of backend API requests by endpoint and status code",
			},
			[]string{"endpoint", "code"},
		),

		ActiveVisitors: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "storefront_active_visitors",
				Help: "Number of visitor sessions currently held in memory",
			},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_errors_total",
				Help: "Total number of errors by error code",
			},
			[]string{"error_code"},
		),
	}
}

// ObserveOperation records the outcome and duration of a session operation.
func (m *Metrics) ObserveOperation(operation string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.AuthOperations.WithLabelValues(operation, outcome).Inc()
	m.AuthOperationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// RecordRefresh counts a refresh attempt.
func (m *Metrics) RecordRefresh(err error) {
	if m == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
	}
	m.SessionRefreshes.WithLabelValues(outcome).Inc()
}

// RecordStatus counts a transition into status.
func (m *Metrics) RecordStatus(status string) {
	if m == nil {
		return
	}
	m.StatusTransitions.WithLabelValues(status).Inc()
}

// RecordGuard counts a guard decision.
func (m *Metrics) RecordGuard(guard, decision string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(guard, decision).Inc()
}

// RecordGatewayRequest counts a backend request. code is the HTTP status
// code, or "error" when no response arrived.
func (m *Metrics) RecordGatewayRequest(endpoint, code string) {
	if m == nil {
		return
	}
	m.GatewayRequests.WithLabelValues(endpoint, code).Inc()
}

// SetActiveVisitors updates the visitor gauge.
func (m *Metrics) SetActiveVisitors(n int) {
	if m == nil {
		return
	}
	m.ActiveVisitors.Set(float64(n))
}

// RecordError counts an error by its structured code.
func (m *Metrics) RecordError(code string) {
	if m == nil || code == "" {
		return
	}
	m.Errors.WithLabelValues(code).Inc()
}
