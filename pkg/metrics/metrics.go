// Package metrics exposes the daemon's Prometheus collectors: task
// throughput, queue depth, breaker state, governance decisions, and health
// probe outcomes, promhttp-served alongside the gateway.
//
// Grounded on the teacher's infrastructure/metrics.Metrics: a struct of
// pre-registered CounterVec/HistogramVec/GaugeVec fields constructed once in
// New and registered against a Registerer, generalized here from HTTP/DB/
// blockchain-tx collectors to this daemon's task/breaker/governance surface.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	slruntime "github.com/sentineld/sentineld/internal/runtime"
)

// Metrics holds every Prometheus collector the daemon registers.
type Metrics struct {
	TasksProcessedTotal  *prometheus.CounterVec
	TaskDuration         *prometheus.HistogramVec
	QueueDepth           prometheus.Gauge

	BreakerState         *prometheus.GaugeVec
	BreakerTripsTotal     *prometheus.CounterVec

	GovernanceDecisions  *prometheus.CounterVec

	HealthCheckStatus    *prometheus.GaugeVec
	HealthCheckDuration  *prometheus.HistogramVec

	ToolInvocationsTotal *prometheus.CounterVec

	DaemonInfo           *prometheus.GaugeVec
}

// New constructs a Metrics instance registered against prometheus.DefaultRegisterer.
func New(daemonName string) *Metrics {
	return NewWithRegistry(daemonName, prometheus.DefaultRegisterer)
}

// NewWithRegistry constructs a Metrics instance registered against registerer,
// or left unregistered if registerer is nil (for isolated tests).
func NewWithRegistry(daemonName string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksProcessedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentineld_tasks_processed_total",
				Help: "Total number of tasks processed by the scheduler's drain loop.",
			},
			[]string{"type", "priority", "status"},
		),
		TaskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentineld_task_duration_seconds",
				Help:    "Task execution duration in seconds.",
				Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"type"},
		),
		QueueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sentineld_queue_depth",
				Help: "Current number of tasks waiting in the priority queue.",
			},
		),

		BreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentineld_breaker_state",
				Help: "Circuit breaker state per operation: 0=closed, 1=half-open, 2=open.",
			},
			[]string{"operation"},
		),
		BreakerTripsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentineld_breaker_trips_total",
				Help: "Total number of times a breaker transitioned to open.",
			},
			[]string{"operation"},
		),

		GovernanceDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentineld_governance_decisions_total",
				Help: "Governance authority resolutions by risk level and outcome.",
			},
			[]string{"risk_level", "authority"},
		),

		HealthCheckStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentineld_health_check_status",
				Help: "Latest health probe status per component: 0=unhealthy, 1=degraded, 2=healthy.",
			},
			[]string{"component"},
		),
		HealthCheckDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sentineld_health_check_duration_seconds",
				Help:    "Health probe duration in seconds.",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"component"},
		),

		ToolInvocationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sentineld_tool_invocations_total",
				Help: "Total tool invocations by name and outcome.",
			},
			[]string{"tool", "status"},
		),

		DaemonInfo: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sentineld_daemon_info",
				Help: "Static daemon identity, always 1.",
			},
			[]string{"daemon", "environment"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.TasksProcessedTotal,
			m.TaskDuration,
			m.QueueDepth,
			m.BreakerState,
			m.BreakerTripsTotal,
			m.GovernanceDecisions,
			m.HealthCheckStatus,
			m.HealthCheckDuration,
			m.ToolInvocationsTotal,
			m.DaemonInfo,
		)
	}

	m.DaemonInfo.WithLabelValues(daemonName, string(slruntime.Env())).Set(1)
	return m
}

// BreakerStateValue maps breaker.State names to the gauge's numeric encoding.
func BreakerStateValue(state string) float64 {
	switch state {
	case "half_open", "halfOpen":
		return 1
	case "open":
		return 2
	default: // "closed"
		return 0
	}
}

// HealthStatusValue maps a health status string to the gauge's numeric encoding.
func HealthStatusValue(status string) float64 {
	switch status {
	case "degraded":
		return 1
	case "healthy":
		return 2
	default: // "unhealthy"
		return 0
	}
}
