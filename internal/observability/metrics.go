// Package observability exposes the runtime's Prometheus metrics and
// OpenTelemetry tracing surface. Supervisor and bus events surface here
// as side-channel metrics only; they never flow back to request callers.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the process-wide metrics registry handed to every component
// that wants to record a counter or gauge.
type Metrics struct {
	// DispatcherInFlight tracks currently live RPC records.
	DispatcherInFlight prometheus.Gauge

	// DispatcherRequests counts completed dispatches by method and outcome
	// (ok|error kind).
	DispatcherRequests *prometheus.CounterVec

	// BusDropped counts drop-oldest overflow events per topic.
	BusDropped *prometheus.CounterVec

	// SubAgentState is a gauge of sub-agents currently in each state.
	// Labels: role, state.
	SubAgentState *prometheus.GaugeVec

	// ApprovalResolutions counts approval outcomes by source
	// (auto|human|expiry) and resulting state.
	ApprovalResolutions *prometheus.CounterVec

	// NetworkFetchBlocked counts SSRF-rejected outbound fetches by reason.
	NetworkFetchBlocked *prometheus.CounterVec

	// QueueTasksProcessed counts task-queue completions by type and
	// outcome (completed|failed).
	QueueTasksProcessed *prometheus.CounterVec

	// BrokerCallDuration measures secrets-broker call latency in seconds,
	// by operation.
	BrokerCallDuration *prometheus.HistogramVec
}

// NewMetrics registers every collector against reg and returns the bundle.
// Pass prometheus.NewRegistry() in tests to avoid colliding with the
// default global registry across parallel test packages.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DispatcherInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "agentrt_dispatcher_inflight",
			Help: "Number of currently live RPC records.",
		}),
		DispatcherRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_dispatcher_requests_total",
			Help: "Completed dispatcher requests by method and outcome.",
		}, []string{"method", "outcome"}),
		BusDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_bus_dropped_total",
			Help: "Events dropped from a subscriber's queue on overflow, by topic.",
		}, []string{"topic"}),
		SubAgentState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "agentrt_subagent_state",
			Help: "Number of sub-agents currently in a given state, by role.",
		}, []string{"role", "state"}),
		ApprovalResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_approval_resolutions_total",
			Help: "Approval record resolutions by source and terminal state.",
		}, []string{"source", "state"}),
		NetworkFetchBlocked: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_network_fetch_blocked_total",
			Help: "Outbound fetches rejected by the network safety layer, by reason.",
		}, []string{"reason"}),
		QueueTasksProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "agentrt_queue_tasks_total",
			Help: "Task-queue completions by task type and outcome.",
		}, []string{"type", "outcome"}),
		BrokerCallDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "agentrt_broker_call_duration_seconds",
			Help:    "Secrets broker call latency in seconds, by operation.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"operation"}),
	}
}
