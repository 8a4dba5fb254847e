// Package metrics exposes the Controller's Prometheus counters and
// gauges, grounded on the teacher's internal/escrow/metrics.go
// promauto-based registration pattern.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the Controller publishes.
type Metrics struct {
	PendingQueueDepth *prometheus.GaugeVec
	PendingAddedTotal *prometheus.CounterVec

	DispatchTotal *prometheus.CounterVec

	BridgeReconnectTotal prometheus.Counter
	BridgeBackoffSeconds prometheus.Gauge
	BridgeConnected      prometheus.Gauge

	ExecutorConnected prometheus.Gauge

	DedupHitsTotal prometheus.Counter
}

// New creates and registers every collector against the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates and registers every collector against reg,
// letting tests use an isolated prometheus.NewRegistry() instead of the
// global default (which panics on repeated registration across test
// cases).
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PendingQueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "controller_pending_queue_depth",
				Help: "Current number of pending approvals queued per tab",
			},
			[]string{"tab_id"},
		),
		PendingAddedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controller_pending_added_total",
				Help: "Total number of pending approvals ever queued",
			},
			[]string{"tab_id", "type"},
		),
		DispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "controller_dispatch_total",
				Help: "Total number of (command, action) dispatches, by outcome",
			},
			[]string{"command", "action", "outcome"},
		),
		BridgeReconnectTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "controller_bridge_reconnect_total",
				Help: "Total number of Bridge Link (re)connect attempts",
			},
		),
		BridgeBackoffSeconds: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "controller_bridge_backoff_seconds",
				Help: "Current Bridge Link reconnect backoff duration in seconds",
			},
		),
		BridgeConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "controller_bridge_connected",
				Help: "Whether the Bridge Link is currently connected (1) or not (0)",
			},
		),
		ExecutorConnected: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "controller_executor_connected",
				Help: "Whether an Executor is currently attached to the Framed Transport (1) or not (0)",
			},
		),
		DedupHitsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "controller_dedup_hits_total",
				Help: "Total number of Executor replies dropped as duplicates",
			},
		),
	}
}

// RecordPendingAdded updates the queue-depth gauge and added-total counter
// for one tab, mirroring SPEC_FULL.md §4.4's observational-only contract.
func (m *Metrics) RecordPendingAdded(tabID string, actionType string, depth int) {
	m.PendingAddedTotal.WithLabelValues(tabID, actionType).Inc()
	m.PendingQueueDepth.WithLabelValues(tabID).Set(float64(depth))
}

// RecordPendingPopped updates the queue-depth gauge after a Pop.
func (m *Metrics) RecordPendingPopped(tabID string, depth int) {
	m.PendingQueueDepth.WithLabelValues(tabID).Set(float64(depth))
}

// RecordDispatch records one dispatch outcome ("ok", "no_handler", "error").
func (m *Metrics) RecordDispatch(command, action, outcome string) {
	m.DispatchTotal.WithLabelValues(command, action, outcome).Inc()
}

// RecordBridgeReconnect records one reconnect attempt and its backoff.
func (m *Metrics) RecordBridgeReconnect(backoffSeconds float64) {
	m.BridgeReconnectTotal.Inc()
	m.BridgeBackoffSeconds.Set(backoffSeconds)
}

// SetBridgeConnected reflects current Bridge Link connection state.
func (m *Metrics) SetBridgeConnected(connected bool) {
	m.BridgeConnected.Set(boolToFloat(connected))
}

// SetExecutorConnected reflects current Framed Transport peer state.
func (m *Metrics) SetExecutorConnected(connected bool) {
	m.ExecutorConnected.Set(boolToFloat(connected))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
