package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var GatewayRequestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gold_gateway_request_total",
	Help: "The total number of requests to the tournament backend by operation and status",
}, []string{"operation", "status"})

var GatewayRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name: "gold_gateway_request_duration_seconds",
	Help: "Duration of requests to the tournament backend",
}, []string{"operation"})

var FieldFlushCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gold_field_flush_total",
	Help: "Debounced field writes by field and result",
}, []string{"field", "result"})

var ReconcileOverlayCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gold_reconcile_overlay_total",
	Help: "Fields kept from local pending edits while merging a reload",
})

var ReconcileKeptLayoutCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gold_reconcile_kept_layout_total",
	Help: "Reloads whose group layout was discarded in favour of unsaved local changes",
})

var StaleSnapshotCounter = promauto.NewCounter(prometheus.CounterOpts{
	Name: "gold_stale_snapshot_total",
	Help: "Participant snapshots dropped because a save or auto-group finished after they were requested",
})

var OpenSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "gold_open_sessions",
	Help: "Number of tournaments with an open grouping session",
})

var WebSocketClientsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "gold_websocket_clients",
	Help: "Number of connected websocket clients",
})

var DraftSnapshotCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "gold_draft_snapshot_total",
	Help: "Draft layout snapshots written by result",
}, []string{"result"})
