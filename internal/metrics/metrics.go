// Package metrics holds the hub's Prometheus collectors: a handful of
// fleet-shaped gauges/counters exposed for operational visibility.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ConnectedAgents tracks the live agent-registry size.
	ConnectedAgents = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleethub",
		Name:      "connected_agents",
		Help:      "Number of agent sessions currently registered.",
	})

	// ConnectedDashboards tracks the live dashboard fan-out set.
	ConnectedDashboards = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "fleethub",
		Name:      "connected_dashboards",
		Help:      "Number of dashboard sockets currently subscribed to push notifications.",
	})

	// AgentRPCDuration measures outbound agent_*/shell_*/hardware_*/codechain_callRPC call
	// latency, per method, as observed by internal/rpc.Conn.Call.
	AgentRPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleethub",
		Name:      "agent_rpc_duration_seconds",
		Help:      "Latency of outbound agent RPC calls, by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// AlertsFiredTotal counts alert-engine triggers, per kind.
	AlertsFiredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleethub",
		Name:      "alerts_fired_total",
		Help:      "Number of alert conditions that transitioned from armed to fired.",
	}, []string{"kind"})

	// EventsEmittedTotal counts fleetdb.Event emissions, per kind.
	EventsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fleethub",
		Name:      "db_events_emitted_total",
		Help:      "Number of fleetdb.Event values emitted to subscribers, by event kind.",
	}, []string{"kind"})

	// DBQueryDuration measures every statement the DB actor executes, as
	// observed by the GORM trace hook. The "outcome" label is ok, error,
	// or slow.
	DBQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fleethub",
		Name:      "db_query_duration_seconds",
		Help:      "Latency of database statements, by outcome.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
)
