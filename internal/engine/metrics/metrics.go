// Package metrics collects Prometheus counters/histograms for the Turn
// Loop, Tool Scheduler, Permission Engine, and Auto-Compaction: turns
// started/completed by terminal subtype, tool executions by concurrency
// class, permission decisions by outcome, and compaction triggers.
//
// Grounded on kadirpekel-hector's pkg/observability/metrics.go (a
// CounterVec/HistogramVec-per-concern registry built against a private
// prometheus.Registry, one init*Metrics method per subsystem, exposed via
// promhttp.HandlerFor) generalized from that repo's agent/LLM/tool/RAG
// subsystems onto this engine's turn/scheduler/permission/compaction ones.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every counter/histogram the engine records against a
// private registry, so engine metrics never collide with a host process's
// own default Prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	turnsStarted   *prometheus.CounterVec
	turnsCompleted *prometheus.CounterVec
	turnDuration   *prometheus.HistogramVec

	toolExecutions *prometheus.CounterVec
	toolDuration   *prometheus.HistogramVec

	permissionDecisions *prometheus.CounterVec

	compactionTriggers *prometheus.CounterVec
}

// New constructs a Collector with namespace "dcode_engine" and registers
// every metric against its own private registry.
func New() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.turnsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dcode_engine",
			Subsystem: "turn",
			Name:      "started_total",
			Help:      "Total number of turns started",
		},
		[]string{"agent"},
	)
	c.turnsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dcode_engine",
			Subsystem: "turn",
			Name:      "completed_total",
			Help:      "Total number of turns completed, by terminal result subtype",
		},
		[]string{"agent", "subtype"},
	)
	c.turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dcode_engine",
			Subsystem: "turn",
			Name:      "duration_seconds",
			Help:      "Turn wall-clock duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14), // 100ms .. ~14m
		},
		[]string{"agent", "subtype"},
	)

	c.toolExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dcode_engine",
			Subsystem: "scheduler",
			Name:      "tool_executions_total",
			Help:      "Total number of ToolUse executions, by tool name and concurrency class",
		},
		[]string{"tool_name", "concurrency_class", "outcome"},
	)
	c.toolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dcode_engine",
			Subsystem: "scheduler",
			Name:      "tool_duration_seconds",
			Help:      "ToolUse execution duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 16), // 5ms .. ~164s
		},
		[]string{"tool_name", "concurrency_class"},
	)

	c.permissionDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dcode_engine",
			Subsystem: "permission",
			Name:      "decisions_total",
			Help:      "Total number of permission decisions, by outcome",
		},
		[]string{"tool_name", "outcome"},
	)

	c.compactionTriggers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dcode_engine",
			Subsystem: "compaction",
			Name:      "triggers_total",
			Help:      "Total number of auto-compaction attempts, by outcome",
		},
		[]string{"outcome"},
	)

	c.registry.MustRegister(
		c.turnsStarted, c.turnsCompleted, c.turnDuration,
		c.toolExecutions, c.toolDuration,
		c.permissionDecisions,
		c.compactionTriggers,
	)
	return c
}

// TurnStarted records a new turn beginning for agent.
func (c *Collector) TurnStarted(agent string) {
	c.turnsStarted.WithLabelValues(agent).Inc()
}

// TurnCompleted records a turn's terminal subtype and duration.
func (c *Collector) TurnCompleted(agent, subtype string, durationSeconds float64) {
	c.turnsCompleted.WithLabelValues(agent, subtype).Inc()
	c.turnDuration.WithLabelValues(agent, subtype).Observe(durationSeconds)
}

// ToolExecuted records one ToolUse's outcome, concurrency class, and
// duration. concurrencyClass is "concurrency_safe" or "barrier".
func (c *Collector) ToolExecuted(toolName, concurrencyClass, outcome string, durationSeconds float64) {
	c.toolExecutions.WithLabelValues(toolName, concurrencyClass, outcome).Inc()
	c.toolDuration.WithLabelValues(toolName, concurrencyClass).Observe(durationSeconds)
}

// PermissionDecided records a permission check's outcome: "allow", "deny",
// or "ask".
func (c *Collector) PermissionDecided(toolName, outcome string) {
	c.permissionDecisions.WithLabelValues(toolName, outcome).Inc()
}

// CompactionTriggered records an auto-compaction attempt's outcome:
// "summarized" or "skipped".
func (c *Collector) CompactionTriggered(outcome string) {
	c.compactionTriggers.WithLabelValues(outcome).Inc()
}

// Handler exposes the collector's private registry as a standard
// /metrics-shaped http.Handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
