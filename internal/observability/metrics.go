// Package observability registers the runtime's Prometheus metrics and
// exposes the HTTP handler the gateway mounts under /metrics.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type runtimeMetrics struct {
	agentRunTotal    *prometheus.CounterVec
	agentRunDuration *prometheus.HistogramVec
	agentTurnsTotal  prometheus.Counter

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec

	compactionTotal   prometheus.Counter
	compactionDropped prometheus.Counter

	activeStreams prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *runtimeMetrics
)

func getMetrics() *runtimeMetrics {
	metricsOnce.Do(func() {
		m := &runtimeMetrics{
			agentRunTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "aria_agent_run_total",
					Help: "Completed agent runs by terminal state.",
				},
				[]string{"outcome"},
			),
			agentRunDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "aria_agent_run_duration_seconds",
					Help:    "Agent run wall time.",
					Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
				},
				[]string{"outcome"},
			),
			agentTurnsTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "aria_agent_turns_total",
					Help: "Model round trips executed.",
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "aria_tool_execution_total",
					Help: "Tool executions by provenance and status.",
				},
				[]string{"source", "status"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "aria_tool_execution_duration_seconds",
					Help:    "Tool execution wall time.",
					Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
				},
				[]string{"source"},
			),
			compactionTotal: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "aria_history_compaction_total",
					Help: "History compactions performed.",
				},
			),
			compactionDropped: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "aria_history_compaction_dropped_total",
					Help: "Messages dropped by compaction.",
				},
			),
			activeStreams: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "aria_active_streams",
					Help: "Streaming runs currently in flight.",
				},
			),
		}

		prometheus.MustRegister(
			m.agentRunTotal,
			m.agentRunDuration,
			m.agentTurnsTotal,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.compactionTotal,
			m.compactionDropped,
			m.activeStreams,
		)

		metricsInst = m
	})
	return metricsInst
}

// EnsureRegistered forces metric registration. Call once from long-lived
// component constructors so metrics exist before first scrape.
func EnsureRegistered() {
	getMetrics()
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	getMetrics()
	return promhttp.Handler()
}

// RecordAgentRun records a completed run with its terminal outcome.
func RecordAgentRun(outcome string, duration time.Duration) {
	m := getMetrics()
	m.agentRunTotal.WithLabelValues(outcome).Inc()
	m.agentRunDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordTurn counts one model round trip.
func RecordTurn() {
	getMetrics().agentTurnsTotal.Inc()
}

// RecordToolExecution records one tool execution.
func RecordToolExecution(source, status string, duration time.Duration) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(source, status).Inc()
	m.toolExecutionDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordCompaction records one history compaction and the messages it dropped.
func RecordCompaction(dropped int) {
	m := getMetrics()
	m.compactionTotal.Inc()
	m.compactionDropped.Add(float64(dropped))
}

// StreamStarted marks a streaming run as in flight.
func StreamStarted() {
	getMetrics().activeStreams.Inc()
}

// StreamFinished marks a streaming run as done.
func StreamFinished() {
	getMetrics().activeStreams.Dec()
}
