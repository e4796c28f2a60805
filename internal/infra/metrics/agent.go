package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		agentIterationsTotal,
		agentInterruptsTotal,
		agentResumesTotal,
		aiCallsLatencyMs,
	)
}

var (
	agentIterationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_iterations_total",
			Help: "Model invocations across all agent executions.",
		},
	)

	agentInterruptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agent_interrupts_total",
			Help: "Executions suspended awaiting human approval.",
		},
	)

	agentResumesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_resumes_total",
			Help: "Resumed executions, labeled by the approval decision.",
		},
		[]string{"approved"},
	)

	aiCallsLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_calls_latency_ms",
			Help:    "Completion call latency distribution in milliseconds.",
			Buckets: []float64{10, 25, 50, 100, 200, 400, 800, 1600, 3000, 5000},
		},
		[]string{"model", "success"},
	)
)

func IncAgentIteration() { agentIterationsTotal.Inc() }

func IncAgentInterrupt() { agentInterruptsTotal.Inc() }

func IncAgentResume(approved bool) {
	agentResumesTotal.WithLabelValues(strconv.FormatBool(approved)).Inc()
}

func ObserveCompletionLatency(model string, latencyMs int, success bool) {
	aiCallsLatencyMs.WithLabelValues(norm(model), strconv.FormatBool(success)).
		Observe(float64(latencyMs))
}
