// Package metrics exposes Prometheus counters for workflow coordination.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "baton"

var (
	// WorkflowsStarted counts StartWorkflow calls that created a workflow.
	WorkflowsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "started_total",
			Help:      "Total number of workflows started",
		},
	)

	// WorkflowTransitions counts status changes.
	// Labels: status
	WorkflowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "transitions_total",
			Help:      "Total number of workflow status transitions by target status",
		},
		[]string{"status"},
	)

	// Handoffs counts agent-to-agent handoffs.
	Handoffs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "handoffs_total",
			Help:      "Total number of handoffs by source and target agent",
		},
		[]string{"from", "to"},
	)

	// ActiveWorkflows is the number of in-progress or waiting workflows.
	ActiveWorkflows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "active",
			Help:      "Workflows currently in progress or waiting for approval",
		},
	)

	// Invocations counts agent invocations.
	// Labels: agent, result (success, error)
	Invocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invoker",
			Name:      "invocations_total",
			Help:      "Total number of agent invocations",
		},
		[]string{"agent", "result"},
	)

	// InvocationDuration tracks how long agents take to answer.
	InvocationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "invoker",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of agent invocations in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"agent"},
	)

	// Violations counts rule violations.
	// Labels: agent, type (format, boundary, rule, structure)
	Violations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "violations_total",
			Help:      "Total number of rule violations detected",
		},
		[]string{"agent", "type"},
	)

	// Corrections counts corrective rounds.
	// Labels: result (corrected, failed)
	Corrections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validator",
			Name:      "corrections_total",
			Help:      "Total number of corrective rounds",
		},
		[]string{"result"},
	)

	// Escalations counts user action items raised.
	// Labels: priority
	Escalations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "escalation",
			Name:      "raised_total",
			Help:      "Total number of user action items raised",
		},
		[]string{"priority"},
	)

	// HousekeepingRuns counts scheduler sweeps.
	// Labels: result (success, error)
	HousekeepingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "runs_total",
			Help:      "Total number of housekeeping sweeps",
		},
		[]string{"result"},
	)
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
