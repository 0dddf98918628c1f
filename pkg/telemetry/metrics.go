package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ─── Materialization runs ────────────────────────────────────────────────────

	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crewboard",
		Subsystem: "materializer",
		Name:      "runs_total",
		Help:      "Total materialization runs, labelled by outcome.",
	}, []string{"outcome"}) // completed | failed | lock_held

	RunDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "crewboard",
		Subsystem: "materializer",
		Name:      "run_duration_seconds",
		Help:      "End-to-end duration of a full materialization run.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 120},
	})

	DefinitionsEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crewboard",
		Subsystem: "materializer",
		Name:      "definitions_evaluated_total",
		Help:      "Active definitions checked against the run date.",
	})

	DefinitionsDue = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crewboard",
		Subsystem: "materializer",
		Name:      "definitions_due_total",
		Help:      "Definitions whose recurrence fired on the run date.",
	})

	InstancesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crewboard",
		Subsystem: "materializer",
		Name:      "instances_created_total",
		Help:      "Task instances actually inserted.",
	})

	AssigneesSuppressed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crewboard",
		Subsystem: "materializer",
		Name:      "assignees_suppressed_total",
		Help:      "Assignees suppressed by a leave date without a delegate.",
	})

	InstancesAlreadyMaterialized = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "crewboard",
		Subsystem: "materializer",
		Name:      "instances_already_materialized_total",
		Help:      "Idempotency-key hits: instances that already existed for the run date.",
	})

	UnitErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crewboard",
		Subsystem: "materializer",
		Name:      "unit_errors_total",
		Help:      "Isolated per-definition or per-assignee failures that did not abort the run.",
	}, []string{"stage"}) // skip_check | resolve | exceptions | insert

	// ─── Notification dispatch ───────────────────────────────────────────────────

	NotificationsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crewboard",
		Subsystem: "materializer",
		Name:      "notifications_dispatched_total",
		Help:      "Notification publish attempts, labelled by result.",
	}, []string{"result"}) // sent | dropped | failed
)
