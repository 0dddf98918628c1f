package domain

import "time"

// RunError records a single failed unit of work. PersonnelID is empty for
// definition-level failures.
type RunError struct {
	DefinitionID string `json:"definition_id"`
	PersonnelID  string `json:"personnel_id,omitempty"`
	Message      string `json:"message"`
}

// RunReport summarizes one materialization run. Individual unit failures
// land in Errors without aborting the run; the whole run is safe to
// re-invoke thanks to the instance idempotency key.
type RunReport struct {
	RunID      string    `json:"run_id"`
	Date       time.Time `json:"date"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	DefinitionsEvaluated int64 `json:"definitions_evaluated"`
	DefinitionsDue       int64 `json:"definitions_due"`
	DefinitionsSkipped   int64 `json:"definitions_skipped"` // skip-date days
	InstancesCreated     int64 `json:"instances_created"`
	Suppressed           int64 `json:"suppressed"`           // leave without delegate
	AlreadyMaterialized  int64 `json:"already_materialized"` // idempotency hits

	Errors []RunError `json:"errors,omitempty"`
}
