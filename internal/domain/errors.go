package domain

import "fmt"

// MalformedRuleError is returned when a stored recurrence config cannot be
// decoded into a known variant. The owning definition is skipped for the
// run, never aborting the batch.
type MalformedRuleError struct {
	DefinitionID string
	Reason       string
}

func (e *MalformedRuleError) Error() string {
	return fmt.Sprintf("malformed recurrence for definition %s: %s", e.DefinitionID, e.Reason)
}

// MalformedAssignmentError is the assignment-side counterpart of
// MalformedRuleError.
type MalformedAssignmentError struct {
	DefinitionID string
	Reason       string
}

func (e *MalformedAssignmentError) Error() string {
	return fmt.Sprintf("malformed assignment for definition %s: %s", e.DefinitionID, e.Reason)
}

// PersonnelNotFoundError is returned when a personnel id does not exist in
// the directory.
type PersonnelNotFoundError struct {
	PersonnelID string
}

func (e *PersonnelNotFoundError) Error() string {
	return fmt.Sprintf("personnel not found: %s", e.PersonnelID)
}

// DefinitionNotFoundError is returned when a definition id does not exist.
type DefinitionNotFoundError struct {
	DefinitionID string
}

func (e *DefinitionNotFoundError) Error() string {
	return fmt.Sprintf("task definition not found: %s", e.DefinitionID)
}
